// Package fake provides an in-memory vehicle for tests and dry runs.
//
// Altitude follows the commanded vertical velocity kinematically, every call is recorded
// in order, and failures can be injected per operation.
package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roman-kulish/altitude-hold/internal/vehicle"
)

const (
	OpConnect  = "connect"
	OpTakeoff  = "takeoff"
	OpLand     = "land"
	OpHeight   = "height"
	OpBattery  = "battery"
	OpVelocity = "velocity"

	Name = "fake"
)

// ErrInjected is returned by operations configured to fail with FailNext.
var ErrInjected = errors.New("injected failure")

// Call is one recorded vehicle call.
type Call struct {
	Op       string
	Velocity vehicle.Velocity // set for OpVelocity only
	At       time.Time
}

// WithTakeoffHeight sets the height the vehicle hovers at after takeoff.
func WithTakeoffHeight(cm float64) func(*Vehicle) {
	return func(v *Vehicle) {
		v.takeoffHeight = cm
	}
}

// WithClimbRate sets how many cm/s one unit of vertical velocity produces.
func WithClimbRate(cmPerUnit float64) func(*Vehicle) {
	return func(v *Vehicle) {
		v.climbRate = cmPerUnit
	}
}

// WithBattery sets the reported battery charge.
func WithBattery(percent int) func(*Vehicle) {
	return func(v *Vehicle) {
		v.battery = percent
	}
}

// Vehicle is a fake vehicle.Vehicle. It is safe for concurrent use.
type Vehicle struct {
	mu sync.Mutex

	height        float64
	takeoffHeight float64
	climbRate     float64
	vertical      int
	updatedAt     time.Time
	flying        bool
	battery       int

	calls    []Call
	failures map[string]int
	frozen   bool
}

var _ vehicle.Vehicle = (*Vehicle)(nil)

// New creates a fake vehicle resting on the ground.
func New(options ...func(*Vehicle)) *Vehicle {
	v := Vehicle{
		takeoffHeight: 80,
		climbRate:     1,
		battery:       90,
		failures:      make(map[string]int),
	}

	for _, option := range options {
		option(&v)
	}

	return &v
}

func (v *Vehicle) Name() string {
	return Name
}

func (v *Vehicle) Connect(ctx context.Context) error {
	return v.do(ctx, OpConnect, func() {})
}

func (v *Vehicle) Takeoff(ctx context.Context) error {
	return v.do(ctx, OpTakeoff, func() {
		v.flying = true
		v.height = v.takeoffHeight
		v.updatedAt = time.Now()
	})
}

func (v *Vehicle) Land(ctx context.Context) error {
	return v.do(ctx, OpLand, func() {
		v.advance()
		v.flying = false
		v.vertical = 0
		v.height = 0
	})
}

func (v *Vehicle) Height(ctx context.Context) (float64, error) {
	var h float64
	err := v.do(ctx, OpHeight, func() {
		v.advance()
		h = v.height
	})
	return h, err
}

func (v *Vehicle) Battery(ctx context.Context) (int, error) {
	var b int
	err := v.do(ctx, OpBattery, func() {
		b = v.battery
	})
	return b, err
}

func (v *Vehicle) SendVelocity(ctx context.Context, vel vehicle.Velocity) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.calls = append(v.calls, Call{Op: OpVelocity, Velocity: vel, At: time.Now()})
	if err := v.injected(ctx, OpVelocity); err != nil {
		return err
	}

	v.advance()
	v.vertical = vel.Clamp().Vertical
	return nil
}

// FailNext makes the next n calls of op fail with ErrInjected.
func (v *Vehicle) FailNext(op string, n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[op] = n
}

// SetHeight places the vehicle at the given height, for example above a safety ceiling.
func (v *Vehicle) SetHeight(cm float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.height = cm
	v.updatedAt = time.Now()
}

// Freeze stops the kinematic integration; the height then only changes via SetHeight.
func (v *Vehicle) Freeze() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	v.frozen = true
}

// Calls returns a copy of the recorded calls in order.
func (v *Vehicle) Calls() []Call {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Call(nil), v.calls...)
}

// Ops returns the recorded operation names in order.
func (v *Vehicle) Ops() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	ops := make([]string, len(v.calls))
	for i, c := range v.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called.
func (v *Vehicle) Count(op string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	var n int
	for _, c := range v.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (v *Vehicle) do(ctx context.Context, op string, fn func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.calls = append(v.calls, Call{Op: op, At: time.Now()})
	if err := v.injected(ctx, op); err != nil {
		return err
	}

	fn()
	return nil
}

func (v *Vehicle) injected(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return vehicle.NewTransportError(op, err)
	}
	if n := v.failures[op]; n > 0 {
		v.failures[op] = n - 1
		return vehicle.NewTransportError(op, ErrInjected)
	}
	return nil
}

// advance integrates the last vertical command up to now. Callers hold v.mu.
func (v *Vehicle) advance() {
	now := time.Now()
	if v.flying && !v.frozen && !v.updatedAt.IsZero() {
		v.height += float64(v.vertical) * v.climbRate * now.Sub(v.updatedAt).Seconds()
		v.height = max(v.height, 0)
	}
	v.updatedAt = now
}
