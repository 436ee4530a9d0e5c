// Package tello implements vehicle.Vehicle over the Tello SDK text protocol.
//
// Commands are sent as UDP datagrams to the vehicle command port and answered with "ok" or
// "error ...". The vehicle also pushes a state packet several times per second to the
// local state port; height and battery are served from the latest packet.
package tello

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/altitude-hold/internal/vehicle"
)

const (
	Device = "tello"

	DefaultAddress        = "192.168.10.1:8889"
	DefaultCommandListen  = ":8889"
	DefaultStateListen    = ":8890"
	DefaultCommandTimeout = 7 * time.Second
	DefaultStateMaxAge    = time.Second

	maxPacketSize = 2048
)

// ErrClosed is returned by commands issued after Close
var ErrClosed = errors.New("client closed")

// Config holds the addresses and timeouts of the Tello link
type Config struct {
	Address        string        // vehicle command endpoint
	CommandListen  string        // local address receiving command responses
	StateListen    string        // local address receiving the state stream
	CommandTimeout time.Duration // how long to wait for "ok"
	StateMaxAge    time.Duration // state older than this is a transport error
}

// DefaultConfig returns the factory network settings of the vehicle
func DefaultConfig() Config {
	return Config{
		Address:        DefaultAddress,
		CommandListen:  DefaultCommandListen,
		StateListen:    DefaultStateListen,
		CommandTimeout: DefaultCommandTimeout,
		StateMaxAge:    DefaultStateMaxAge,
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger.With(slog.String("vehicle", Device))
	}
}

// Client is a Tello SDK client
type Client struct {
	config Config

	remote    *net.UDPAddr
	cmdConn   *net.UDPConn
	stateConn *net.UDPConn

	state atomic.Pointer[State]

	mu        sync.Mutex // serialises request/response commands
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	logger *slog.Logger
}

var _ vehicle.Vehicle = (*Client)(nil)

// New creates a client. No sockets are opened until Connect.
func New(config Config, options ...func(*Client)) *Client {
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultCommandTimeout
	}
	if config.StateMaxAge <= 0 {
		config.StateMaxAge = DefaultStateMaxAge
	}

	c := Client{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

func (c *Client) Name() string {
	return Device
}

// Connect opens the command and state sockets and enters SDK mode
func (c *Client) Connect(ctx context.Context) error {
	if err := c.open(); err != nil {
		return vehicle.NewTransportError("connect", err)
	}

	return c.command(ctx, "command")
}

func (c *Client) Takeoff(ctx context.Context) error {
	return c.command(ctx, "takeoff")
}

func (c *Client) Land(ctx context.Context) error {
	return c.command(ctx, "land")
}

func (c *Client) Height(_ context.Context) (float64, error) {
	st, err := c.latestState()
	if err != nil {
		return 0, vehicle.NewTransportError("height", err)
	}
	return st.Height, nil
}

func (c *Client) Battery(_ context.Context) (int, error) {
	st, err := c.latestState()
	if err != nil {
		return 0, vehicle.NewTransportError("battery", err)
	}
	return st.Battery, nil
}

// SendVelocity sends an "rc" command. The vehicle does not answer rc commands.
func (c *Client) SendVelocity(_ context.Context, v vehicle.Velocity) error {
	if c.closed.Load() || c.cmdConn == nil {
		return vehicle.NewTransportError("rc", ErrClosed)
	}

	v = v.Clamp()
	msg := fmt.Sprintf("rc %d %d %d %d", v.Roll, v.Pitch, v.Vertical, v.Yaw)
	if _, err := c.cmdConn.WriteToUDP([]byte(msg), c.remote); err != nil {
		return vehicle.NewTransportError("rc", err)
	}
	return nil
}

// CommandAddr returns the local address receiving command responses
func (c *Client) CommandAddr() net.Addr {
	if c.cmdConn == nil {
		return nil
	}
	return c.cmdConn.LocalAddr()
}

// StateAddr returns the local address receiving the state stream
func (c *Client) StateAddr() net.Addr {
	if c.stateConn == nil {
		return nil
	}
	return c.stateConn.LocalAddr()
}

// Close closes both sockets and waits for the state reader to exit
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		var errs []error
		if c.cmdConn != nil {
			errs = append(errs, c.cmdConn.Close())
		}
		if c.stateConn != nil {
			errs = append(errs, c.stateConn.Close())
		}

		c.wg.Wait()
		c.closeErr = errors.Join(errs...)
	})

	return c.closeErr
}

func (c *Client) open() error {
	if c.cmdConn != nil {
		return nil // already open
	}

	remote, err := net.ResolveUDPAddr("udp", c.config.Address)
	if err != nil {
		return fmt.Errorf("resolving vehicle address: %w", err)
	}

	cmdAddr, err := net.ResolveUDPAddr("udp", c.config.CommandListen)
	if err != nil {
		return fmt.Errorf("resolving command address: %w", err)
	}

	stateAddr, err := net.ResolveUDPAddr("udp", c.config.StateListen)
	if err != nil {
		return fmt.Errorf("resolving state address: %w", err)
	}

	cmdConn, err := net.ListenUDP("udp", cmdAddr)
	if err != nil {
		return fmt.Errorf("listening for command responses: %w", err)
	}

	stateConn, err := net.ListenUDP("udp", stateAddr)
	if err != nil {
		_ = cmdConn.Close()
		return fmt.Errorf("listening for state: %w", err)
	}

	c.remote = remote
	c.cmdConn = cmdConn
	c.stateConn = stateConn

	c.wg.Add(1)
	go c.readState()

	return nil
}

func (c *Client) command(ctx context.Context, cmd string) error {
	if c.closed.Load() || c.cmdConn == nil {
		return vehicle.NewTransportError(cmd, ErrClosed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.drain()

	if _, err := c.cmdConn.WriteToUDP([]byte(cmd), c.remote); err != nil {
		return vehicle.NewTransportError(cmd, err)
	}

	deadline := time.Now().Add(c.config.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.cmdConn.SetReadDeadline(deadline); err != nil {
		return vehicle.NewTransportError(cmd, err)
	}

	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := c.cmdConn.ReadFromUDP(buf)
		if err != nil {
			return vehicle.NewTransportError(cmd, err)
		}
		if !from.IP.Equal(c.remote.IP) || from.Port != c.remote.Port {
			continue // not from the vehicle
		}

		resp := strings.TrimSpace(string(buf[:n]))
		c.logger.Debug("command response", slog.String("command", cmd), slog.String("response", resp))

		if strings.EqualFold(resp, "ok") {
			return nil
		}
		return vehicle.NewTransportError(cmd, fmt.Errorf("vehicle responded %q", resp))
	}
}

// drain discards late responses of earlier commands that timed out. Callers hold c.mu.
func (c *Client) drain() {
	if err := c.cmdConn.SetReadDeadline(time.Now()); err != nil {
		return
	}

	buf := make([]byte, maxPacketSize)
	for {
		if _, _, err := c.cmdConn.ReadFromUDP(buf); err != nil {
			return
		}
	}
}

func (c *Client) readState() {
	defer c.wg.Done()

	buf := make([]byte, maxPacketSize)
	for {
		n, _, err := c.stateConn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || c.closed.Load() {
				return
			}
			c.logger.Warn(fmt.Sprintf("reading state: %s", err.Error()))
			continue
		}

		st, err := ParseState(string(buf[:n]), time.Now())
		if err != nil {
			c.logger.Warn(fmt.Sprintf("parsing state: %s", err.Error()))
			continue
		}

		c.state.Store(st)
	}
}

func (c *Client) latestState() (*State, error) {
	st := c.state.Load()
	if st == nil {
		return nil, ErrNoState
	}
	if age := time.Since(st.ReceivedAt); age > c.config.StateMaxAge {
		return nil, fmt.Errorf("%w: %s old", ErrStaleState, age.Round(time.Millisecond))
	}
	return st, nil
}
