package tello

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoState is returned when no state packet has been received yet
	ErrNoState = errors.New("no state received")

	// ErrStaleState is returned when the latest state packet is older than the allowed age
	ErrStaleState = errors.New("state is stale")
)

// State is one decoded packet of the vehicle state stream, e.g.
//
//	pitch:0;roll:0;yaw:0;vgx:0;vgy:0;vgz:0;templ:60;temph:63;tof:10;h:80;bat:87;baro:12.3;time:4;
type State struct {
	Height     float64           // "h", height above the takeoff point in cm
	Battery    int               // "bat", percent
	Values     map[string]string // every raw field of the packet
	ReceivedAt time.Time
}

// ParseState decodes a state packet. Height and battery fields are mandatory.
func ParseState(packet string, receivedAt time.Time) (*State, error) {
	values := make(map[string]string)
	for _, field := range strings.Split(strings.TrimSpace(packet), ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		key, value, ok := strings.Cut(field, ":")
		if !ok {
			return nil, fmt.Errorf("malformed field %q", field)
		}
		values[key] = value
	}

	h, ok := values["h"]
	if !ok {
		return nil, fmt.Errorf("missing height field")
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid height: %w", err)
	}
	if math.IsNaN(height) || math.IsInf(height, 0) {
		return nil, fmt.Errorf("invalid height: %s", h)
	}

	b, ok := values["bat"]
	if !ok {
		return nil, fmt.Errorf("missing battery field")
	}
	battery, err := strconv.Atoi(b)
	if err != nil {
		return nil, fmt.Errorf("invalid battery: %w", err)
	}

	return &State{
		Height:     height,
		Battery:    battery,
		Values:     values,
		ReceivedAt: receivedAt,
	}, nil
}
