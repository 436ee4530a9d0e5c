package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Flight is a recorded flight session
type Flight struct {
	ID        int64
	UUID      uuid.UUID
	StartTime time.Time
	Vehicle   string
	Config    *string       // JSON encoded flight configuration
	Report    *FlightReport // nil until the flight has finished
}

// FlightReport is the final vehicle status of a flight
type FlightReport struct {
	EndTime time.Time
	Cause   string
	Battery int // percent, -1 when unavailable
	Cycles  int
	Elapsed time.Duration
	Dropped int     // samples that were not persisted
	Error   *string // shutdown or link failure, if any
}

type flightData struct {
	ID        int64
	UUID      uuid.UUID
	StartTime time.Time
	Vehicle   string
	Config    sql.NullString

	EndTime   sql.NullTime
	Cause     sql.NullString
	Battery   sql.NullInt64
	Cycles    sql.NullInt64
	ElapsedNS sql.NullInt64
	Dropped   sql.NullInt64
	Error     sql.NullString
}

func (d *flightData) scanArgs() []any {
	return []any{
		&d.ID, &d.UUID, &d.StartTime, &d.Vehicle, &d.Config,
		&d.EndTime, &d.Cause, &d.Battery, &d.Cycles, &d.ElapsedNS, &d.Dropped, &d.Error,
	}
}

func (d *flightData) toFlight() *Flight {
	f := Flight{
		ID:        d.ID,
		UUID:      d.UUID,
		StartTime: d.StartTime,
		Vehicle:   d.Vehicle,
		Config:    fromNullString(d.Config),
	}

	if d.EndTime.Valid {
		f.Report = &FlightReport{
			EndTime: d.EndTime.Time,
			Cause:   d.Cause.String,
			Battery: int(d.Battery.Int64),
			Cycles:  int(d.Cycles.Int64),
			Elapsed: time.Duration(d.ElapsedNS.Int64),
			Dropped: int(d.Dropped.Int64),
			Error:   fromNullString(d.Error),
		}
	}

	return &f
}
