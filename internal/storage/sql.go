package storage

import (
	_ "embed"
)

var (
	//go:embed schema.sql
	initSchemaSQL string

	//go:embed indexes.sql
	initIndexesSQL string
)

const (
	insertFlightSQL = `
INSERT INTO flights (uuid,
                     start_time,
                     vehicle,
                     config)
VALUES (?, ?, ?, ?)`

	selectFlightSQL = `
SELECT 
    f.id, 
    f.uuid, 
    f.start_time, 
    f.vehicle, 
    f.config,
    r.end_time,
    r.cause,
    r.battery,
    r.cycles,
    r.elapsed_ns,
    r.dropped,
    r.error
FROM flights f
LEFT JOIN reports r ON r.flight_id = f.id
WHERE 
    f.uuid = ?`

	selectFlightsSQL = `
SELECT 
    f.id, 
    f.uuid, 
    f.start_time, 
    f.vehicle, 
    f.config,
    r.end_time,
    r.cause,
    r.battery,
    r.cycles,
    r.elapsed_ns,
    r.dropped,
    r.error
FROM flights f
LEFT JOIN reports r ON r.flight_id = f.id
ORDER BY f.start_time, f.id`

	insertSamplesSQL = `
INSERT INTO samples (flight_id,
                     cycle,
                     elapsed_ns,
                     altitude,
                     error,
                     output,
                     command)
VALUES `

	selectSamplesSQL = `
SELECT 
    cycle, 
    elapsed_ns, 
    altitude, 
    error, 
    output, 
    command
FROM samples
WHERE 
    flight_id = ?
ORDER BY cycle`

	insertReportSQL = `
INSERT INTO reports (flight_id,
                     end_time,
                     cause,
                     battery,
                     cycles,
                     elapsed_ns,
                     dropped,
                     error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)
