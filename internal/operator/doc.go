// Package operator exposes the running flight to an operator over HTTP.
//
//   - GET  /api/v1/health              liveness and flight status, never authenticated
//   - GET  /api/v1/parameters          current setpoint and gain with their limits
//   - PUT  /api/v1/parameters/setpoint {"value": 60}
//   - PUT  /api/v1/parameters/gain     {"value": 1.2}
//   - POST /api/v1/abort               land at the next control cycle
//
// Out-of-range updates are answered with 422 and leave the previous value in place. When a
// secret is configured every endpoint except health requires an HS256 bearer token; the
// mutating ones also require the "control" scope.
package operator
