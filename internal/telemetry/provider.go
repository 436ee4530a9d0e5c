package telemetry

// Provider gives read access to the latest telemetry
type Provider interface {
	Get() Telemetry
}
