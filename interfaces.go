package aerostat

import "io"

// Transport is the byte stream to the aerostat, typically a serial port.
type Transport interface {
	io.ReadWriteCloser
}

// Forwarder receives every frame after it has been appended to the flight state.
type Forwarder interface {
	Forward(frame *TelemetryFrame) error
}

// LineSink receives lines that are not telemetry, for display as log text.
type LineSink interface {
	Line(text string)
}

// LatestSource is the read side of a FlightState used by periodic consumers.
type LatestSource interface {
	LatestIndexed() (frame TelemetryFrame, index int, ok bool)
}
