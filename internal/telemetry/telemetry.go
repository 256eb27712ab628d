package telemetry

import (
	"time"
)

type Provider interface {
	Get() *Telemetry
}

// Telemetry is the link and board health as observed by the receiver
type Telemetry struct {
	Timestamp     time.Time `json:"timestamp"`              // Time the telemetry was sampled
	BatteryVolts  *float64  `json:"batteryVolts,omitempty"` // Last battery voltage reported by the board
	LastPacket    time.Time `json:"lastPacket"`             // Arrival time of the most recent datagram
	Packets       uint64    `json:"packets"`                // Datagrams accepted
	Frames        uint64    `json:"frames"`                 // Frames decoded
	Malformed     uint64    `json:"malformed"`              // Datagrams rejected by the decoder
	BytesReceived uint64    `json:"bytesReceived"`          // Payload bytes read from the socket
	Resizes       uint64    `json:"resizes"`                // Ring buffer reallocations
}

// Stale reports whether no packet arrived within d of the telemetry timestamp
func (t *Telemetry) Stale(d time.Duration) bool {
	return t.LastPacket.IsZero() || t.Timestamp.Sub(t.LastPacket) > d
}
