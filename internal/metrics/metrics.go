package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luma/parcel/protocol"
)

var (
	registerOnce sync.Once

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parcel",
			Name:      "frames_total",
			Help:      "Frames received, by opcode.",
		},
		[]string{"opcode"},
	)
	malformedPackets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parcel",
			Name:      "malformed_packets_total",
			Help:      "PACKET frames whose fields did not match the payload length.",
		},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parcel",
			Name:      "handshakes_total",
			Help:      "Server side handshakes, by result.",
		},
		[]string{"result"},
	)
	connections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parcel",
			Name:      "connections_total",
			Help:      "Accepted client connections.",
		},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parcel",
			Name:      "active_connections",
			Help:      "Client connections currently being served.",
		},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(frames, malformedPackets, handshakes, connections, activeConnections)
	})
}

// OpcodeLabel keeps the label set bounded, every opcode we don't know is "unknown".
func OpcodeLabel(op protocol.Opcode) string {
	if op.Known() {
		return op.String()
	}

	return "unknown"
}

func RecordFrame(op protocol.Opcode) {
	Register()
	frames.WithLabelValues(OpcodeLabel(op)).Inc()
}

func RecordMalformedPacket() {
	Register()
	malformedPackets.Inc()
}

func RecordHandshake(ok bool) {
	Register()
	result := "ok"
	if !ok {
		result = "rejected"
	}
	handshakes.WithLabelValues(result).Inc()
}

// ConnectionOpened returns the func to call once the connection is done.
func ConnectionOpened() func() {
	Register()
	connections.Inc()
	activeConnections.Inc()

	return activeConnections.Dec
}
