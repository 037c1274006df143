package receiver

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var connectionNum = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "receiver_connections",
		Help: "Open receiver connections",
	},
	[]string{"network"},
)

var packetsReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "receiver_packets_in",
		Help: "Received packets",
	},
	[]string{"network"},
)

var bytesReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "receiver_bytes_in",
		Help: "Received bytes",
	},
	[]string{"network"},
)

var msgReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "receiver_messages_in",
		Help: "Received messages",
	},
	[]string{"type"},
)

var msgDisallowed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "receiver_messages_disallowed",
		Help: "Messages dropped because the connection state does not allow them",
	},
	[]string{"type"},
)

var metricsOnce sync.Once

func InitMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(connectionNum)
		prometheus.MustRegister(packetsReceived)
		prometheus.MustRegister(bytesReceived)
		prometheus.MustRegister(msgReceived)
		prometheus.MustRegister(msgDisallowed)
	})
}
