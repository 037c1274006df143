package client

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var bytesSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "client_bytes_out",
		Help: "Bytes written to the receiver",
	},
	[]string{"network"},
)

var packetsSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "client_packets_out",
		Help: "Packets written to the receiver",
	},
	[]string{"network", "result"},
)

var metricsOnce sync.Once

func InitMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(bytesSent)
		prometheus.MustRegister(packetsSent)
	})
}
