package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var authOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Authentication operations by outcome",
	},
	[]string{"operation", "result"},
)

func recordAuth(operation, result string) {
	authOperationsTotal.WithLabelValues(operation, result).Inc()
}
