package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage metrics for Cassandra messaging and Redis availability
var (
	CassandraQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cassandra_query_duration_seconds",
		Help:    "Cassandra query latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation", "table"})

	CassandraQueryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cassandra_query_total",
		Help: "Total number of Cassandra queries executed",
	}, []string{"operation", "table", "status"})

	ChatMessageCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_created_total",
		Help: "Total number of channel messages created over the socket",
	}, []string{"message_type"})

	RedisAvailableGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_available",
		Help: "Whether Redis is available (1) or the service runs on in-memory presence (0)",
	})
)

// ObserveCassandraQuery records latency and outcome of one Cassandra query
func ObserveCassandraQuery(operation, table string, start time.Time, err error) {
	CassandraQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	CassandraQueryTotal.WithLabelValues(operation, table, status).Inc()
}

// RecordRedisAvailable records whether Redis is in use
func RecordRedisAvailable(available bool) {
	if available {
		RedisAvailableGauge.Set(1)
	} else {
		RedisAvailableGauge.Set(0)
	}
}
