package storage

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for object store calls.
type Observer interface {
	RecordOperation(op string, duration time.Duration, err error)
	RecordUpload(sizeBytes int64)
}

// PrometheusObserver exports object store metrics to Prometheus.
type PrometheusObserver struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	uploaded prometheus.Counter
}

func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "object_store"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of object store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed object store operations.",
		}, []string{"operation"}),
		uploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes written to the object store.",
		}),
	}
	for _, c := range []prometheus.Collector{o.duration, o.errors, o.uploaded} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register object store metric: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) RecordOperation(op string, d time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op).Inc()
	}
}

func (o *PrometheusObserver) RecordUpload(size int64) {
	if o == nil {
		return
	}
	o.uploaded.Add(float64(size))
}

type nopObserver struct{}

func (nopObserver) RecordOperation(string, time.Duration, error) {}
func (nopObserver) RecordUpload(int64)                           {}
