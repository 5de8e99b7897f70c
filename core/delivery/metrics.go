package delivery

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts delivery outcomes.
type Metrics struct {
	issued   *prometheus.CounterVec
	denied   *prometheus.CounterVec
	chapters prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "issued_total",
			Help:      "Delivery link sets handed out, by purchase format.",
		}, []string{"format"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "denied_total",
			Help:      "Refused delivery requests, by reason.",
		}, []string{"reason"}),
		chapters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "delivery",
			Name:      "chapters_per_delivery",
			Help:      "Chapter links bundled into one audiobook delivery.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.issued, m.denied, m.chapters} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register delivery metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) issue(d Delivery) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(string(d.Purchase.Format)).Inc()
	if len(d.Chapters) > 0 {
		m.chapters.Observe(float64(len(d.Chapters)))
	}
}

func (m *Metrics) deny(err error) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(reason(err)).Inc()
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrPaymentIncomplete):
		return "payment_incomplete"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrLimitReached):
		return "limit_reached"
	case errors.Is(err, ErrContentUnavailable):
		return "content_unavailable"
	case errors.Is(err, ErrNoAudio):
		return "no_audio"
	}
	return "error"
}
