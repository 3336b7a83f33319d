package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/custody-escrow/backend/internal/events"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
}

func NewRegistry() *Registry {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_escrow_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"method", "route", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custody_escrow_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	evs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_escrow_events_total",
		Help: "Committed escrow and account events by type",
	}, []string{"stream", "type"})

	r := prometheus.NewRegistry()
	r.MustRegister(requests, duration, evs)

	return &Registry{
		registry:        r,
		requestsTotal:   requests,
		requestDuration: duration,
		eventsTotal:     evs,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Registry) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware labels requests with the matched route pattern, not the raw path.
func (m *Registry) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		m.requestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

func (m *Registry) ObserveEvent(stream string, event events.Event) {
	m.eventsTotal.WithLabelValues(stream, event.Type).Inc()
}

// Track counts every event published on the escrow and account streams.
func (m *Registry) Track(ctx context.Context, subscriber events.Subscriber) error {
	for _, stream := range []string{events.StreamEscrow, events.StreamAccount} {
		stream := stream
		if err := subscriber.Subscribe(ctx, stream, func(ev events.Event) {
			m.ObserveEvent(stream, ev)
		}); err != nil {
			return err
		}
	}
	return nil
}
