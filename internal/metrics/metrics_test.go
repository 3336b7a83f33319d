package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/custody-escrow/backend/internal/events"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewRegistry()
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/escrows/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })
	app.Get("/metrics", m.Handler())

	for _, id := range []string{"1", "2", "3"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/escrows/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	got := gather(t, m)
	assert.Equal(t, 3.0, got["custody_escrow_http_requests_total,method=GET,route=/escrows/:id,status=404"])

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "custody_escrow_http_requests_total"))
}

func TestTrackCountsEvents(t *testing.T) {
	m := NewRegistry()
	bus := events.NewMemoryBus()
	require.NoError(t, m.Track(context.Background(), bus))

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, events.StreamEscrow, events.Event{Type: events.EventEscrowFunded}))
	require.NoError(t, bus.Publish(ctx, events.StreamEscrow, events.Event{Type: events.EventEscrowFunded}))
	require.NoError(t, bus.Publish(ctx, events.StreamAccount, events.Event{Type: events.EventBalanceCredited}))

	got := gather(t, m)
	assert.Equal(t, 2.0, got["custody_escrow_events_total,stream=events:escrow,type=escrow_funded"])
	assert.Equal(t, 1.0, got["custody_escrow_events_total,stream=events:account,type=balance_credited"])
}

func gather(t *testing.T, m *Registry) map[string]float64 {
	t.Helper()
	families, err := m.registry.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			key := f.GetName()
			for _, l := range metric.GetLabel() {
				key += "," + l.GetName() + "=" + l.GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}
