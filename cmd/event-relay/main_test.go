package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/custody-escrow/backend/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRelayForwardsSignedEvent(t *testing.T) {
	var got map[string]any
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sig = r.Header.Get("X-Signature")
		mac := hmac.New(sha256.New, []byte("s3cret"))
		mac.Write(body)
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := newRelay(srv.URL, "s3cret", zap.NewNop())
	r.forward(context.Background(), events.StreamEscrow, events.Event{
		Type:    events.EventEscrowFunded,
		Payload: map[string]any{"escrow_id": 3},
	})

	require.NotNil(t, got)
	assert.Equal(t, events.StreamEscrow, got["stream"])
	assert.Equal(t, events.EventEscrowFunded, got["type"])
	assert.NotEmpty(t, sig)
}

func TestRelayRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newRelay(srv.URL, "", zap.NewNop())
	r.forward(context.Background(), events.StreamAccount, events.Event{Type: events.EventBalanceCredited})

	assert.Equal(t, int32(2), calls.Load())
}
