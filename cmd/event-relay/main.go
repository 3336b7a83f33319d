package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custody-escrow/backend/internal/config"
	"github.com/custody-escrow/backend/internal/db"
	"github.com/custody-escrow/backend/internal/events"
	"go.uber.org/zap"
)

// Event relay: subscribes to Redis event streams and forwards every event to an
// external webhook, signed with EVENT_WEBHOOK_SECRET.

const (
	maxAttempts    = 3
	retryBackoff   = 500 * time.Millisecond
	requestTimeout = 5 * time.Second
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.EventWebhookURL == "" {
		log.Fatal("EVENT_WEBHOOK_URL is required")
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "event-relay", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	relay := newRelay(cfg.EventWebhookURL, cfg.EventWebhookSecret, log)

	for _, stream := range []string{events.StreamEscrow, events.StreamAccount} {
		stream := stream
		if err := subscriber.Subscribe(ctx, stream, func(event events.Event) {
			relay.forward(ctx, stream, event)
		}); err != nil {
			log.Fatal("failed to subscribe", zap.String("stream", stream), zap.Error(err))
		}
	}

	log.Info("event-relay started", zap.String("webhook", cfg.EventWebhookURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down event-relay")
	cancel()
}

type relay struct {
	url    string
	secret string
	client *http.Client
	log    *zap.Logger
}

func newRelay(url, secret string, log *zap.Logger) *relay {
	return &relay{url: url, secret: secret, client: &http.Client{Timeout: requestTimeout}, log: log}
}

// sign returns the hex HMAC-SHA256 of body, or "" without a secret.
func (r *relay) sign(body []byte) string {
	if r.secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(r.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *relay) forward(ctx context.Context, stream string, event events.Event) {
	body, err := json.Marshal(map[string]any{
		"stream":  stream,
		"type":    event.Type,
		"payload": event.Payload,
	})
	if err != nil {
		r.log.Warn("failed to encode event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = r.post(ctx, body)
		if err == nil {
			r.log.Debug("event forwarded", zap.String("type", event.Type))
			return
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	r.log.Warn("failed to forward event", zap.String("type", event.Type), zap.Int("attempts", maxAttempts), zap.Error(err))
}

func (r *relay) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sig := r.sign(body); sig != "" {
		req.Header.Set("X-Signature", sig)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
