package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"vrpengine/internal/metrics"
	"vrpengine/internal/store"
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
	Interval    time.Duration

	// Secret signs each body into X-Signature when set.
	Secret string
}

func NewWorker(s store.Store, secret string, maxAttempts int, timeout time.Duration) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: timeout}, Stop: make(chan struct{}), MaxAttempts: maxAttempts, Secret: secret, Interval: time.Second}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueCallbacks(ctx, 50)
	if err != nil {
		log.WithError(err).Warn("fetch due callbacks")
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.CallbackDelivery) {
	entry := log.WithFields(log.Fields{"run_id": it.RunID, "tenant": it.TenantID, "attempt": it.Attempts + 1})
	success := false
	code := 0
	lastErr := ""
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-Type", it.EventType)
		if w.Secret != "" {
			req.Header.Set("X-Signature", SignHMAC(w.Secret, it.Payload))
		}
		var resp *http.Response
		resp, err = w.HTTP.Do(req)
		if err == nil {
			code = resp.StatusCode
			_ = resp.Body.Close()
			success = code >= 200 && code < 300
		}
	}
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		lastErr = err.Error()
	} else if !success {
		lastErr = "status " + strconv.Itoa(code)
	}

	status := "delivered"
	switch {
	case success:
		_ = w.Store.MarkCallback(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = "failed"
		entry.WithField("error", lastErr).Warn("callback dropped after max attempts")
		_ = w.Store.FailCallback(ctx, it.ID, lastErr, code, latency)
	default:
		status = "retry"
		next := time.Now().Add(nextBackoff(it.Attempts))
		_ = w.Store.MarkCallback(ctx, it.ID, false, &next, lastErr, code, latency)
	}
	metrics.CallbackDeliveries.WithLabelValues(status).Inc()
	metrics.CallbackLatency.WithLabelValues(status).Observe(float64(latency))
	entry.WithFields(log.Fields{"status": status, "code": code, "dur_ms": latency}).Debug("callback attempt")
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
