package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vrpengine/internal/model"
)

const DefaultTomTomBaseURL = "https://api.tomtom.com"

// TomTom fetches travel-time matrices from the TomTom Matrix Routing v2 API.
type TomTom struct {
	baseURL string
	apiKey  string
	client  *http.Client

	// Limiter, when set, is waited on before every request.
	Limiter *rate.Limiter
	// MaxAttempts bounds retries of 429 and 5xx responses.
	MaxAttempts int
	// Backoff is the delay before the first retry; it doubles each attempt.
	Backoff time.Duration
}

func NewTomTom(apiKey, baseURL string, client *http.Client) (*TomTom, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultTomTomBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TomTom{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		client:      client,
		MaxAttempts: 3,
		Backoff:     200 * time.Millisecond,
	}, nil
}

type ttPoint struct {
	Point struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"point"`
}

type ttRequest struct {
	Origins      []ttPoint `json:"origins"`
	Destinations []ttPoint `json:"destinations"`
}

type ttCell struct {
	OriginIndex      int `json:"originIndex"`
	DestinationIndex int `json:"destinationIndex"`
	RouteSummary     *struct {
		TravelTimeInSeconds float64 `json:"travelTimeInSeconds"`
	} `json:"routeSummary"`
}

type ttResponse struct {
	Data *[]ttCell `json:"data"`
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Matrix returns travel times in seconds between every pair of points.
// Only a 200 response carrying a data array is a success; anything else
// is reported as ErrFetch.
func (t *TomTom) Matrix(ctx context.Context, points []model.GeoPoint) ([][]float64, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrFetch)
	}
	body := ttRequest{
		Origins:      make([]ttPoint, len(points)),
		Destinations: make([]ttPoint, len(points)),
	}
	for i, p := range points {
		body.Origins[i].Point.Latitude, body.Origins[i].Point.Longitude = p.Lat, p.Lng
	}
	copy(body.Destinations, body.Origins)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal matrix request: %w", err)
	}

	raw, err := t.postWithRetry(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	var mr ttResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrFetch, err)
	}
	if mr.Data == nil {
		return nil, fmt.Errorf("%w: response has no data field", ErrFetch)
	}

	n := len(points)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	seen := make([]bool, n*n)
	for _, c := range *mr.Data {
		if c.OriginIndex < 0 || c.OriginIndex >= n || c.DestinationIndex < 0 || c.DestinationIndex >= n {
			return nil, fmt.Errorf("%w: cell index (%d,%d) out of range", ErrFetch, c.OriginIndex, c.DestinationIndex)
		}
		if c.OriginIndex == c.DestinationIndex {
			continue
		}
		if c.RouteSummary == nil {
			return nil, fmt.Errorf("%w: no route from %d to %d", ErrFetch, c.OriginIndex, c.DestinationIndex)
		}
		out[c.OriginIndex][c.DestinationIndex] = c.RouteSummary.TravelTimeInSeconds
		seen[c.OriginIndex*n+c.DestinationIndex] = true
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && !seen[i*n+j] {
				return nil, fmt.Errorf("%w: missing cell (%d,%d)", ErrFetch, i, j)
			}
		}
	}
	return out, nil
}

func (t *TomTom) endpoint() string {
	return t.baseURL + "/routing/matrix/2?key=" + url.QueryEscape(t.apiKey)
}

func (t *TomTom) postWithRetry(ctx context.Context, payload []byte) ([]byte, error) {
	attempts := t.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := t.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		b, err := t.post(ctx, payload)
		if err == nil {
			return b, nil
		}
		lastErr = err

		retry := false
		var se *statusError
		if errors.As(err, &se) {
			switch se.Code {
			case http.StatusTooManyRequests, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == attempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (t *TomTom) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}
