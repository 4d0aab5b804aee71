package matrix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpengine/internal/model"
)

var twoPoints = []model.GeoPoint{{Lat: 25.2778, Lng: 55.3730}, {Lat: 25.2780, Lng: 55.3469}}

func newTestTomTom(t *testing.T, h http.HandlerFunc) *TomTom {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tt, err := NewTomTom("k1", srv.URL, srv.Client())
	require.NoError(t, err)
	tt.Backoff = time.Millisecond
	return tt
}

func TestTomTomMatrix(t *testing.T) {
	tt := newTestTomTom(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/routing/matrix/2", r.URL.Path)
		assert.Equal(t, "k1", r.URL.Query().Get("key"))
		var body ttRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Origins, 2)
		assert.Equal(t, 25.2778, body.Origins[0].Point.Latitude)
		_, _ = w.Write([]byte(`{"data":[
			{"originIndex":0,"destinationIndex":0,"routeSummary":{"travelTimeInSeconds":0}},
			{"originIndex":0,"destinationIndex":1,"routeSummary":{"travelTimeInSeconds":420}},
			{"originIndex":1,"destinationIndex":0,"routeSummary":{"travelTimeInSeconds":380}},
			{"originIndex":1,"destinationIndex":1}
		]}`))
	})

	m, err := tt.Matrix(context.Background(), twoPoints)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 420}, {380, 0}}, m)
}

func TestTomTomFetchFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"forbidden", http.StatusForbidden, `{"detailedError":{"message":"bad key"}}`},
		{"no data", http.StatusOK, `{"statistics":{}}`},
		{"missing cell", http.StatusOK, `{"data":[{"originIndex":0,"destinationIndex":1,"routeSummary":{"travelTimeInSeconds":1}}]}`},
		{"unroutable cell", http.StatusOK, `{"data":[{"originIndex":0,"destinationIndex":1},{"originIndex":1,"destinationIndex":0,"routeSummary":{"travelTimeInSeconds":1}}]}`},
		{"bad index", http.StatusOK, `{"data":[{"originIndex":5,"destinationIndex":1}]}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tt := newTestTomTom(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := tt.Matrix(context.Background(), twoPoints)
			require.ErrorIs(t, err, ErrFetch)
		})
	}
}

func TestTomTomRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	tt := newTestTomTom(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[
			{"originIndex":0,"destinationIndex":1,"routeSummary":{"travelTimeInSeconds":5}},
			{"originIndex":1,"destinationIndex":0,"routeSummary":{"travelTimeInSeconds":6}}
		]}`))
	})
	m, err := tt.Matrix(context.Background(), twoPoints)
	require.NoError(t, err)
	assert.Equal(t, 5.0, m[0][1])
	assert.EqualValues(t, 3, calls.Load())
}

func TestTomTomDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	tt := newTestTomTom(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := tt.Matrix(context.Background(), twoPoints)
	require.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "status 400")
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewTomTomRequiresKey(t *testing.T) {
	_, err := NewTomTom("  ", "", nil)
	require.ErrorIs(t, err, ErrNoAPIKey)
}

func TestHaversineMatrix(t *testing.T) {
	m, err := Haversine{SpeedKph: 36}.Matrix(context.Background(), []model.GeoPoint{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01},
	})
	require.NoError(t, err)
	assert.Zero(t, m[0][0])
	// 0.01 degrees of longitude at the equator is about 1112 m; 10 m/s.
	assert.InDelta(t, 111, m[0][1], 1)
	assert.Equal(t, m[0][1], m[1][0])
}
