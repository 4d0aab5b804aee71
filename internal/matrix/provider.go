// Package matrix turns geographic points into travel-cost matrices for the
// solver. The solver itself never calls it.
package matrix

import (
	"context"
	"errors"

	"vrpengine/internal/model"
)

var (
	// ErrFetch wraps every failure to obtain a matrix from a remote service.
	ErrFetch = errors.New("matrix: fetch failed")
	// ErrNoAPIKey is returned when a remote provider is built without credentials.
	ErrNoAPIKey = errors.New("matrix: api key required")
)

// Provider returns a square matrix where cell [i][j] is the cost of
// travelling from points[i] to points[j]. The diagonal is 0.
type Provider interface {
	Matrix(ctx context.Context, points []model.GeoPoint) ([][]float64, error)
}
