package matrix

import (
	"context"
	"math"

	"vrpengine/internal/model"
)

// Haversine estimates travel seconds from great-circle distance at a fixed
// speed. It needs no network and backs the service when no TomTom key is set.
type Haversine struct {
	SpeedKph float64
}

const defaultSpeedKph = 40

func (h Haversine) Matrix(_ context.Context, points []model.GeoPoint) ([][]float64, error) {
	speed := h.SpeedKph
	if speed <= 0 {
		speed = defaultSpeedKph
	}
	mps := speed * 1000 / 3600
	out := make([][]float64, len(points))
	for i, a := range points {
		out[i] = make([]float64, len(points))
		for j, b := range points {
			if i == j {
				continue
			}
			out[i][j] = math.Round(haversineMeters(a.Lat, a.Lng, b.Lat, b.Lng) / mps)
		}
	}
	return out, nil
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
