// Travel estimates from the Google Maps API, with a great-circle fallback.
package maps

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"beam/internal/config"
	"beam/internal/geo"
	"beam/internal/types"
)

// Estimate is a travel prediction between two points.
type Estimate struct {
	DistanceKm float64
	Duration   time.Duration
	// Routed reports whether the estimate came from the routing API.
	// False means the straight-line fallback was used.
	Routed bool
}

// Router produces a driving estimate between two points.
type Router interface {
	Route(ctx context.Context, origin, dest types.Point) (Estimate, error)
}

// GoogleRouter routes through the Google Directions API.
type GoogleRouter struct {
	client *maps.Client
}

func NewGoogleRouter(apiKey string) (*GoogleRouter, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &GoogleRouter{client: client}, nil
}

func (g *GoogleRouter) Route(ctx context.Context, origin, dest types.Point) (Estimate, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", dest.Lat, dest.Lng),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Estimate{}, fmt.Errorf("no route found")
	}
	leg := routes[0].Legs[0]
	return Estimate{
		DistanceKm: float64(leg.Distance.Meters) / 1000,
		Duration:   leg.Duration,
		Routed:     true,
	}, nil
}

// Estimator serves travel estimates, degrading to haversine distance at an
// assumed speed when no router is configured or the API call fails.
type Estimator struct {
	router Router // nil when no API key is configured
	cfg    config.MapsConfig
	log    zerolog.Logger
}

func NewEstimator(router Router, cfg config.MapsConfig, log zerolog.Logger) *Estimator {
	return &Estimator{router: router, cfg: cfg, log: log}
}

func (e *Estimator) Estimate(ctx context.Context, origin, dest types.Point) Estimate {
	if e.router != nil {
		est, err := e.router.Route(ctx, origin, dest)
		if err == nil {
			return est
		}
		e.log.Warn().Err(err).Msg("route lookup failed, using fallback")
	}
	km := geo.DistanceMeters(origin, dest) / 1000
	return Estimate{
		DistanceKm: km,
		Duration:   geo.ETA(km, e.cfg.DefaultSpeedKmh),
	}
}
