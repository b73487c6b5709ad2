package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"beam/internal/geo"
	"beam/internal/maps"
	"beam/internal/modules/pricing"
	"beam/internal/types"
)

type PricingHandler struct {
	pricing   *pricing.Service
	estimator *maps.Estimator
}

func NewPricingHandler(svc *pricing.Service, estimator *maps.Estimator) *PricingHandler {
	return &PricingHandler{pricing: svc, estimator: estimator}
}

type quoteReq struct {
	PickupLat    float64 `json:"pickup_lat"`
	PickupLng    float64 `json:"pickup_lng"`
	DropoffLat   float64 `json:"dropoff_lat"`
	DropoffLng   float64 `json:"dropoff_lng"`
	ServiceClass string  `json:"service_class"`
	Region       string  `json:"region"`
}

// Quote prices a prospective trip without creating a job.
func (h *PricingHandler) Quote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ServiceClass == "" || req.Region == "" {
		writeError(c, http.StatusBadRequest, "missing service_class or region")
		return
	}

	est := h.estimator.Estimate(c.Request.Context(),
		types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		types.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
	)
	q, err := h.pricing.Quote(c.Request.Context(), req.ServiceClass, req.Region, est.DistanceKm, est.Duration.Minutes())
	if err != nil {
		writePricingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"quote":        q,
		"distance_km":  est.DistanceKm,
		"duration_min": int(est.Duration.Minutes()),
		"eta_label":    geo.FormatETA(est.Duration),
		"routed":       est.Routed,
	})
}
