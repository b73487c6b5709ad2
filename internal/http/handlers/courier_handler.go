// Courier handlers: position reports, availability, realtime socket.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"beam/internal/dispatch"
	"beam/internal/modules/location"
	"beam/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks belong to the gateway in front of this service.
	CheckOrigin: func(*http.Request) bool { return true },
}

type CourierHandler struct {
	location *location.Service
	registry *dispatch.WSRegistry
}

func NewCourierHandler(svc *location.Service, registry *dispatch.WSRegistry) *CourierHandler {
	return &CourierHandler{location: svc, registry: registry}
}

type locationReq struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	VehicleClass string  `json:"vehicle_class"`
	Heading      float64 `json:"heading"`
	SpeedKmh     float64 `json:"speed_kmh"`
}

func (h *CourierHandler) UpdateLocation(c *gin.Context) {
	id := c.Param("id")
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.location.Update(c.Request.Context(), location.Sample{
		CourierID:    types.ID(id),
		Position:     types.Point{Lat: req.Lat, Lng: req.Lng},
		VehicleClass: req.VehicleClass,
		Heading:      req.Heading,
		SpeedKmh:     req.SpeedKmh,
	})
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

type availabilityReq struct {
	Online       bool     `json:"online"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	VehicleClass string   `json:"vehicle_class"`
}

func (h *CourierHandler) SetAvailability(c *gin.Context) {
	id := c.Param("id")
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var p *types.Point
	if req.Lat != nil && req.Lng != nil {
		p = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	if err := h.location.SetAvailability(c.Request.Context(), types.ID(id), req.Online, p, req.VehicleClass); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"courier_id": id, "online": req.Online})
}

func (h *CourierHandler) RecentLocations(c *gin.Context) {
	id := c.Param("id")
	snaps, err := h.location.Recent(c.Request.Context(), types.ID(id), 20)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"courier_id": id, "snapshots": snaps})
}

// Connect upgrades the courier to a websocket session so job offers reach
// them in realtime. The connection is read until the client closes it.
func (h *CourierHandler) Connect(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing courier id")
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.registry.Add(types.ID(id), conn)

	go func() {
		defer func() {
			h.registry.Remove(types.ID(id))
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
