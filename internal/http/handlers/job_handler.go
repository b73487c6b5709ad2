// Job lifecycle handlers: create, fetch, cancel, start, complete.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"beam/internal/modules/beaming"
	"beam/internal/modules/job"
	"beam/internal/types"
)

type JobHandler struct {
	jobs   *job.Service
	search *beaming.Service
	// baseCtx outlives individual requests; searches launched from a
	// request keep running after its response and stop on shutdown.
	baseCtx context.Context
}

func NewJobHandler(baseCtx context.Context, jobs *job.Service, search *beaming.Service) *JobHandler {
	return &JobHandler{jobs: jobs, search: search, baseCtx: baseCtx}
}

type createJobReq struct {
	Kind           string  `json:"kind"`
	RequesterID    string  `json:"requester_id"`
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	DropoffLat     float64 `json:"dropoff_lat"`
	DropoffLng     float64 `json:"dropoff_lng"`
	PickupAddress  string  `json:"pickup_address"`
	DropoffAddress string  `json:"dropoff_address"`
	ServiceClass   string  `json:"service_class"`
	Region         string  `json:"region"`
}

func (h *JobHandler) Create(c *gin.Context) {
	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	j, err := h.jobs.Create(c.Request.Context(), job.CreateCommand{
		Kind:           job.Kind(req.Kind),
		RequesterID:    types.ID(req.RequesterID),
		Pickup:         types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Dropoff:        types.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		ServiceClass:   req.ServiceClass,
		Region:         req.Region,
	})
	if err != nil {
		writeJobError(c, err)
		return
	}

	// Kick off the courier search in the background; the request context
	// ends with this response, so the search runs on the server context.
	h.search.Launch(h.baseCtx, j.ID)

	writeJSON(c, http.StatusCreated, jobView(j))
}

func (h *JobHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing job id")
		return
	}
	j, err := h.jobs.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, jobView(j))
}

type cancelJobReq struct {
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason"`
}

func (h *JobHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	var req cancelJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Reason == "" {
		req.Reason = job.ReasonUserCancel
	}
	cmd := job.CancelCommand{
		JobID:     types.ID(id),
		ActorType: req.ActorType,
		Reason:    req.Reason,
	}
	if req.ActorID != "" {
		actor := types.ID(req.ActorID)
		cmd.ActorID = &actor
	}
	if err := h.jobs.Cancel(c.Request.Context(), cmd); err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": job.StatusCancelled})
}

type actorReq struct {
	ActorID string `json:"actor_id"`
}

func (h *JobHandler) Start(c *gin.Context) {
	id := c.Param("id")
	var req actorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.jobs.Start(c.Request.Context(), job.StartCommand{
		JobID:   types.ID(id),
		ActorID: types.ID(req.ActorID),
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": job.StatusInProgress})
}

func (h *JobHandler) Complete(c *gin.Context) {
	id := c.Param("id")
	var req actorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.jobs.Complete(c.Request.Context(), job.CompleteCommand{
		JobID:   types.ID(id),
		ActorID: types.ID(req.ActorID),
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": job.StatusCompleted})
}

func (h *JobHandler) Events(c *gin.Context) {
	id := c.Param("id")
	events, err := h.jobs.Events(c.Request.Context(), types.ID(id))
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"events": events})
}

func jobView(j *job.Job) map[string]any {
	v := map[string]any{
		"job_id":          j.ID,
		"kind":            j.Kind,
		"status":          j.Status,
		"status_label":    job.StatusLabel(j.Kind, j.Status),
		"requester_id":    j.RequesterID,
		"service_class":   j.ServiceClass,
		"region":          j.Region,
		"base_fare":       j.BaseFare,
		"top_up_fare":     j.TopUpFare,
		"total_fare":      j.TotalFare,
		"search_radius_m": j.SearchRadiusM,
	}
	if j.AssigneeID != nil {
		v["assignee_id"] = *j.AssigneeID
	}
	if j.CancelReason != nil {
		v["cancel_reason"] = *j.CancelReason
		v["max_radius_reached"] = j.MaxRadiusReached
	}
	if j.NegotiationStatus != job.NegotiationNone {
		v["negotiation_status"] = j.NegotiationStatus
	}
	return v
}
