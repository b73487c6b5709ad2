// Proposal and negotiation handlers: courier bids and counter-offers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"beam/internal/modules/beaming"
	"beam/internal/modules/job"
	"beam/internal/types"
)

type ProposalHandler struct {
	jobs   *job.Service
	search *beaming.Service
}

func NewProposalHandler(jobs *job.Service, search *beaming.Service) *ProposalHandler {
	return &ProposalHandler{jobs: jobs, search: search}
}

type submitProposalReq struct {
	CourierID  string `json:"courier_id"`
	TopUpCents int64  `json:"top_up_cents"`
	Currency   string `json:"currency"`
	Notes      string `json:"notes"`
}

func (h *ProposalHandler) Submit(c *gin.Context) {
	id := c.Param("id")
	var req submitProposalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.search.SubmitProposal(c.Request.Context(), beaming.SubmitCommand{
		JobID:     types.ID(id),
		CourierID: types.ID(req.CourierID),
		TopUp:     types.Money{Amount: req.TopUpCents, Currency: req.Currency},
		Notes:     req.Notes,
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

func (h *ProposalHandler) List(c *gin.Context) {
	id := c.Param("id")
	props, err := h.search.Proposals(c.Request.Context(), types.ID(id))
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"proposals": props})
}

type acceptProposalReq struct {
	CourierID string `json:"courier_id"`
}

func (h *ProposalHandler) Accept(c *gin.Context) {
	id := c.Param("id")
	var req acceptProposalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CourierID == "" {
		writeError(c, http.StatusBadRequest, "missing courier_id")
		return
	}
	if err := h.search.AcceptProposal(c.Request.Context(), types.ID(id), types.ID(req.CourierID)); err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": job.StatusAccepted})
}

type negotiateReq struct {
	AssigneeID string `json:"assignee_id"`
	TopUpCents int64  `json:"top_up_cents"`
	Currency   string `json:"currency"`
}

func (h *ProposalHandler) Negotiate(c *gin.Context) {
	id := c.Param("id")
	var req negotiateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.jobs.ProposeCounterOffer(c.Request.Context(), job.NegotiateCommand{
		JobID:      types.ID(id),
		AssigneeID: types.ID(req.AssigneeID),
		TopUp:      types.Money{Amount: req.TopUpCents, Currency: req.Currency},
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"negotiation_status": job.NegotiationPending})
}

func (h *ProposalHandler) AcceptNegotiation(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobs.AcceptNegotiation(c.Request.Context(), types.ID(id)); err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": job.StatusAccepted})
}

func (h *ProposalHandler) RejectNegotiation(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobs.RejectNegotiation(c.Request.Context(), types.ID(id)); err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"negotiation_status": job.NegotiationRejected})
}
