// Shared handler utilities: JSON helpers and error mapping.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"beam/internal/modules/beaming"
	"beam/internal/modules/job"
	"beam/internal/modules/pricing"
	"beam/internal/modules/wallet"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, job.ErrBadRequest), errors.Is(err, beaming.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, job.ErrNotFound), errors.Is(err, beaming.ErrProposalNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, job.ErrInvalidState),
		errors.Is(err, job.ErrConflict),
		errors.Is(err, job.ErrNegotiationNotPending):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeWalletError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, wallet.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, wallet.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writePricingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pricing.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, pricing.ErrConfigNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
