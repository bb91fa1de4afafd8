package handler

import (
	"net/http"
	"strconv"

	"github.com/Dan9191/card-service/internal/middleware"
	"github.com/Dan9191/card-service/internal/models"
)

// retryAfter is the Retry-After hint sent with transient failures, in seconds.
const retryAfter = 1

func statusOf(kind models.Kind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindInvalid:
		return http.StatusBadRequest
	case models.KindTransient:
		return http.StatusServiceUnavailable
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.KindOf(err)
	status := statusOf(kind)

	message := err.Error()
	switch kind {
	case models.KindInternal:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Unexpected error")
		message = "Internal server error"
	case models.KindTransient:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	middleware.WriteError(w, r, status, message)
}
