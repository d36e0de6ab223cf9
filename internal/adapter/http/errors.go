package http

import (
	"errors"
	"net/http"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

type errorBody struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

var errBadRequest = errors.New("malformed request body")

// writeError maps domain errors onto HTTP statuses. Store and unexpected
// failures are logged and answered without internal detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Code: "validation", Fields: verr.Fields})
	case errors.Is(err, domain.ErrValidation):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation"})
	case errors.Is(err, errBadRequest):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "bad_request"})
	case errors.Is(err, domain.ErrNotFound):
		sharedobs.WriteJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, domain.ErrInvalidTransition):
		sharedobs.WriteJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, domain.ErrPermissionDenied):
		sharedobs.WriteJSON(w, http.StatusForbidden, errorBody{Error: domain.ErrPermissionDenied.Error(), Code: "forbidden"})
	case errors.Is(err, domain.ErrStore):
		s.logger.Error("store failure", "method", r.Method, "path", r.URL.Path, "error", err)
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: domain.ErrStore.Error(), Code: "store_unavailable"})
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}
