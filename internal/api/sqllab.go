package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bi-demo/internal/service/sqllab"
)

// executeSQL runs a SQL Lab request. Failures are reported as
// {"error": ..., "status": "failed"}; statement errors use status 400.
func (h *Handler) executeSQL(w http.ResponseWriter, r *http.Request) {
	var req sqllab.ExecuteRequest
	if err := h.decode(r, &req); err != nil {
		h.writeSQLError(w, r, err)
		return
	}
	result, err := h.sqllab.Execute(r.Context(), req)
	if err != nil {
		h.writeSQLError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeSQLError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	var qe *sqllab.QueryError
	body := map[string]any{"error": err.Error(), "status": "failed"}
	if errors.As(err, &qe) {
		status = http.StatusBadRequest
		body["query_id"] = qe.QueryID
	} else if status == http.StatusInternalServerError {
		h.logger.Error("sql lab request failed", "path", r.URL.Path, "error", err)
		body["error"] = "Internal server error"
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) getQuery(w http.ResponseWriter, r *http.Request) {
	q, err := h.sqllab.GetByClientID(r.Context(), chi.URLParam(r, "client_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"result": q})
}
