package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sakura-internet/go-rison/v4"

	"bi-demo/internal/domain"
	"bi-demo/internal/middleware"
)

const maxBodyBytes = 10 << 20

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	if status == http.StatusInternalServerError {
		reqID := middleware.RequestIDFromContext(r.Context())
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", reqID, "error", err)
		h.writeJSON(w, status, map[string]any{"message": "Internal server error", "request_id": reqID})
		return
	}
	h.writeJSON(w, status, errorBody(err))
}

// decode reads a JSON body into v and validates its struct tags.
func (h *Handler) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return h.validate.Struct(v)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "pk"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrNotFound("not found")
	}
	return id, nil
}

// risonArg decodes the rison-encoded `q` query argument into v. A missing
// argument leaves v untouched.
func risonArg(r *http.Request, v any) error {
	q := r.URL.Query().Get("q")
	if q == "" {
		return nil
	}
	raw, err := rison.ToJSON([]byte(q), rison.Rison)
	if err != nil {
		return domain.ErrValidation("invalid q argument: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.ErrValidation("invalid q argument: %v", err)
	}
	return nil
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// jsonFieldName reports validation errors under the JSON field name.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
