package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"bi-demo/internal/domain"
	"bi-demo/internal/service/security"
)

// crudService is the service surface a REST resource is served from.
type crudService[T, P, U any] interface {
	List(ctx context.Context, q domain.ListQuery) ([]T, int64, error)
	Create(ctx context.Context, req P) (*T, error)
	Update(ctx context.Context, id int64, req U) (*T, error)
	Delete(ctx context.Context, ids ...int64) error
}

// resource serves the model REST endpoints of one asset type.
type resource[T, P, U any] struct {
	h         *Handler
	name      string
	view      string
	assetType string
	svc       crudService[T, P, U]
	get       func(ctx context.Context, pk string) (*T, error)
	id        func(*T) int64
	// extra registers routes beyond the model endpoints.
	extra func(r chi.Router)
}

func (res *resource[T, P, U]) routes(r chi.Router) {
	h := res.h
	r.Get("/", h.instrument("get_list", res.list))
	r.Get("/_info", h.instrument("info", res.info))
	r.Get("/{pk}", h.instrument("get", res.getOne))
	r.Post("/", h.instrument("post", res.post))
	r.Put("/{pk}", h.instrument("put", res.put))
	r.Delete("/{pk}", h.instrument("delete", res.deleteOne))
	r.Delete("/", h.instrument("bulk_delete", res.bulkDelete))
	if res.assetType != "" {
		r.Post("/import/", h.instrument("import_", res.importBundle))
	}
	if res.extra != nil {
		res.extra(r)
	}
}

func (res *resource[T, P, U]) list(w http.ResponseWriter, r *http.Request) {
	var q domain.ListQuery
	if err := risonArg(r, &q); err != nil {
		res.h.writeError(w, r, err)
		return
	}
	items, total, err := res.svc.List(r.Context(), q)
	if err != nil {
		res.h.writeError(w, r, err)
		return
	}
	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = res.id(&items[i])
	}
	res.h.writeJSON(w, http.StatusOK, map[string]any{
		"count":  total,
		"ids":    ids,
		"result": items,
	})
}

// info lists the permissions the caller holds on the resource.
func (res *resource[T, P, U]) info(w http.ResponseWriter, r *http.Request) {
	u, err := security.CurrentUser(r.Context())
	if err != nil {
		res.h.writeError(w, r, err)
		return
	}
	perms := []string{}
	for _, p := range []string{domain.PermCanRead, domain.PermCanWrite} {
		if security.CanAccess(u, p, res.view) {
			perms = append(perms, p)
		}
	}
	res.h.writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (res *resource[T, P, U]) getOne(w http.ResponseWriter, r *http.Request) {
	item, err := res.get(r.Context(), chi.URLParam(r, "pk"))
	if err != nil {
		res.h.writeError(w, r, err)
		return
	}
	res.h.writeJSON(w, http.StatusOK, map[string]any{"id": res.id(item), "result": item})
}

func (res *resource[T, P, U]) post(w http.ResponseWriter, r *http.Request) {
	var req P
	if err := res.h.decode(r, &req); err != nil {
		res.h.writeError(w, r, err)
		return
	}
	item, err := res.svc.Create(r.Context(), req)
	if err != nil {
		res.h.writeError(w, r, err)
		return
	}
	res.h.writeJSON(w, http.StatusCreated, map[string]any{"id": res.id(item), "result": item})
}

func (res *resource[T, P, U]) put(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		res.h.writeError(w, r, err)
		return
	}
	var req U
	if err := res.h.decode(r, &req); err != nil {
		res.h.writeError(w, r, err)
		return
	}
	item, err := res.svc.Update(r.Context(), id, req)
	if err != nil {
		res.h.writeError(w, r, err)
		return
	}
	res.h.writeJSON(w, http.StatusOK, map[string]any{"id": res.id(item), "result": item})
}

func (res *resource[T, P, U]) deleteOne(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		res.h.writeError(w, r, err)
		return
	}
	if err := res.svc.Delete(r.Context(), id); err != nil {
		res.h.writeError(w, r, err)
		return
	}
	res.h.writeJSON(w, http.StatusOK, map[string]any{"message": "OK"})
}

// bulkDelete removes the ids given as a rison list, e.g. `?q=!(1,2)`.
func (res *resource[T, P, U]) bulkDelete(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	if err := risonArg(r, &ids); err != nil {
		res.h.writeError(w, r, err)
		return
	}
	if len(ids) == 0 {
		res.h.writeError(w, r, domain.ErrValidation("no ids given"))
		return
	}
	if err := res.svc.Delete(r.Context(), ids...); err != nil {
		res.h.writeError(w, r, err)
		return
	}
	res.h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Deleted " + pluralize(len(ids), res.name),
	})
}

// importBundle reads a multipart upload with the zip in `formData` and an
// optional `overwrite` flag.
func (res *resource[T, P, U]) importBundle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		res.h.writeError(w, r, domain.ErrValidation("expected a multipart upload: %v", err))
		return
	}
	f, _, err := r.FormFile("formData")
	if err != nil {
		res.h.writeError(w, r, domain.ErrValidation("formData file is required"))
		return
	}
	defer f.Close() //nolint:errcheck
	data, err := io.ReadAll(io.LimitReader(f, maxBodyBytes))
	if err != nil {
		res.h.writeError(w, r, err)
		return
	}
	overwrite, _ := strconv.ParseBool(r.FormValue("overwrite"))

	if err := res.h.importer.Import(r.Context(), res.assetType, data, overwrite); err != nil {
		res.h.writeError(w, r, err)
		return
	}
	res.h.writeJSON(w, http.StatusOK, map[string]any{"message": "OK"})
}

// instrument reports exactly one IncrStats call per request, after the
// handler has written its status.
func (h *Handler) instrument(funcName string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			if rec := recover(); rec != nil {
				h.stats.IncrStats(domain.BucketError, funcName)
				panic(rec)
			}
		}()
		next(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.stats.IncrStats(domain.MetricBucketForStatus(status), funcName)
	}
}
