package api

import "net/http"

type relatedChart struct {
	ID        int64  `json:"id"`
	SliceName string `json:"slice_name"`
	VizType   string `json:"viz_type"`
}

type relatedDashboard struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Slug         *string `json:"slug"`
	JSONMetadata string  `json:"json_metadata"`
}

type relatedGroup[T any] struct {
	Count  int `json:"count"`
	Result []T `json:"result"`
}

// databaseRelatedObjects lists the charts and dashboards built on a database.
func (h *Handler) databaseRelatedObjects(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	related, err := h.databases.RelatedObjects(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	charts := make([]relatedChart, 0, len(related.Charts))
	for _, c := range related.Charts {
		charts = append(charts, relatedChart{ID: c.ID, SliceName: c.SliceName, VizType: c.VizType})
	}
	dashboards := make([]relatedDashboard, 0, len(related.Dashboards))
	for _, d := range related.Dashboards {
		dashboards = append(dashboards, relatedDashboard{
			ID: d.ID, Title: d.DashboardTitle, Slug: d.Slug, JSONMetadata: d.JSONMetadata,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"charts":     relatedGroup[relatedChart]{Count: len(charts), Result: charts},
		"dashboards": relatedGroup[relatedDashboard]{Count: len(dashboards), Result: dashboards},
	})
}
