package exam

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"qbadmin/internal/app/apiresp"
)

type Handler struct {
	svc examResolver
}

type examResolver interface {
	Resolve(ctx context.Context, f Filter) (int64, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc *Resolver) *Handler {
	return &Handler{svc: svc}
}

// Resolve previews which exam a filter selects before a save is attempted.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f Filter
	var bad string
	parse := func(key string) int64 {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			return 0
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			bad = key
			return 0
		}
		return n
	}
	f.ExamID = parse("exam_id")
	f.Year = int(parse("year"))
	f.ExamTypeID = parse("exam_type_id")
	f.AreaID = parse("area_id")
	if bad != "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid " + bad})
		return
	}

	id, err := h.svc.Resolve(r.Context(), f)
	if err != nil {
		writeJSON(w, r, http.StatusBadGateway, response{OK: false, Error: "exam lookup failed"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{
		"exam_id":  id,
		"complete": f.Complete(),
		"resolved": id > 0,
	}})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	apiresp.WriteLegacy(w, r, code, payload.OK, payload.Data, payload.Error)
}
