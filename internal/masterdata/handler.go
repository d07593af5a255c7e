package masterdata

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"qbadmin/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc classificationService
}

type classificationService interface {
	ListAll(ctx context.Context) ([]Classification, error)
	Get(ctx context.Context, id int64) (Classification, error)
	Invalidate()
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc *ClassificationSource) *Handler {
	return &Handler{svc: svc}
}

// ListClassifications serves the cached list; ?refresh=true reloads it first.
func (h *Handler) ListClassifications(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.URL.Query().Get("refresh"), "true") {
		h.svc.Invalidate()
	}
	items, err := h.svc.ListAll(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusBadGateway, apiResponse{OK: false, Error: "classifications unavailable"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) GetClassification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid classification id"})
		return
	}
	item, err := h.svc.Get(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrClassificationNotFound):
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusBadGateway, apiResponse{OK: false, Error: "classifications unavailable"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	apiresp.WriteLegacy(w, r, code, payload.OK, payload.Data, payload.Error)
}
