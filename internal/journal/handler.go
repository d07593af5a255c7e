package journal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"qbadmin/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc     orphanService
	actorID int64
}

type orphanService interface {
	ListOrphans(ctx context.Context, all bool) ([]Orphan, error)
	ResolveOrphan(ctx context.Context, id, actorID int64, note string) (*Orphan, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type resolveRequest struct {
	Note string `json:"note"`
}

func NewHandler(svc *Service, actorID int64) *Handler {
	return &Handler{svc: svc, actorID: actorID}
}

func (h *Handler) ListOrphans(w http.ResponseWriter, r *http.Request) {
	all := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("all")), "true")

	items, err := h.svc.ListOrphans(r.Context(), all)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) ResolveOrphan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid orphan id"})
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.ResolveOrphan(r.Context(), id, h.actorID, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrOrphanNotFound):
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	apiresp.WriteLegacy(w, r, code, payload.OK, payload.Data, payload.Error)
}
