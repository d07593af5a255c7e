package grouped

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"qbadmin/internal/app/apiresp"
	"qbadmin/internal/content"
	"qbadmin/internal/exam"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	maxImageBytes = 8 << 20
	maxExcelBytes = 16 << 20
	xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Handler struct {
	svc      groupedService
	validate *validator.Validate
}

type groupedService interface {
	Create() *Session
	Open(ctx context.Context, examID, parentID int64) (*Session, error)
	Session(id string) (*Session, error)
	Discard(id string) error
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type loadRequest struct {
	ExamID   int64 `json:"exam_id" validate:"gte=0"`
	ParentID int64 `json:"parent_id" validate:"required,gt=0"`
}

type examFilterRequest struct {
	ExamID     int64 `json:"exam_id" validate:"gte=0"`
	Year       int   `json:"year" validate:"gte=0,lte=2100"`
	ExamTypeID int64 `json:"exam_type_id" validate:"gte=0"`
	AreaID     int64 `json:"area_id" validate:"gte=0"`
}

type classificationRequest struct {
	ClassificationID int64 `json:"classification_id" validate:"required,gt=0"`
}

type correctRequest struct {
	Index *int `json:"index" validate:"required,gte=0,lte=3"`
}

type alternativeRequest struct {
	Content string `json:"content" validate:"max=20000"`
}

type rationaleRequest struct {
	Rationale string `json:"rationale" validate:"max=20000"`
}

type expandedRequest struct {
	Expanded bool `json:"expanded"`
}

type addBlockRequest struct {
	Kind string `json:"kind" validate:"required,oneof=text image"`
}

type updateBlockRequest struct {
	Content string `json:"content" validate:"max=100000"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sess := h.svc.Create()
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: sess.View()})
}

func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.svc.Open(r.Context(), req.ExamID, req.ParentID)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: sess.View()})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: sess.View()})
}

func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Discard(chi.URLParam(r, "id")); err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]any{"discarded": true}})
}

func (h *Handler) SetExamFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req examFilterRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := sess.SetExamFilter(exam.Filter{
		ExamID:     req.ExamID,
		Year:       req.Year,
		ExamTypeID: req.ExamTypeID,
		AreaID:     req.AreaID,
	})
	h.respondView(w, r, sess, err)
}

func (h *Handler) AddSubQuestion(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	item, err := sess.AddSubQuestion()
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) RemoveSubQuestion(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondView(w, r, sess, sess.RemoveSubQuestion(chi.URLParam(r, "localID")))
}

func (h *Handler) UpdateClassification(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req classificationRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w, r, sess, sess.UpdateClassification(chi.URLParam(r, "localID"), req.ClassificationID))
}

func (h *Handler) SetCorrect(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req correctRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w, r, sess, sess.SetAlternativeCorrect(chi.URLParam(r, "localID"), *req.Index))
}

func (h *Handler) UpdateAlternative(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid alternative index"})
		return
	}
	var req alternativeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w, r, sess, sess.UpdateAlternative(chi.URLParam(r, "localID"), index, req.Content))
}

func (h *Handler) UpdateRationale(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req rationaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w, r, sess, sess.UpdateRationale(chi.URLParam(r, "localID"), req.Rationale))
}

func (h *Handler) SetExpanded(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req expandedRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w, r, sess, sess.SetExpanded(chi.URLParam(r, "localID"), req.Expanded))
}

func (h *Handler) AddBlock(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req addBlockRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := sess.AddBlock(chi.URLParam(r, "target"), content.Kind(req.Kind))
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: b})
}

func (h *Handler) UpdateBlock(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req updateBlockRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := sess.UpdateBlock(chi.URLParam(r, "target"), chi.URLParam(r, "blockID"), req.Content)
	h.respondView(w, r, sess, err)
}

func (h *Handler) RemoveBlock(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	err := sess.RemoveBlock(chi.URLParam(r, "target"), chi.URLParam(r, "blockID"))
	h.respondView(w, r, sess, err)
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file field is required"})
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	if !strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file must be an image"})
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}

	b, err := sess.UploadImage(r.Context(), chi.URLParam(r, "target"), hdr.Filename, file)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: b})
}

func (h *Handler) ImportExcel(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxExcelBytes); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file field is required"})
		return
	}
	defer file.Close()

	report, err := sess.ImportExcel(file)
	if err != nil {
		if errors.Is(err, ErrSessionBusy) {
			writeSessionError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]any{
		"filename": hdr.Filename,
		"report":   report,
		"session":  sess.View(),
	}})
}

func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	b, err := sess.ExportExcel()
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "grouped-"+sess.ID()+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// Save runs detached from the request so that a client disconnect cannot
// interrupt a save between the parent write and its rollback.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.Save(context.WithoutCancel(r.Context()))
	if err != nil {
		var serr *SaveError
		if !errors.As(err, &serr) {
			writeSessionError(w, r, err)
			return
		}
		apiresp.WriteFailure(w, r, saveStatus(serr), out.Message, out)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: out})
}

func saveStatus(err *SaveError) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrResolution):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := h.svc.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	return fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag())
}

func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, sess *Session, err error) {
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: sess.View()})
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrDraftNotFound), errors.Is(err, ErrTargetNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSessionBusy):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrMinimumCount):
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrAlternativeIndex), errors.Is(err, ErrInvalidKind), errors.Is(err, ErrValidation):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, content.ErrUploadFailed):
		writeJSON(w, r, http.StatusBadGateway, apiResponse{OK: false, Error: content.ErrUploadFailed.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	apiresp.WriteLegacy(w, r, code, payload.OK, payload.Data, payload.Error)
}
