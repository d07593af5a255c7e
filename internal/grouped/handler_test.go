package grouped

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"qbadmin/internal/question"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type mockGroupedService struct {
	createFn  func() *Session
	openFn    func(ctx context.Context, examID, parentID int64) (*Session, error)
	sessionFn func(id string) (*Session, error)
	discardFn func(id string) error
}

func (m *mockGroupedService) Create() *Session {
	return m.createFn()
}

func (m *mockGroupedService) Open(ctx context.Context, examID, parentID int64) (*Session, error) {
	if m.openFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.openFn(ctx, examID, parentID)
}

func (m *mockGroupedService) Session(id string) (*Session, error) {
	if m.sessionFn == nil {
		return nil, ErrSessionNotFound
	}
	return m.sessionFn(id)
}

func (m *mockGroupedService) Discard(id string) error {
	if m.discardFn == nil {
		return errors.New("not implemented")
	}
	return m.discardFn(id)
}

func newTestHandler(sess *Session) *Handler {
	return &Handler{
		svc: &mockGroupedService{sessionFn: func(id string) (*Session, error) {
			if sess == nil || id != sess.ID() {
				return nil, ErrSessionNotFound
			}
			return sess, nil
		}},
		validate: validator.New(),
	}
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func errorMessage(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

func TestGetSessionNotFound(t *testing.T) {
	h := newTestHandler(nil)
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/grouped-sessions/x", nil), "id", "x")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCreateSession(t *testing.T) {
	sess := NewSession(testConfig(), Deps{})
	h := &Handler{svc: &mockGroupedService{createFn: func() *Session { return sess }}, validate: validator.New()}
	w := httptest.NewRecorder()

	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/v1/grouped-sessions", nil))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	data, _ := decodeMap(t, w)["data"].(map[string]any)
	if data["id"] != sess.ID() {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestLoadValidatesParentID(t *testing.T) {
	h := newTestHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/grouped-sessions/load", bytes.NewReader([]byte(`{"exam_id":42}`)))
	w := httptest.NewRecorder()

	h.Load(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLoadParentNotFound(t *testing.T) {
	h := &Handler{svc: &mockGroupedService{openFn: func(ctx context.Context, examID, parentID int64) (*Session, error) {
		if examID != 42 || parentID != 55 {
			t.Errorf("unexpected ids %d %d", examID, parentID)
		}
		return nil, errors.Join(ErrSessionNotFound, question.ErrQuestionNotFound)
	}}, validate: validator.New()}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/grouped-sessions/load", bytes.NewReader([]byte(`{"exam_id":42,"parent_id":55}`)))
	w := httptest.NewRecorder()

	h.Load(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRemoveLastSubQuestionReturns422(t *testing.T) {
	sess := NewSession(testConfig(), Deps{})
	h := newTestHandler(sess)
	localID := draftIDs(sess)[0]
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/grouped-sessions/"+sess.ID()+"/subquestions/"+localID, nil)
	req = withParam(withParam(req, "id", sess.ID()), "localID", localID)
	w := httptest.NewRecorder()

	h.RemoveSubQuestion(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if msg := errorMessage(decodeMap(t, w)); msg != ErrMinimumCount.Error() {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestSetCorrectValidatesIndex(t *testing.T) {
	sess := NewSession(testConfig(), Deps{})
	h := newTestHandler(sess)
	localID := draftIDs(sess)[0]

	tests := []struct {
		body string
		code int
	}{
		{body: `{"index":2}`, code: http.StatusOK},
		{body: `{"index":4}`, code: http.StatusBadRequest},
		{body: `{}`, code: http.StatusBadRequest},
		{body: `not json`, code: http.StatusBadRequest},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPut, "/", bytes.NewReader([]byte(tc.body)))
		req = withParam(withParam(req, "id", sess.ID()), "localID", localID)
		w := httptest.NewRecorder()

		h.SetCorrect(w, req)

		if w.Code != tc.code {
			t.Fatalf("body %s: expected %d, got %d", tc.body, tc.code, w.Code)
		}
	}
	if !sess.View().SubQuestions[0].Alternatives[2].IsCorrect {
		t.Fatalf("expected alternative C to be correct")
	}
}

func TestAddBlockRejectsUnknownKind(t *testing.T) {
	sess := NewSession(testConfig(), Deps{})
	h := newTestHandler(sess)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"kind":"video"}`)))
	req = withParam(withParam(req, "id", sess.ID()), "target", CommonTarget)
	w := httptest.NewRecorder()

	h.AddBlock(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUploadImageRejectsNonImage(t *testing.T) {
	sess := NewSession(testConfig(), Deps{})
	h := newTestHandler(sess)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "notes.txt")
	_, _ = part.Write([]byte("just some text"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = withParam(withParam(req, "id", sess.ID()), "target", CommonTarget)
	w := httptest.NewRecorder()

	h.UploadImage(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(sess.View().CommonStatement) != 0 {
		t.Fatalf("no block should be added")
	}
}

func TestSaveValidationFailureReturnsOutcome(t *testing.T) {
	env := newTestEnv()
	sess := NewSession(testConfig(), env.deps())
	h := newTestHandler(sess)
	req := withParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", sess.ID())
	w := httptest.NewRecorder()

	h.Save(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	body := decodeMap(t, w)
	if body["ok"] != false || errorMessage(body) != "empty common statement" {
		t.Fatalf("unexpected body %+v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data["state"] != string(StateValidationFailed) {
		t.Fatalf("expected outcome state in data, got %+v", data)
	}
}

func TestSaveSuccess(t *testing.T) {
	env := newTestEnv()
	sess := readySession(t, env, 2)
	h := newTestHandler(sess)
	req := withParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", sess.ID())
	w := httptest.NewRecorder()

	h.Save(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data, _ := decodeMap(t, w)["data"].(map[string]any)
	if data["parent_id"] != float64(900) || data["child_count"] != float64(2) {
		t.Fatalf("unexpected outcome %+v", data)
	}
}

func TestSaveChildFailureReturns502(t *testing.T) {
	env := newTestEnv()
	env.children.createFn = func(context.Context, question.ChildPayload) error { return errors.New("down") }
	sess := readySession(t, env, 1)
	h := newTestHandler(sess)
	req := withParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", sess.ID())
	w := httptest.NewRecorder()

	h.Save(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	data, _ := decodeMap(t, w)["data"].(map[string]any)
	if data["state"] != string(StateRolledBack) {
		t.Fatalf("unexpected outcome %+v", data)
	}
}

func TestSaveBusyReturns409(t *testing.T) {
	sess := NewSession(testConfig(), Deps{})
	sess.saving = true
	h := newTestHandler(sess)
	req := withParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", sess.ID())
	w := httptest.NewRecorder()

	h.Save(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestExportExcel(t *testing.T) {
	sess := NewSession(testConfig(), Deps{})
	h := newTestHandler(sess)
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", sess.ID())
	w := httptest.NewRecorder()

	h.ExportExcel(w, req)

	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxMediaType {
		t.Fatalf("unexpected response %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if w.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}
