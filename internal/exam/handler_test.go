package exam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockExamResolver struct {
	resolveFn func(ctx context.Context, f Filter) (int64, error)
}

func (m *mockExamResolver) Resolve(ctx context.Context, f Filter) (int64, error) {
	if m.resolveFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.resolveFn(ctx, f)
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestResolveHandlerPassesFilter(t *testing.T) {
	h := &Handler{svc: &mockExamResolver{resolveFn: func(ctx context.Context, f Filter) (int64, error) {
		if f.Year != 2024 || f.ExamTypeID != 2 || f.AreaID != 3 || f.ExamID != 0 {
			t.Errorf("unexpected filter %+v", f)
		}
		return 42, nil
	}}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/exams/resolve?year=2024&exam_type_id=2&area_id=3", nil)
	w := httptest.NewRecorder()

	h.Resolve(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data, _ := decodeMap(t, w)["data"].(map[string]any)
	if data["exam_id"] != float64(42) || data["resolved"] != true || data["complete"] != true {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestResolveHandlerRejectsBadNumbers(t *testing.T) {
	h := &Handler{svc: &mockExamResolver{}}
	w := httptest.NewRecorder()

	h.Resolve(w, httptest.NewRequest(http.MethodGet, "/api/v1/exams/resolve?year=abc", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestResolveHandlerUpstreamFailure(t *testing.T) {
	h := &Handler{svc: &mockExamResolver{resolveFn: func(context.Context, Filter) (int64, error) {
		return 0, errors.New("down")
	}}}
	w := httptest.NewRecorder()

	h.Resolve(w, httptest.NewRequest(http.MethodGet, "/api/v1/exams/resolve?exam_id=9", nil))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}
