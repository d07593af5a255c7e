package journal

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockOrphanService struct {
	listFn    func(ctx context.Context, all bool) ([]Orphan, error)
	resolveFn func(ctx context.Context, id, actorID int64, note string) (*Orphan, error)
}

func (m *mockOrphanService) ListOrphans(ctx context.Context, all bool) ([]Orphan, error) {
	return m.listFn(ctx, all)
}

func (m *mockOrphanService) ResolveOrphan(ctx context.Context, id, actorID int64, note string) (*Orphan, error) {
	return m.resolveFn(ctx, id, actorID, note)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestListOrphansPassesAllFlag(t *testing.T) {
	var gotAll bool
	h := &Handler{svc: &mockOrphanService{listFn: func(ctx context.Context, all bool) ([]Orphan, error) {
		gotAll = all
		return []Orphan{{ID: 1, ParentID: 900}}, nil
	}}}
	w := httptest.NewRecorder()

	h.ListOrphans(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orphans?all=true", nil))

	if w.Code != http.StatusOK || !gotAll {
		t.Fatalf("expected 200 with all=true, got %d all=%v", w.Code, gotAll)
	}
}

func TestResolveOrphan(t *testing.T) {
	h := &Handler{actorID: 5, svc: &mockOrphanService{resolveFn: func(ctx context.Context, id, actorID int64, note string) (*Orphan, error) {
		if id != 3 || actorID != 5 || note != "removed in console" {
			t.Errorf("unexpected args %d %d %q", id, actorID, note)
		}
		return &Orphan{ID: id}, nil
	}}}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"note":"removed in console"}`)))
	w := httptest.NewRecorder()

	h.ResolveOrphan(w, withParam(req, "id", "3"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestResolveOrphanNotFound(t *testing.T) {
	h := &Handler{svc: &mockOrphanService{resolveFn: func(context.Context, int64, int64, string) (*Orphan, error) {
		return nil, ErrOrphanNotFound
	}}}
	w := httptest.NewRecorder()

	h.ResolveOrphan(w, withParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", "3"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestResolveOrphanInvalidID(t *testing.T) {
	h := &Handler{svc: &mockOrphanService{}}
	w := httptest.NewRecorder()

	h.ResolveOrphan(w, withParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", "abc"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
