package grouped

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"qbadmin/internal/content"
	"qbadmin/internal/exam"
	"qbadmin/internal/journal"
	"qbadmin/internal/question"
)

type fakeResolver struct {
	resolveFn func(ctx context.Context, f exam.Filter) (int64, error)
	calls     int
}

func (f *fakeResolver) Resolve(ctx context.Context, filter exam.Filter) (int64, error) {
	f.calls++
	if f.resolveFn == nil {
		return 42, nil
	}
	return f.resolveFn(ctx, filter)
}

type fakeQuestions struct {
	createFn func(ctx context.Context, in question.ParentPayload) (int64, error)
	updateFn func(ctx context.Context, examID, id int64, in question.ParentPayload) error
	deleteFn func(ctx context.Context, id int64) error

	created []question.ParentPayload
	updated []int64
	deleted []int64
}

func (f *fakeQuestions) Create(ctx context.Context, in question.ParentPayload) (int64, error) {
	f.created = append(f.created, in)
	if f.createFn == nil {
		return 900, nil
	}
	return f.createFn(ctx, in)
}

func (f *fakeQuestions) Update(ctx context.Context, examID, id int64, in question.ParentPayload) error {
	f.updated = append(f.updated, id)
	if f.updateFn == nil {
		return nil
	}
	return f.updateFn(ctx, examID, id, in)
}

func (f *fakeQuestions) Delete(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, id)
}

func (f *fakeQuestions) calls() int {
	return len(f.created) + len(f.updated) + len(f.deleted)
}

type childUpdate struct {
	seq     int
	payload question.ChildPayload
}

// fakeSubQuestions is called concurrently by the child batch.
type fakeSubQuestions struct {
	createFn func(ctx context.Context, in question.ChildPayload) error
	updateFn func(ctx context.Context, seq int, in question.ChildPayload) error

	mu      sync.Mutex
	created []question.ChildPayload
	updated []childUpdate
	deleted []int
}

func (f *fakeSubQuestions) Create(ctx context.Context, in question.ChildPayload) error {
	f.mu.Lock()
	f.created = append(f.created, in)
	f.mu.Unlock()
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, in)
}

func (f *fakeSubQuestions) Update(ctx context.Context, examID, parentID int64, seq int, in question.ChildPayload) error {
	f.mu.Lock()
	f.updated = append(f.updated, childUpdate{seq: seq, payload: in})
	f.mu.Unlock()
	if f.updateFn == nil {
		return nil
	}
	return f.updateFn(ctx, seq, in)
}

func (f *fakeSubQuestions) Delete(ctx context.Context, examID, parentID int64, seq int) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, seq)
	f.mu.Unlock()
	return nil
}

func (f *fakeSubQuestions) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created) + len(f.updated) + len(f.deleted)
}

// numberedChildren stores children by numero the way the content API does:
// Update moves the row stored at seq to the payload's numero, and no write may
// land on a numero held by another row.
type numberedChildren struct {
	mu         sync.Mutex
	rows       map[int]string
	ops        []string
	failCreate bool
	// slowDelete makes Delete wait briefly for a concurrent update first.
	slowDelete bool
	updates    chan struct{}
}

func newNumberedChildren(statements ...string) *numberedChildren {
	n := &numberedChildren{rows: map[int]string{}, updates: make(chan struct{}, 16)}
	for i, st := range statements {
		n.rows[i+1] = st
	}
	return n
}

func (n *numberedChildren) Create(ctx context.Context, in question.ChildPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failCreate {
		return fmt.Errorf("create numero %d: unavailable", in.Numero)
	}
	if _, taken := n.rows[in.Numero]; taken {
		return fmt.Errorf("numero %d taken", in.Numero)
	}
	n.rows[in.Numero] = in.Enunciado
	n.ops = append(n.ops, fmt.Sprintf("create:%d", in.Numero))
	return nil
}

func (n *numberedChildren) Update(ctx context.Context, examID, parentID int64, seq int, in question.ChildPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.rows[seq]; !ok {
		return fmt.Errorf("sub-question %d not found", seq)
	}
	if _, taken := n.rows[in.Numero]; taken && in.Numero != seq {
		return fmt.Errorf("numero %d taken", in.Numero)
	}
	delete(n.rows, seq)
	n.rows[in.Numero] = in.Enunciado
	n.ops = append(n.ops, fmt.Sprintf("update:%d->%d", seq, in.Numero))
	n.updates <- struct{}{}
	return nil
}

func (n *numberedChildren) Delete(ctx context.Context, examID, parentID int64, seq int) error {
	if n.slowDelete {
		select {
		case <-n.updates:
		case <-time.After(50 * time.Millisecond):
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.rows, seq)
	n.ops = append(n.ops, fmt.Sprintf("delete:%d", seq))
	return nil
}

func (n *numberedChildren) snapshot() (map[int]string, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rows := make(map[int]string, len(n.rows))
	for k, v := range n.rows {
		rows[k] = v
	}
	return rows, append([]string(nil), n.ops...)
}

type fakeJournal struct {
	entries []journal.Entry
}

func (f *fakeJournal) RecordSave(ctx context.Context, e journal.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

type uploaderFunc func(ctx context.Context, filename string, r io.Reader) (string, error)

func (f uploaderFunc) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	return f(ctx, filename, r)
}

type testEnv struct {
	resolver *fakeResolver
	parents  *fakeQuestions
	children *fakeSubQuestions
	journal  *fakeJournal
}

func newTestEnv() *testEnv {
	return &testEnv{
		resolver: &fakeResolver{},
		parents:  &fakeQuestions{},
		children: &fakeSubQuestions{},
		journal:  &fakeJournal{},
	}
}

func (e *testEnv) deps() Deps {
	return Deps{
		Resolver:     e.resolver,
		Questions:    e.parents,
		SubQuestions: e.children,
		Journal:      e.journal,
	}
}

func testConfig() Config {
	return Config{UserID: 5, DefaultClassificationID: 7, QuestionTypeID: 3}
}

// readySession builds a session that passes validation: one common text block
// and n drafts, each with alternative A marked correct.
func readySession(t *testing.T, env *testEnv, n int) *Session {
	t.Helper()
	s := NewSession(testConfig(), env.deps())
	b, err := s.AddBlock(CommonTarget, content.KindText)
	if err != nil {
		t.Fatalf("add common block: %v", err)
	}
	if err := s.UpdateBlock(CommonTarget, b.ID, "<p>Read the passage</p>"); err != nil {
		t.Fatalf("update common block: %v", err)
	}
	for i := 1; i < n; i++ {
		if _, err := s.AddSubQuestion(); err != nil {
			t.Fatalf("add sub-question: %v", err)
		}
	}
	for _, d := range s.View().SubQuestions {
		if err := s.SetAlternativeCorrect(d.LocalID, 0); err != nil {
			t.Fatalf("set correct: %v", err)
		}
	}
	return s
}

func draftIDs(s *Session) []string {
	v := s.View()
	out := make([]string, len(v.SubQuestions))
	for i, d := range v.SubQuestions {
		out[i] = d.LocalID
	}
	return out
}
