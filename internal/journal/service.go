package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrOrphanNotFound = errors.New("orphan not found")
)

// Entry is one grouped-question save outcome.
type Entry struct {
	ActorID    int64
	SessionID  string
	ExamID     int64
	ParentID   int64
	ChildCount int
	FinalState string
	Message    string
	Orphaned   bool
}

// Orphan is a parent question left behind by a failed rollback.
type Orphan struct {
	ID         int64      `json:"id"`
	ActorID    int64      `json:"actor_id"`
	SessionID  string     `json:"session_id"`
	ExamID     int64      `json:"exam_id"`
	ParentID   int64      `json:"parent_id"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy *int64     `json:"resolved_by,omitempty"`
	Note       *string    `json:"note,omitempty"`
}

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) RecordSave(ctx context.Context, e Entry) error {
	e.SessionID = strings.TrimSpace(e.SessionID)
	e.FinalState = strings.TrimSpace(e.FinalState)
	if e.SessionID == "" || e.FinalState == "" {
		return ErrInvalidInput
	}
	if e.Orphaned && e.ParentID <= 0 {
		return fmt.Errorf("%w: orphan entry needs a parent id", ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grouped_save_journal (
			actor_id, session_id, exam_id, parent_id, child_count,
			final_state, message, orphaned, created_at
		) VALUES (
			NULLIF($1, 0), $2, NULLIF($3, 0), NULLIF($4, 0), $5,
			$6, $7, $8, now()
		)
	`, e.ActorID, e.SessionID, e.ExamID, e.ParentID, e.ChildCount, e.FinalState, e.Message, e.Orphaned)
	if err != nil {
		return fmt.Errorf("insert save journal: %w", err)
	}
	return nil
}

// ListOrphans returns orphaned parents, unresolved ones only unless all is set.
func (s *Service) ListOrphans(ctx context.Context, all bool) ([]Orphan, error) {
	query := `
		SELECT id, COALESCE(actor_id, 0), session_id, COALESCE(exam_id, 0), parent_id,
			message, created_at, resolved_at, resolved_by, resolution_note
		FROM grouped_save_journal
		WHERE orphaned = TRUE
	`
	if !all {
		query += ` AND resolved_at IS NULL`
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query orphans: %w", err)
	}
	defer rows.Close()

	items := make([]Orphan, 0)
	for rows.Next() {
		var o Orphan
		var resolvedAt sql.NullTime
		var resolvedBy sql.NullInt64
		var note sql.NullString
		if err := rows.Scan(
			&o.ID,
			&o.ActorID,
			&o.SessionID,
			&o.ExamID,
			&o.ParentID,
			&o.Message,
			&o.CreatedAt,
			&resolvedAt,
			&resolvedBy,
			&note,
		); err != nil {
			return nil, fmt.Errorf("scan orphan: %w", err)
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			o.ResolvedAt = &t
		}
		if resolvedBy.Valid {
			v := resolvedBy.Int64
			o.ResolvedBy = &v
		}
		if note.Valid {
			v := note.String
			o.Note = &v
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphans: %w", err)
	}
	return items, nil
}

// ResolveOrphan marks an orphan as handled after out-of-band cleanup.
func (s *Service) ResolveOrphan(ctx context.Context, id, actorID int64, note string) (*Orphan, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	note = strings.TrimSpace(note)

	var o Orphan
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullInt64
	var resolvedNote sql.NullString
	err := s.db.QueryRowContext(ctx, `
		UPDATE grouped_save_journal
		SET resolved_at = now(), resolved_by = NULLIF($2, 0), resolution_note = NULLIF($3, '')
		WHERE id = $1 AND orphaned = TRUE AND resolved_at IS NULL
		RETURNING id, COALESCE(actor_id, 0), session_id, COALESCE(exam_id, 0), parent_id,
			message, created_at, resolved_at, resolved_by, resolution_note
	`, id, actorID, note).Scan(
		&o.ID,
		&o.ActorID,
		&o.SessionID,
		&o.ExamID,
		&o.ParentID,
		&o.Message,
		&o.CreatedAt,
		&resolvedAt,
		&resolvedBy,
		&resolvedNote,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrphanNotFound
		}
		return nil, fmt.Errorf("resolve orphan: %w", err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		o.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		v := resolvedBy.Int64
		o.ResolvedBy = &v
	}
	if resolvedNote.Valid {
		v := resolvedNote.String
		o.Note = &v
	}
	return &o, nil
}
