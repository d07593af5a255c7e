package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"qbadmin/internal/app/observability"
	"qbadmin/internal/backend"
	"qbadmin/internal/content"
	"qbadmin/internal/exam"
	"qbadmin/internal/grouped"
	"qbadmin/internal/journal"
	"qbadmin/internal/masterdata"
	"qbadmin/internal/question"
	"qbadmin/internal/upload"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const sessionSweepInterval = time.Minute

// NewRouter wires the content API collaborators into the grouped question
// editor. db may be nil, in which case saves are not journaled. The session
// sweeper stops when ctx is done.
func NewRouter(ctx context.Context, cfg Config, db *sql.DB) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	metrics := observability.NewCollector(db)
	r.Use(metrics.Middleware)

	api := backend.NewClient(backend.ClientConfig{
		BaseURL:    cfg.ContentAPIURL,
		Token:      cfg.ContentAPIToken,
		UserID:     cfg.AdminUserID,
		HTTPClient: &http.Client{Timeout: cfg.ContentAPITimeout},
	})

	var images content.Uploader = upload.NewContentAPI(api)
	if cfg.CloudinaryURL != "" {
		cld, err := upload.NewCloudinary(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			return nil, fmt.Errorf("configure uploads: %w", err)
		}
		images = cld
	}

	questions := question.NewStore(api)
	subQuestions := question.NewSubStore(api)
	resolver := exam.NewResolver(api)
	classifications := masterdata.NewClassificationSource(api)

	deps := grouped.Deps{
		Resolver:     resolver,
		Questions:    questions,
		SubQuestions: subQuestions,
		Uploader:     images,
		OnOutcome: func(out grouped.Outcome) {
			metrics.RecordSaveOutcome(string(out.State))
		},
	}
	var journalHandler *journal.Handler
	if db != nil {
		journalSvc := journal.NewService(db)
		deps.Journal = journalSvc
		journalHandler = journal.NewHandler(journalSvc, cfg.AdminUserID)
	}

	sessions := grouped.NewRegistry(cfg.SessionIdle)
	go sessions.Run(ctx, sessionSweepInterval)
	metrics.ObserveSessions(sessions.Len)

	groupedSvc := grouped.NewService(grouped.ServiceConfig{
		Editor: grouped.Config{
			UserID:                  cfg.AdminUserID,
			DefaultClassificationID: cfg.DefaultClassificationID,
			QuestionTypeID:          cfg.GroupedQuestionTypeID,
			RollbackExistingParent:  cfg.RollbackExistingParent,
		},
		Deps:     deps,
		Parents:  questions,
		Children: subQuestions,
		Sessions: sessions,
	})
	groupedHandler := grouped.NewHandler(groupedSvc)
	examHandler := exam.NewHandler(resolver)
	classHandler := masterdata.NewHandler(classifications)

	saveLimiter := NewIPRateLimiter(cfg.SaveRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", metrics.MetricsHandler)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(CSRFMiddleware(cfg.CSRFEnforced))

		v1.Get("/classifications", classHandler.ListClassifications)
		v1.Get("/classifications/{id}", classHandler.GetClassification)
		v1.Get("/exams/resolve", examHandler.Resolve)

		v1.Route("/grouped-sessions", func(gs chi.Router) {
			gs.Post("/", groupedHandler.Create)
			gs.Post("/load", groupedHandler.Load)

			gs.Route("/{id}", func(s chi.Router) {
				s.Get("/", groupedHandler.Get)
				s.Delete("/", groupedHandler.Discard)
				s.Put("/exam-filter", groupedHandler.SetExamFilter)

				s.Post("/subquestions", groupedHandler.AddSubQuestion)
				s.Delete("/subquestions/{localID}", groupedHandler.RemoveSubQuestion)
				s.Put("/subquestions/{localID}/classification", groupedHandler.UpdateClassification)
				s.Put("/subquestions/{localID}/correct", groupedHandler.SetCorrect)
				s.Put("/subquestions/{localID}/alternatives/{index}", groupedHandler.UpdateAlternative)
				s.Put("/subquestions/{localID}/rationale", groupedHandler.UpdateRationale)
				s.Put("/subquestions/{localID}/expanded", groupedHandler.SetExpanded)

				s.Post("/targets/{target}/blocks", groupedHandler.AddBlock)
				s.Put("/targets/{target}/blocks/{blockID}", groupedHandler.UpdateBlock)
				s.Delete("/targets/{target}/blocks/{blockID}", groupedHandler.RemoveBlock)
				s.Post("/targets/{target}/images", groupedHandler.UploadImage)

				s.Post("/import", groupedHandler.ImportExcel)
				s.Get("/export", groupedHandler.ExportExcel)

				s.With(RateLimitMiddleware(saveLimiter)).Post("/save", groupedHandler.Save)
			})
		})

		if journalHandler != nil {
			v1.Get("/admin/orphans", journalHandler.ListOrphans)
			v1.Post("/admin/orphans/{id}/resolve", journalHandler.ResolveOrphan)
		}
	})

	return r, nil
}
