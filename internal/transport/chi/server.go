// Package chi serves the ops and admin HTTP surface: probes, metrics,
// on-demand indexing and reply drafting by email id.
package chi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	domemail "github.com/kailas-cloud/mailrag/internal/domain/email"
	domreply "github.com/kailas-cloud/mailrag/internal/domain/reply"
	domusage "github.com/kailas-cloud/mailrag/internal/domain/usage"
	"github.com/kailas-cloud/mailrag/internal/metrics"
	healthuc "github.com/kailas-cloud/mailrag/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/mailrag/internal/usecase/indexing"
	"github.com/kailas-cloud/mailrag/internal/version"
)

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Replier drafts a reply for a stored email.
type Replier interface {
	SuggestForID(ctx context.Context, id int64) (domreply.Suggestion, error)
}

// IndexFunc runs one indexing pass over the configured email source.
type IndexFunc func(ctx context.Context, mode indexinguc.Mode) (indexinguc.Report, error)

// StoreStats exposes vector store size.
type StoreStats interface {
	Len() int
	Dimension() int
}

// UsageReporter reports embedding token usage for a budget period.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) (domusage.Report, error)
}

// Deps are the collaborators behind the routes. Nil Index, Replier, Stats or
// Usage leave the matching admin route unregistered.
type Deps struct {
	Health   HealthChecker
	Replier  Replier
	Index    IndexFunc
	Stats    StoreStats
	Usage    UsageReporter
	Gatherer prometheus.Gatherer
	APIKeys  []string
	Logger   *zap.Logger
}

// Server holds the route handlers.
type Server struct {
	deps Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(Recoverer(deps.Logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEvent(deps.Logger))
	r.Use(BearerAuthMiddleware(deps.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.Healthz)
	r.Get("/readyz", s.Readyz)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	if deps.Stats != nil {
		r.Get("/admin/stats", s.Stats)
	}
	if deps.Usage != nil {
		r.Get("/admin/usage", s.Usage)
	}
	if deps.Index != nil {
		r.Post("/admin/index", s.Index)
	}
	if deps.Replier != nil {
		r.Post("/admin/emails/{id}/reply", s.Reply)
	}
	return r
}

type healthzResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Healthz handles GET /healthz. The process is alive if it can answer.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:  string(healthuc.Healthy),
		Version: version.Version,
		Commit:  version.Commit,
	})
}

// Readyz handles GET /readyz. A degraded provider still serves stored data;
// only unreachable storage makes the process unready.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}})
		return
	}
	report := s.deps.Health.Check(r.Context())
	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type statsResponse struct {
	Records   int `json:"records"`
	Dimension int `json:"dimension"`
}

// Stats handles GET /admin/stats.
func (s *Server) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Records:   s.deps.Stats.Len(),
		Dimension: s.deps.Stats.Dimension(),
	})
}

type usageResponse struct {
	Period    string `json:"period"`
	Start     string `json:"period_start"`
	ResetsAt  string `json:"resets_at"`
	Used      int64  `json:"tokens_used"`
	Limit     int64  `json:"tokens_limit"`
	Remaining int64  `json:"tokens_remaining"`
	Exhausted bool   `json:"exhausted"`
}

// Usage handles GET /admin/usage?period=day|month (default day).
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	period := domusage.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = domusage.PeriodDay
	}
	if !period.IsValid() {
		writeError(w, http.StatusBadRequest, codeBadRequest, "period must be \"day\" or \"month\"")
		return
	}

	rep, err := s.deps.Usage.GetReport(r.Context(), period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Period:    string(rep.Period()),
		Start:     rep.Start().Format(time.RFC3339),
		ResetsAt:  rep.End().Format(time.RFC3339),
		Used:      rep.Used(),
		Limit:     rep.Limit(),
		Remaining: rep.Remaining(),
		Exhausted: rep.Exhausted(),
	})
}

type indexResponse struct {
	RunID       string `json:"run_id"`
	Mode        string `json:"mode"`
	Total       int    `json:"total"`
	Indexed     int    `json:"indexed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	DurationMS  int64  `json:"duration_ms"`
	Interrupted bool   `json:"interrupted"`
}

// Index handles POST /admin/index?mode=catchup|reindex (default catchup).
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	mode := indexinguc.Mode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = indexinguc.ModeCatchUp
	}
	if !mode.IsValid() {
		writeError(w, http.StatusBadRequest, codeBadRequest, "mode must be \"catchup\" or \"reindex\"")
		return
	}

	rep, err := s.deps.Index(r.Context(), mode)
	if err != nil {
		s.deps.Logger.Error("Indexing request failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, indexResponse{
		RunID:       rep.RunID,
		Mode:        string(rep.Mode),
		Total:       rep.Total,
		Indexed:     rep.Indexed,
		Skipped:     rep.Skipped,
		Failed:      rep.Failed,
		DurationMS:  rep.Duration.Milliseconds(),
		Interrupted: rep.Interrupted,
	})
}

type sourceResponse struct {
	RecordID int     `json:"record_id"`
	EmailID  string  `json:"email_id"`
	Subject  string  `json:"subject"`
	Score    float64 `json:"score"`
}

type replyResponse struct {
	Reply   string           `json:"reply"`
	Path    string           `json:"path"`
	Sources []sourceResponse `json:"sources"`
}

// Reply handles POST /admin/emails/{id}/reply.
func (s *Server) Reply(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "email id must be a positive integer")
		return
	}

	sug, err := s.deps.Replier.SuggestForID(r.Context(), id)
	if err != nil {
		s.deps.Logger.Warn("Reply request failed", zap.Int64("email_id", id), zap.Error(err))
		writeDomainError(w, err)
		return
	}

	sources := make([]sourceResponse, 0, len(sug.Sources()))
	for _, src := range sug.Sources() {
		meta := src.Metadata()
		sources = append(sources, sourceResponse{
			RecordID: src.RecordID(),
			EmailID:  meta[domemail.MetaEmailID],
			Subject:  meta[domemail.MetaSubject],
			Score:    src.Score(),
		})
	}
	writeJSON(w, http.StatusOK, replyResponse{
		Reply:   sug.Text(),
		Path:    string(sug.Path()),
		Sources: sources,
	})
}
