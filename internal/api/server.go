package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"jobflow/internal/command"
	"jobflow/internal/daterange"
	"jobflow/internal/domain"
	"jobflow/internal/engine"
	"jobflow/internal/report"
	"jobflow/internal/routing"
	"jobflow/internal/scheduler"
	"jobflow/internal/store"
)

// RecurringRegistry exposes the engine's recurring jobs. It is nil when
// the process dispatches inline.
type RecurringRegistry interface {
	Recurring() []engine.RecurringEntry
	RemoveRecurring(key string) bool
	TriggerRecurring(key string) error
}

type Deps struct {
	Repo      *store.SQLiteRepo
	Router    *routing.Service
	Sync      *scheduler.Service
	Recurring RecurringRegistry
	Logger    zerolog.Logger
	Debug     bool
	Now       func() time.Time
}

type Server struct {
	repo   *store.SQLiteRepo
	router *routing.Service
	sync   *scheduler.Service
	rec    RecurringRegistry
	logger zerolog.Logger
	now    func() time.Time
}

func NewServer(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{repo: d.Repo, router: d.Router, sync: d.Sync, rec: d.Recurring, logger: d.Logger, now: d.Now}
	if s.now == nil {
		s.now = time.Now
	}

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/commands", s.listCommands)
		r.Get("/commands/{name}", s.getCommand)
		r.Get("/reports", s.listReports)
		r.Get("/templates", s.listTemplates)
		r.Get("/date-ranges/{term}", s.resolveDateRange)

		r.Post("/jobs/{name}/dispatch", s.dispatch)
		r.Post("/jobs/{name}/schedule", s.schedule)
		r.Get("/recurring", s.listRecurring)
		r.Delete("/recurring/{key}", s.removeRecurring)
		r.Post("/recurring/{key}/trigger", s.triggerRecurring)

		r.Get("/definitions", s.listDefinitions)
		r.Post("/definitions", s.createDefinition)
		r.Post("/definitions/sync", s.syncDefinitions)
		r.Get("/definitions/{id}", s.getDefinition)
		r.Put("/definitions/{id}", s.updateDefinition)
		r.Delete("/definitions/{id}", s.deleteDefinition)
		r.Post("/definitions/{id}/run", s.runDefinition)
		r.Get("/definitions/{id}/next-runs", s.nextRuns)
		r.Get("/definitions/{id}/executions", s.definitionExecutions)

		r.Get("/executions", s.listExecutions)
		r.Get("/executions/{id}", s.getExecution)
	})

	// Debug routes (pprof)
	if d.Debug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type commandInfo struct {
	Name   string             `json:"name"`
	Params []command.Metadata `json:"params"`
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	names := command.RegisteredNames()
	out := make([]commandInfo, 0, len(names))
	for _, n := range names {
		md, _ := command.GetMetadata(n)
		out = append(out, commandInfo{Name: n, Params: md})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	md, ok := command.GetMetadata(name)
	if !ok {
		http.Error(w, "unknown job type: "+name, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, commandInfo{Name: name, Params: md})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, report.Names())
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := s.repo.ListTemplateNames(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) resolveDateRange(w http.ResponseWriter, r *http.Request) {
	ref := s.now()
	if v := r.URL.Query().Get("ref"); v != "" {
		t, err := time.ParseInLocation(time.DateOnly, v, time.Local)
		if err != nil {
			http.Error(w, "ref must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		ref = t
	}
	rng, err := daterange.Resolve(chi.URLParam(r, "term"), ref)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"start": rng.Start.Format(time.DateOnly),
		"end":   rng.End.Format(time.DateOnly),
	})
}

// dispatch takes the raw parameter blob as the request body.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.router.DispatchByName(r.Context(), name, string(body)); err != nil {
		if errors.Is(err, routing.ErrUnknownJobType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info().Str("command", name).Msg("dispatched by name")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched", "command": name})
}

type scheduleReq struct {
	Cron       string          `json:"cron"`
	Parameters json.RawMessage `json:"parameters"`
}

func (s *Server) schedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req scheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := command.Lookup(name); !ok {
		http.Error(w, "unknown job type: "+name, http.StatusBadRequest)
		return
	}
	if err := scheduler.ValidateCronExpression(req.Cron); err != nil {
		http.Error(w, "invalid cron expression: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.router.ScheduleByName(r.Context(), name, string(req.Parameters), req.Cron); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "scheduled", "command": name, "cron": req.Cron})
}

func (s *Server) listRecurring(w http.ResponseWriter, r *http.Request) {
	if s.rec == nil {
		writeJSON(w, http.StatusOK, []engine.RecurringEntry{})
		return
	}
	writeJSON(w, http.StatusOK, s.rec.Recurring())
}

func (s *Server) removeRecurring(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if s.rec == nil || !s.rec.RemoveRecurring(key) {
		http.Error(w, "no recurring job: "+key, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) triggerRecurring(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if s.rec == nil {
		http.Error(w, "no recurring job: "+key, http.StatusNotFound)
		return
	}
	if err := s.rec.TriggerRecurring(key); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered", "key": key})
}

// unschedule drops the recurring entry registered for a definition name.
func (s *Server) unschedule(name string) {
	if s.rec != nil && s.rec.RemoveRecurring(name) {
		s.logger.Info().Str("definition", name).Msg("recurring job removed")
	}
}

type definitionReq struct {
	Name           string          `json:"name"`
	JobTypeName    string          `json:"job_type_name"`
	Parameters     json.RawMessage `json:"parameters"`
	CronExpression string          `json:"cron_expression"`
	Enabled        *bool           `json:"enabled"`
}

// apply copies the request onto d and validates the result.
func (req definitionReq) apply(d *domain.JobDefinition, now time.Time) error {
	if req.Name != "" {
		d.Name = req.Name
	}
	if req.JobTypeName != "" {
		d.JobTypeName = req.JobTypeName
	}
	if req.Parameters != nil {
		d.ParametersJSON = string(req.Parameters)
	}
	if req.CronExpression != "" {
		d.CronExpression = strings.TrimSpace(req.CronExpression)
	}
	if req.Enabled != nil {
		d.Enabled = *req.Enabled
	}

	if d.Name == "" {
		return errors.New("name is required")
	}
	if _, ok := command.Lookup(d.JobTypeName); !ok {
		return errors.New("unknown job type: " + d.JobTypeName)
	}
	d.NextRunAt = nil
	if d.CronExpression != "" {
		next, err := scheduler.NextRunTime(d.CronExpression, now)
		if err != nil {
			return errors.New("invalid cron expression: " + err.Error())
		}
		if d.Enabled {
			d.NextRunAt = &next
		}
	}
	return nil
}

func (s *Server) listDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.repo.ListDefinitions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if defs == nil {
		defs = []domain.JobDefinition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) createDefinition(w http.ResponseWriter, r *http.Request) {
	var req definitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	def := domain.JobDefinition{Enabled: true}
	if err := req.apply(&def, s.now()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.repo.GetDefinitionByName(r.Context(), def.Name); err == nil {
		http.Error(w, "definition already exists: "+def.Name, http.StatusConflict)
		return
	}
	id, err := s.repo.CreateDefinition(r.Context(), def)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	created, err := s.repo.GetDefinition(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) definitionFromURL(w http.ResponseWriter, r *http.Request) (domain.JobDefinition, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return domain.JobDefinition{}, false
	}
	def, err := s.repo.GetDefinition(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return domain.JobDefinition{}, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return domain.JobDefinition{}, false
	}
	return def, true
}

func (s *Server) getDefinition(w http.ResponseWriter, r *http.Request) {
	if def, ok := s.definitionFromURL(w, r); ok {
		writeJSON(w, http.StatusOK, def)
	}
}

func (s *Server) updateDefinition(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definitionFromURL(w, r)
	if !ok {
		return
	}
	oldName := def.Name
	var req definitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.apply(&def, s.now()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.repo.UpdateDefinition(r.Context(), def); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Recurring entries are keyed by definition name.
	if oldName != def.Name {
		s.unschedule(oldName)
	}
	if def.Enabled && def.CronExpression != "" {
		if err := s.router.ScheduleDefinition(r.Context(), def); err != nil {
			s.logger.Warn().Err(err).Str("definition", def.Name).Msg("failed to reschedule job definition")
		}
	} else {
		s.unschedule(def.Name)
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) deleteDefinition(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definitionFromURL(w, r)
	if !ok {
		return
	}
	if err := s.repo.DeleteDefinition(r.Context(), def.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.unschedule(def.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runDefinition(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definitionFromURL(w, r)
	if !ok {
		return
	}
	if err := s.router.RunDefinition(r.Context(), def); err != nil {
		if errors.Is(err, routing.ErrUnknownJobType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info().Str("definition", def.Name).Msg("job definition run requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched", "definition": def.Name})
}

// syncDefinitions re-registers every schedulable definition, for use after
// definitions change.
func (s *Server) syncDefinitions(w http.ResponseWriter, r *http.Request) {
	res, err := s.sync.Sync(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) nextRuns(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definitionFromURL(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(def.CronExpression) == "" {
		writeJSON(w, http.StatusOK, []time.Time{})
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 || n > 100 {
		n = 5
	}
	runs, err := scheduler.NextRuns(def.CronExpression, s.now(), n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) definitionExecutions(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definitionFromURL(w, r)
	if !ok {
		return
	}
	s.writeExecutions(w, r, store.ExecutionFilter{DefinitionID: &def.ID, Limit: queryInt(r, "limit")})
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ExecutionFilter{
		JobName: q.Get("job"),
		Status:  domain.RunStatus(q.Get("status")),
		Limit:   queryInt(r, "limit"),
	}
	if v := q.Get("definition"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid definition id", http.StatusBadRequest)
			return
		}
		f.DefinitionID = &id
	}
	s.writeExecutions(w, r, f)
}

func (s *Server) writeExecutions(w http.ResponseWriter, r *http.Request, f store.ExecutionFilter) {
	recs, err := s.repo.ListExecutions(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	rec, err := s.repo.GetExecution(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
