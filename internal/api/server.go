// Package api exposes the HTTP trigger surface for the verification
// pipeline: ad-hoc verification, job polling, bulk runs, and health.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/longbox-labs/entity-verify/internal/bulk"
	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/internal/monitoring"
	"github.com/longbox-labs/entity-verify/internal/queue"
	"github.com/longbox-labs/entity-verify/internal/resilience"
	"github.com/longbox-labs/entity-verify/internal/store"
)

// Server wires the pipeline's trigger endpoints together.
type Server struct {
	store     store.Store
	queue     queue.Queue
	scheduler *bulk.Scheduler
	breakers  *resilience.SourceBreakers
	collector *monitoring.Collector
}

// NewServer creates the HTTP surface over the pipeline components.
func NewServer(st store.Store, q queue.Queue, scheduler *bulk.Scheduler, breakers *resilience.SourceBreakers, collector *monitoring.Collector) *Server {
	return &Server{
		store:     st,
		queue:     q,
		scheduler: scheduler,
		breakers:  breakers,
		collector: collector,
	}
}

// Router builds the chi router with all pipeline routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/verify", func(r chi.Router) {
		r.Post("/batch", s.handleVerifyBatch)
		r.Get("/job/{jobID}", s.handleGetJob)
		r.Get("/metrics", s.handleMetricsSnapshot)
		r.Post("/reset-breaker/{source}", s.handleResetBreaker)
		r.Post("/{entityID}", s.handleVerifyEntity)
	})

	r.Route("/bulk-verify", func(r chi.Router) {
		r.Post("/start", s.handleBulkStart)
		r.Get("/progress/{runID}", s.handleBulkProgress)
		r.Post("/stop/{runID}", s.handleBulkStop)
	})

	return r
}

type verifyRequest struct {
	TableType    model.TableType `json:"tableType,omitempty"`
	ForceRefresh bool            `json:"forceRefresh,omitempty"`
	Priority     int             `json:"priority,omitempty"`
}

func (s *Server) handleVerifyEntity(w http.ResponseWriter, r *http.Request) {
	entityID, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	req := verifyRequest{TableType: model.TableCharacters}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.TableType == "" {
		req.TableType = model.TableCharacters
	}
	if !req.TableType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown table type")
		return
	}

	entity, err := s.store.GetEntity(r.Context(), req.TableType, entityID)
	if err != nil {
		zap.L().Error("api: load entity", zap.Int64("entity_id", entityID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load entity failed")
		return
	}
	if entity == nil {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}

	jobID, err := s.queue.Enqueue(r.Context(), model.VerificationJob{
		EntityID:      entity.ID,
		CanonicalName: entity.CanonicalName,
		EntityType:    entity.EntityType,
		TableType:     req.TableType,
		ForceRefresh:  req.ForceRefresh,
	}, queue.EnqueueOptions{Priority: req.Priority})
	if err != nil {
		zap.L().Error("api: enqueue", zap.Int64("entity_id", entityID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":    jobID,
		"entityId": entity.ID,
		"queued":   true,
	})
}

type batchRequest struct {
	TableType            model.TableType `json:"tableType,omitempty"`
	Limit                int             `json:"limit"`
	SkipRecentlyVerified *bool           `json:"skipRecentlyVerified,omitempty"`
	MaxAgeHours          int             `json:"maxAgeHours,omitempty"`
	Priority             int             `json:"priority,omitempty"`
}

func (s *Server) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TableType == "" {
		req.TableType = model.TableCharacters
	}
	if !req.TableType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown table type")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	// Fresh entities are filtered by the reconciler; opting out of that
	// filter forces a refresh on every enqueued job.
	forceRefresh := req.SkipRecentlyVerified != nil && !*req.SkipRecentlyVerified

	entities, err := s.store.ListEntities(r.Context(), req.TableType, store.ListFilter{
		Status: model.StatusUnverified,
		Limit:  req.Limit,
	})
	if err != nil {
		zap.L().Error("api: list batch", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list entities failed")
		return
	}

	jobIDs := make([]string, 0, len(entities))
	for _, e := range entities {
		jobID, err := s.queue.Enqueue(r.Context(), model.VerificationJob{
			EntityID:      e.ID,
			CanonicalName: e.CanonicalName,
			EntityType:    e.EntityType,
			TableType:     req.TableType,
			ForceRefresh:  forceRefresh,
			MaxAgeHours:   req.MaxAgeHours,
		}, queue.EnqueueOptions{Priority: req.Priority})
		if err != nil {
			zap.L().Warn("api: batch enqueue failed", zap.Int64("entity_id", e.ID), zap.Error(err))
			continue
		}
		jobIDs = append(jobIDs, jobID)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued": len(jobIDs),
		"jobIds": jobIDs,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.queue.Get(r.Context(), jobID)
	if err != nil {
		zap.L().Error("api: get job", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get job failed")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.Collect(r.Context())
	if err != nil {
		zap.L().Error("api: collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect metrics failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	sourceName := chi.URLParam(r, "source")
	if !s.breakers.Reset(sourceName) {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source": sourceName,
		"reset":  true,
	})
}

type bulkStartRequest struct {
	TableType             model.TableType `json:"tableType"`
	BatchSize             int             `json:"batchSize,omitempty"`
	DelayBetweenBatchesMs int             `json:"delayBetweenBatches,omitempty"`
	TotalBatches          int             `json:"totalBatches,omitempty"`
	Priority              int             `json:"priority,omitempty"`
	ForceRefresh          bool            `json:"forceRefresh,omitempty"`
}

func (s *Server) handleBulkStart(w http.ResponseWriter, r *http.Request) {
	var req bulkStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runID, err := s.scheduler.StartRun(r.Context(), bulk.RunParams{
		TableType:           req.TableType,
		BatchSize:           req.BatchSize,
		DelayBetweenBatches: time.Duration(req.DelayBetweenBatchesMs) * time.Millisecond,
		MaxBatches:          req.TotalBatches,
		Priority:            req.Priority,
		ForceRefresh:        req.ForceRefresh,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":   runID,
		"message": "bulk verification started",
	})
}

func (s *Server) handleBulkProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progress, ok := s.scheduler.Progress(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleBulkStop(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	writeJSON(w, http.StatusOK, map[string]any{
		"stopped": s.scheduler.Stop(runID),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
