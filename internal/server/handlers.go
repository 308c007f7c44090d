package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kumitate/internal/compile"
	"github.com/hyperjump/kumitate/internal/models"
	"github.com/hyperjump/kumitate/internal/orchestrator"
	"github.com/hyperjump/kumitate/internal/registry"
)

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("compile request")
	report, err := s.orch.Run(r.Context())
	if err != nil {
		s.respondCompileError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// respondCompileError maps pipeline failures onto HTTP statuses. The caller
// always gets either a version handle or a complete, actionable error body.
func (s *Server) respondCompileError(w http.ResponseWriter, err error) {
	var rejected *compile.RejectedError
	var storeErr *orchestrator.StoreError
	var pubErr *orchestrator.PublishError
	switch {
	case errors.Is(err, orchestrator.ErrInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &rejected):
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":      "snapshot rejected",
			"violations": rejected.Violations,
		})
	case errors.As(err, &storeErr):
		s.logger.Error("compile: registry unavailable", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &pubErr):
		s.logger.Error("compile: publish failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Error("compile failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.registry.Stats(ctx)
	if err != nil {
		s.logger.Error("status: registry stats failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	version, err := s.orch.LastVersion(ctx)
	if err != nil {
		s.logger.Warn("status: current version unavailable", zap.Error(err))
	}
	resp := map[string]interface{}{
		"registry": stats,
		"state":    s.orch.State(),
		"version":  version,
	}
	if last := s.orch.LastRun(); last != nil {
		resp["last_run"] = last
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("list definitions failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"definitions": defs, "count": len(defs)})
}

func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var def models.QueryDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if def.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	s.logger.Debug("create definition request", zap.String("name", def.Name))
	if err := s.registry.Create(r.Context(), &def); err != nil {
		s.logger.Error("create definition failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, def)
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, err := s.registry.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "definition not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, def)
}

func (s *Server) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var def models.QueryDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	def.Name = name
	s.logger.Debug("update definition request", zap.String("name", name))
	if err := s.registry.Update(r.Context(), &def); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "definition not found")
			return
		}
		s.logger.Error("update definition failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, def)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("set enabled request", zap.String("name", name), zap.Bool("enabled", body.Enabled))
	if err := s.registry.SetEnabled(r.Context(), name, body.Enabled); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "definition not found")
			return
		}
		s.logger.Error("set enabled failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"name": name, "enabled": body.Enabled})
}

func (s *Server) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.logger.Debug("delete definition request", zap.String("name", name))
	if err := s.registry.Delete(r.Context(), name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "definition not found")
			return
		}
		s.logger.Error("delete definition failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"name": name, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
