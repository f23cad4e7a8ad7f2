// Package api is the control-plane HTTP surface: account and token
// endpoints, file and folder CRUD, permission grants, and the node
// admin operations. It holds no storage logic of its own; uploads and
// downloads are delegated to the coordinator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cloudrive/pkg/auth"
	"cloudrive/pkg/config"
	"cloudrive/pkg/coordinator"
	"cloudrive/pkg/fault"
	"cloudrive/pkg/metadata"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Server struct {
	cfg    *config.ServerConfig
	store  *metadata.Store
	coord  *coordinator.Coordinator
	tokens *auth.TokenIssuer
	logger *zap.Logger
	server *http.Server
}

func New(cfg *config.ServerConfig, store *metadata.Store, coord *coordinator.Coordinator, tokens *auth.TokenIssuer, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		coord:  coord,
		tokens: tokens,
		logger: logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/files", s.handleUploadFile)
		r.Get("/files/{fileID}/download", s.handleDownloadFile)
		r.Delete("/files/{fileID}", s.handleDeleteFile)
		r.Post("/files/{fileID}/versions", s.handleUploadVersion)
		r.Get("/files/{fileID}/versions", s.handleListVersions)
		r.Delete("/files/{fileID}/versions/{number}", s.handleDeleteVersion)
		r.Post("/files/{fileID}/permissions", s.handleGrantPermission)

		r.Post("/folders", s.handleCreateFolder)
		r.Get("/folders", s.handleListFolders)
		r.Delete("/folders/{folderID}", s.handleDeleteFolder)

		r.Post("/nodes", s.handleRegisterNode)
		r.Get("/nodes", s.handleListNodes)
		r.Get("/nodes/{nodeID}", s.handleGetNode)
		r.Patch("/nodes/{nodeID}/online", s.handleSetNodeOnline)
		r.Delete("/nodes/{nodeID}", s.handleDeleteNode)
	})

	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{Addr: s.cfg.Address, Handler: s.Router()}

	s.logger.Info("API server starting", zap.String("address", s.cfg.Address))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("API server shutdown failed", zap.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.Invalid:
		status = http.StatusBadRequest
	case fault.Unauthorized:
		status = http.StatusUnauthorized
	case fault.Forbidden:
		status = http.StatusForbidden
	case fault.NotFound:
		status = http.StatusNotFound
	case fault.Conflict:
		status = http.StatusConflict
	case fault.Upstream:
		status = http.StatusBadGateway
	case fault.Unavailable:
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		s.logger.Error("Request failed", zap.Error(err))
	}

	s.writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fault.Wrap(fault.Invalid, err, "invalid request body")
	}
	return nil
}
