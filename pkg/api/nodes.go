package api

import (
	"net/http"
	"strconv"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type nodeRequest struct {
	Name          string `json:"name"`
	BaseURL       string `json:"base_url"`
	Online        bool   `json:"online"`
	CapacityBytes int64  `json:"capacity_bytes"`
}

type nodeOnlineRequest struct {
	Online bool `json:"online"`
}

type nodeResponse struct {
	ID            types.NodeID `json:"id"`
	Name          string       `json:"name"`
	BaseURL       string       `json:"base_url"`
	Online        bool         `json:"online"`
	CapacityBytes int64        `json:"capacity_bytes"`
}

func nodeIDParam(r *http.Request) (types.NodeID, error) {
	raw := chi.URLParam(r, "nodeID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fault.New(fault.Invalid, "invalid node id %q", raw)
	}
	return types.NodeID(id), nil
}

func toNodeResponse(n types.StorageNode) nodeResponse {
	return nodeResponse{
		ID:            n.ID,
		Name:          n.Name,
		BaseURL:       n.BaseURL,
		Online:        n.Online,
		CapacityBytes: n.CapacityBytes,
	}
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Name == "" || req.BaseURL == "" {
		s.writeError(w, fault.New(fault.Invalid, "node name and base_url are required"))
		return
	}

	node, err := s.store.RegisterNode(r.Context(), req.Name, req.BaseURL, req.Online, req.CapacityBytes)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("Storage node registered",
		zap.Int64("node_id", int64(node.ID)),
		zap.String("name", node.Name),
		zap.String("base_url", node.BaseURL),
		zap.Bool("online", node.Online))
	s.writeJSON(w, http.StatusCreated, toNodeResponse(node))
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	nodes, err := s.store.ListNodes(r.Context(), page)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]nodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toNodeResponse(n))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, err := nodeIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	node, err := s.store.GetNode(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toNodeResponse(node))
}

func (s *Server) handleSetNodeOnline(w http.ResponseWriter, r *http.Request) {
	id, err := nodeIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req nodeOnlineRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.SetNodeOnline(r.Context(), id, req.Online); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("Node liveness updated",
		zap.Int64("node_id", int64(id)),
		zap.Bool("online", req.Online))
	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "node updated"})
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id, err := nodeIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.DeleteNode(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("Node removed", zap.Int64("node_id", int64(id)))
	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "node removed"})
}
