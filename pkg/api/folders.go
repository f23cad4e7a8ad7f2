package api

import (
	"net/http"
	"strconv"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type folderRequest struct {
	Name     string          `json:"name"`
	ParentID *types.FolderID `json:"parent_id,omitempty"`
}

type folderResponse struct {
	ID       types.FolderID  `json:"id"`
	Name     string          `json:"name"`
	ParentID *types.FolderID `json:"parent_id,omitempty"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, fault.New(fault.Invalid, "folder name is required"))
		return
	}

	folder, err := s.store.CreateFolder(r.Context(), req.Name, requestUser(r), req.ParentID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("Folder created",
		zap.Int64("folder_id", int64(folder.ID)),
		zap.String("name", folder.Name))
	s.writeJSON(w, http.StatusCreated, folderResponse{ID: folder.ID, Name: folder.Name, ParentID: folder.ParentID})
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	folders, err := s.store.ListFolders(r.Context(), requestUser(r), page)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]folderResponse, 0, len(folders))
	for _, f := range folders {
		out = append(out, folderResponse{ID: f.ID, Name: f.Name, ParentID: f.ParentID})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "folderID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeError(w, fault.New(fault.Invalid, "invalid folder id %q", raw))
		return
	}

	if err := s.store.DeleteFolder(r.Context(), types.FolderID(id), requestUser(r)); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "folder deleted"})
}
