package api

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type fileResponse struct {
	ID          types.FileID    `json:"id"`
	Name        string          `json:"name"`
	ContentType string          `json:"content_type"`
	FolderID    *types.FolderID `json:"folder_id,omitempty"`
	Version     int             `json:"version"`
	SizeBytes   int64           `json:"size_bytes"`
}

type versionResponse struct {
	ID        types.VersionID `json:"id"`
	Number    int             `json:"number"`
	SizeBytes int64           `json:"size_bytes"`
}

type permissionRequest struct {
	UserID types.UserID `json:"user_id"`
	Role   types.Role   `json:"role"`
}

func fileIDParam(r *http.Request) (types.FileID, error) {
	raw := chi.URLParam(r, "fileID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fault.New(fault.Invalid, "invalid file id %q", raw)
	}
	return types.FileID(id), nil
}

// uploadPart finds the "file" part of a multipart body without
// buffering the payload. The part is streamed straight into the
// chunk writer.
func uploadPart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fault.Wrap(fault.Invalid, err, "expected multipart upload")
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fault.New(fault.Invalid, "multipart body has no file field")
		}
		if err != nil {
			return nil, fault.Wrap(fault.Invalid, err, "malformed multipart body")
		}
		if part.FormName() == "file" {
			return part, nil
		}
	}
}

func partContentType(part *multipart.Part) string {
	ct := part.Header.Get("Content-Type")
	if ct == "" {
		return "application/octet-stream"
	}
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		return parsed
	}
	return "application/octet-stream"
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)

	var folderID *types.FolderID
	if raw := r.URL.Query().Get("folder_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, fault.New(fault.Invalid, "invalid folder id %q", raw))
			return
		}
		fid := types.FolderID(id)
		folderID = &fid
	}

	part, err := uploadPart(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer part.Close()

	if part.FileName() == "" {
		s.writeError(w, fault.New(fault.Invalid, "uploaded file has no name"))
		return
	}

	file, err := s.store.CreateFile(r.Context(), part.FileName(), partContentType(part), userID, folderID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	version, err := s.coord.UploadVersion(r.Context(), file.ID, part)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("File created",
		zap.Int64("file_id", int64(file.ID)),
		zap.String("name", file.Name),
		zap.Int64("owner_id", int64(userID)))

	s.writeJSON(w, http.StatusCreated, fileResponse{
		ID:          file.ID,
		Name:        file.Name,
		ContentType: file.ContentType,
		FolderID:    file.FolderID,
		Version:     version.Number,
		SizeBytes:   version.SizeBytes,
	})
}

func (s *Server) handleUploadVersion(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := s.store.GetFileForUser(r.Context(), fileID, requestUser(r), types.RoleWrite); err != nil {
		s.writeError(w, err)
		return
	}

	part, err := uploadPart(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer part.Close()

	version, err := s.coord.UploadVersion(r.Context(), fileID, part)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, versionResponse{
		ID:        version.ID,
		Number:    version.Number,
		SizeBytes: version.SizeBytes,
	})
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	file, err := s.store.GetFileForUser(r.Context(), fileID, requestUser(r), types.RoleRead)
	if err != nil {
		s.writeError(w, err)
		return
	}

	number := 0
	if raw := r.URL.Query().Get("version"); raw != "" {
		number, err = strconv.Atoi(raw)
		if err != nil || number < 1 {
			s.writeError(w, fault.New(fault.Invalid, "invalid version %q", raw))
			return
		}
	}

	version, stream, err := s.coord.DownloadVersion(r.Context(), fileID, number)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(version.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))

	if _, err := stream.WriteTo(r.Context(), w); err != nil {
		// Headers are already out; all we can do is cut the stream
		// short so the client sees a length mismatch.
		s.logger.Warn("Download aborted mid-stream",
			zap.Int64("file_id", int64(fileID)),
			zap.Int("version", version.Number),
			zap.Error(err))
	}
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := s.store.GetFileForUser(r.Context(), fileID, requestUser(r), types.RoleRead); err != nil {
		s.writeError(w, err)
		return
	}

	versions, err := s.coord.ListVersions(r.Context(), fileID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]versionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionResponse{ID: v.ID, Number: v.Number, SizeBytes: v.SizeBytes})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	raw := chi.URLParam(r, "number")
	number, err := strconv.Atoi(raw)
	if err != nil || number < 1 {
		s.writeError(w, fault.New(fault.Invalid, "invalid version %q", raw))
		return
	}

	if _, err := s.store.GetFileForUser(r.Context(), fileID, requestUser(r), types.RoleOwner); err != nil {
		s.writeError(w, err)
		return
	}

	version, err := s.store.GetVersion(r.Context(), fileID, number)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.DeleteVersion(r.Context(), version.ID); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("File version deleted",
		zap.Int64("file_id", int64(fileID)),
		zap.Int("version", number))
	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "version deleted"})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := s.store.GetFileForUser(r.Context(), fileID, requestUser(r), types.RoleOwner); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.DeleteFile(r.Context(), fileID); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("File deleted", zap.Int64("file_id", int64(fileID)))
	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "file deleted"})
}

func (s *Server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req permissionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := s.store.GetFileForUser(r.Context(), fileID, requestUser(r), types.RoleOwner); err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := s.store.GetUser(r.Context(), req.UserID); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.GrantPermission(r.Context(), fileID, req.UserID, req.Role); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("Permission granted",
		zap.Int64("file_id", int64(fileID)),
		zap.Int64("user_id", int64(req.UserID)),
		zap.String("role", string(req.Role)))
	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "permission granted"})
}
