package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/lo"

	"github.com/onkernel/workspace-companion/lib/files"
	"github.com/onkernel/workspace-companion/lib/logger"
	"github.com/onkernel/workspace-companion/lib/oapi"
	"github.com/onkernel/workspace-companion/lib/pathguard"
)

// ListRoot lists the served root directory.
func (s *ApiService) ListRoot(ctx context.Context, _ oapi.ListRootRequestObject) (oapi.ListRootResponseObject, error) {
	entries, err := s.store.List("")
	if err != nil {
		_, body := classify(ctx, "", err)
		return oapi.ListRoot500JSONResponse{ErrorJSONResponse: body}, nil
	}
	return oapi.ListRoot200JSONResponse{Entries: toEntries(entries), Path: "/"}, nil
}

// ReadFile returns a file's content, or a listing when the path is a directory.
func (s *ApiService) ReadFile(ctx context.Context, req oapi.ReadFileRequestObject) (oapi.ReadFileResponseObject, error) {
	c, err := s.store.Read(req.Path)
	if err != nil {
		switch status, body := classify(ctx, req.Path, err); status {
		case http.StatusForbidden:
			return oapi.ReadFile403JSONResponse{ErrorJSONResponse: body}, nil
		case http.StatusNotFound:
			return oapi.ReadFile404JSONResponse{ErrorJSONResponse: body}, nil
		case http.StatusRequestEntityTooLarge:
			return oapi.ReadFile413JSONResponse{ErrorJSONResponse: body}, nil
		default:
			return oapi.ReadFile500JSONResponse{ErrorJSONResponse: body}, nil
		}
	}
	if c.Kind == files.KindDirectory {
		return oapi.ReadFile200ListingJSONResponse{Entries: toEntries(c.Entries), Path: c.Path}, nil
	}
	return oapi.ReadFile200FileContentJSONResponse{
		Path:     c.Path,
		Content:  c.Data,
		Binary:   c.Binary,
		Size:     c.Size,
		Modified: c.ModifiedAt,
	}, nil
}

// CreateFile writes a file, or makes a directory when the body's type says so.
func (s *ApiService) CreateFile(ctx context.Context, req oapi.CreateFileRequestObject) (oapi.CreateFileResponseObject, error) {
	in := lo.FromPtr(req.Body)
	kind, msg := files.KindFile, "File created"
	if lo.FromPtr(in.Type) == string(files.KindDirectory) {
		kind, msg = files.KindDirectory, "Directory created"
	}
	if err := s.store.Create(req.Path, kind, lo.FromPtr(in.Content), lo.FromPtr(in.Binary)); err != nil {
		switch status, body := classify(ctx, req.Path, err); status {
		case http.StatusBadRequest:
			return oapi.CreateFile400JSONResponse{ErrorJSONResponse: body}, nil
		case http.StatusForbidden:
			return oapi.CreateFile403JSONResponse{ErrorJSONResponse: body}, nil
		case http.StatusNotFound:
			return oapi.CreateFile404JSONResponse{ErrorJSONResponse: body}, nil
		default:
			return oapi.CreateFile500JSONResponse{ErrorJSONResponse: body}, nil
		}
	}
	return oapi.CreateFile200JSONResponse{SuccessJSONResponse: oapi.SuccessJSONResponse{Success: true, Message: msg}}, nil
}

// UpdateFile overwrites an existing file.
func (s *ApiService) UpdateFile(ctx context.Context, req oapi.UpdateFileRequestObject) (oapi.UpdateFileResponseObject, error) {
	if req.Body == nil || req.Body.Content == nil {
		return oapi.UpdateFile400JSONResponse{ErrorJSONResponse: oapi.ErrorJSONResponse{Error: "content is required"}}, nil
	}
	if err := s.store.Update(req.Path, *req.Body.Content, lo.FromPtr(req.Body.Binary)); err != nil {
		switch status, body := classify(ctx, req.Path, err); status {
		case http.StatusBadRequest:
			return oapi.UpdateFile400JSONResponse{ErrorJSONResponse: body}, nil
		case http.StatusForbidden:
			return oapi.UpdateFile403JSONResponse{ErrorJSONResponse: body}, nil
		case http.StatusNotFound:
			return oapi.UpdateFile404JSONResponse{ErrorJSONResponse: body}, nil
		default:
			return oapi.UpdateFile500JSONResponse{ErrorJSONResponse: body}, nil
		}
	}
	return oapi.UpdateFile200JSONResponse{SuccessJSONResponse: oapi.SuccessJSONResponse{Success: true, Message: "File updated"}}, nil
}

// DeleteFile removes a file or a directory tree.
func (s *ApiService) DeleteFile(ctx context.Context, req oapi.DeleteFileRequestObject) (oapi.DeleteFileResponseObject, error) {
	if err := s.store.Delete(req.Path); err != nil {
		switch status, body := classify(ctx, req.Path, err); status {
		case http.StatusBadRequest:
			return oapi.DeleteFile400JSONResponse{ErrorJSONResponse: body}, nil
		case http.StatusForbidden:
			return oapi.DeleteFile403JSONResponse{ErrorJSONResponse: body}, nil
		case http.StatusNotFound:
			return oapi.DeleteFile404JSONResponse{ErrorJSONResponse: body}, nil
		default:
			return oapi.DeleteFile500JSONResponse{ErrorJSONResponse: body}, nil
		}
	}
	return oapi.DeleteFile200JSONResponse{SuccessJSONResponse: oapi.SuccessJSONResponse{Success: true, Message: "Deleted"}}, nil
}

func toEntries(entries []files.Entry) []oapi.FileEntry {
	return lo.Map(entries, func(e files.Entry, _ int) oapi.FileEntry {
		return oapi.FileEntry{
			Name:     e.Name,
			Type:     oapi.FileEntryType(e.Kind),
			Size:     e.Size,
			Modified: e.ModifiedAt,
			Path:     e.Path,
		}
	})
}

// classify maps a store error onto a status and body. Unclassified errors are logged
// and reported as 500.
func classify(ctx context.Context, path string, err error) (int, oapi.ErrorJSONResponse) {
	switch {
	case errors.Is(err, pathguard.ErrPathEscape):
		return http.StatusForbidden, oapi.ErrorJSONResponse{Error: "Access denied: path outside served directory"}
	case errors.Is(err, files.ErrNotFound):
		return http.StatusNotFound, oapi.ErrorJSONResponse{Error: "File not found"}
	case errors.Is(err, files.ErrInvalidContent), errors.Is(err, files.ErrRootMutation):
		return http.StatusBadRequest, oapi.ErrorJSONResponse{Error: err.Error()}
	case errors.Is(err, files.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, oapi.ErrorJSONResponse{Error: err.Error()}
	default:
		logger.FromContext(ctx).Error("file operation failed", "path", path, "err", err)
		return http.StatusInternalServerError, oapi.ErrorJSONResponse{Error: err.Error()}
	}
}
