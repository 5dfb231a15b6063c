// Package oapi is the typed HTTP layer for openapi.yaml: models, per-operation request
// and response objects, and a strict handler that decodes requests, runs strict
// middlewares and renders responses. It follows the layout of oapi-codegen's strict-server
// output. The router adapter is written by hand because the file routes take a path
// parameter that spans slashes, which a chi {path} segment cannot match.
package oapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	strictnethttp "github.com/oapi-codegen/runtime/strictmiddleware/nethttp"
)

// Defines values for FileEntryType.
const (
	Directory FileEntryType = "directory"
	File      FileEntryType = "file"
)

// Error defines model for Error.
type Error struct {
	Error string `json:"error"`
}

// FileContent defines model for FileContent.
type FileContent struct {
	Binary bool `json:"binary"`

	// Content UTF-8 text, or base64 when binary is true.
	Content  string    `json:"content"`
	Modified time.Time `json:"modified"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
}

// FileEntry defines model for FileEntry.
type FileEntry struct {
	Modified time.Time `json:"modified"`
	Name     string    `json:"name"`

	// Path Path relative to the served root.
	Path string `json:"path"`

	// Size Present for files only.
	Size *int64        `json:"size,omitempty"`
	Type FileEntryType `json:"type"`
}

// FileEntryType defines model for FileEntry.Type.
type FileEntryType string

// Health defines model for Health.
type Health struct {
	Directory string    `json:"directory"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Listing defines model for Listing.
type Listing struct {
	Entries []FileEntry `json:"entries"`
	Path    string      `json:"path"`
}

// CreateRequest defines model for CreateRequest.
type CreateRequest struct {
	Binary  *bool   `json:"binary,omitempty"`
	Content *string `json:"content,omitempty"`

	// Type "directory" creates a directory; anything else creates a file.
	Type *string `json:"type,omitempty"`
}

// UpdateRequest defines model for UpdateRequest. Content is nil when the client left it out.
type UpdateRequest struct {
	Binary  *bool   `json:"binary,omitempty"`
	Content *string `json:"content"`
}

// Success defines model for Success.
type Success struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// CreateFileJSONRequestBody defines body for CreateFile for application/json ContentType.
type CreateFileJSONRequestBody = CreateRequest

// UpdateFileJSONRequestBody defines body for UpdateFile for application/json ContentType.
type UpdateFileJSONRequestBody = UpdateRequest

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Server status
	// (GET /api/health)
	Health(w http.ResponseWriter, r *http.Request)
	// List the served root directory
	// (GET /api/files)
	ListRoot(w http.ResponseWriter, r *http.Request)
	// Read a file or list a directory
	// (GET /api/files/{path})
	ReadFile(w http.ResponseWriter, r *http.Request, path string)
	// Create a file or directory
	// (POST /api/files/{path})
	CreateFile(w http.ResponseWriter, r *http.Request, path string)
	// Overwrite an existing file
	// (PUT /api/files/{path})
	UpdateFile(w http.ResponseWriter, r *http.Request, path string)
	// Delete a file or directory recursively
	// (DELETE /api/files/{path})
	DeleteFile(w http.ResponseWriter, r *http.Request, path string)
}

// HandlerFromMux registers every operation on r.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	r.Get("/api/health", si.Health)
	r.Get("/api/files", si.ListRoot)
	r.Get("/api/files/*", func(w http.ResponseWriter, r *http.Request) { si.ReadFile(w, r, PathParam(r)) })
	r.Post("/api/files/*", func(w http.ResponseWriter, r *http.Request) { si.CreateFile(w, r, PathParam(r)) })
	r.Put("/api/files/*", func(w http.ResponseWriter, r *http.Request) { si.UpdateFile(w, r, PathParam(r)) })
	r.Delete("/api/files/*", func(w http.ResponseWriter, r *http.Request) { si.DeleteFile(w, r, PathParam(r)) })
	return r
}

// PathParam returns the wildcard part of the route, decoded. chi matches against RawPath
// when the request carried escapes that Path cannot represent.
func PathParam(r *http.Request) string {
	p := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		if u, err := url.PathUnescape(p); err == nil {
			p = u
		}
	}
	return p
}

type ErrorJSONResponse Error

type SuccessJSONResponse Success

type HealthRequestObject struct {
}

type HealthResponseObject interface {
	VisitHealthResponse(w http.ResponseWriter) error
}

type Health200JSONResponse Health

func (response Health200JSONResponse) VisitHealthResponse(w http.ResponseWriter) error {
	return writeJSON(w, 200, response)
}

type ListRootRequestObject struct {
}

type ListRootResponseObject interface {
	VisitListRootResponse(w http.ResponseWriter) error
}

type ListRoot200JSONResponse Listing

func (response ListRoot200JSONResponse) VisitListRootResponse(w http.ResponseWriter) error {
	return writeJSON(w, 200, response)
}

type ListRoot500JSONResponse struct{ ErrorJSONResponse }

func (response ListRoot500JSONResponse) VisitListRootResponse(w http.ResponseWriter) error {
	return writeJSON(w, 500, response)
}

type ReadFileRequestObject struct {
	Path string `json:"path"`
}

type ReadFileResponseObject interface {
	VisitReadFileResponse(w http.ResponseWriter) error
}

type ReadFile200FileContentJSONResponse FileContent

func (response ReadFile200FileContentJSONResponse) VisitReadFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 200, response)
}

type ReadFile200ListingJSONResponse Listing

func (response ReadFile200ListingJSONResponse) VisitReadFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 200, response)
}

type ReadFile403JSONResponse struct{ ErrorJSONResponse }

func (response ReadFile403JSONResponse) VisitReadFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 403, response)
}

type ReadFile404JSONResponse struct{ ErrorJSONResponse }

func (response ReadFile404JSONResponse) VisitReadFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 404, response)
}

type ReadFile413JSONResponse struct{ ErrorJSONResponse }

func (response ReadFile413JSONResponse) VisitReadFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 413, response)
}

type ReadFile500JSONResponse struct{ ErrorJSONResponse }

func (response ReadFile500JSONResponse) VisitReadFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 500, response)
}

type CreateFileRequestObject struct {
	Path string `json:"path"`
	Body *CreateFileJSONRequestBody
}

type CreateFileResponseObject interface {
	VisitCreateFileResponse(w http.ResponseWriter) error
}

type CreateFile200JSONResponse struct{ SuccessJSONResponse }

func (response CreateFile200JSONResponse) VisitCreateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 200, response)
}

type CreateFile400JSONResponse struct{ ErrorJSONResponse }

func (response CreateFile400JSONResponse) VisitCreateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 400, response)
}

type CreateFile403JSONResponse struct{ ErrorJSONResponse }

func (response CreateFile403JSONResponse) VisitCreateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 403, response)
}

type CreateFile404JSONResponse struct{ ErrorJSONResponse }

func (response CreateFile404JSONResponse) VisitCreateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 404, response)
}

type CreateFile500JSONResponse struct{ ErrorJSONResponse }

func (response CreateFile500JSONResponse) VisitCreateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 500, response)
}

type UpdateFileRequestObject struct {
	Path string `json:"path"`
	Body *UpdateFileJSONRequestBody
}

type UpdateFileResponseObject interface {
	VisitUpdateFileResponse(w http.ResponseWriter) error
}

type UpdateFile200JSONResponse struct{ SuccessJSONResponse }

func (response UpdateFile200JSONResponse) VisitUpdateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 200, response)
}

type UpdateFile400JSONResponse struct{ ErrorJSONResponse }

func (response UpdateFile400JSONResponse) VisitUpdateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 400, response)
}

type UpdateFile403JSONResponse struct{ ErrorJSONResponse }

func (response UpdateFile403JSONResponse) VisitUpdateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 403, response)
}

type UpdateFile404JSONResponse struct{ ErrorJSONResponse }

func (response UpdateFile404JSONResponse) VisitUpdateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 404, response)
}

type UpdateFile500JSONResponse struct{ ErrorJSONResponse }

func (response UpdateFile500JSONResponse) VisitUpdateFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 500, response)
}

type DeleteFileRequestObject struct {
	Path string `json:"path"`
}

type DeleteFileResponseObject interface {
	VisitDeleteFileResponse(w http.ResponseWriter) error
}

type DeleteFile200JSONResponse struct{ SuccessJSONResponse }

func (response DeleteFile200JSONResponse) VisitDeleteFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 200, response)
}

type DeleteFile400JSONResponse struct{ ErrorJSONResponse }

func (response DeleteFile400JSONResponse) VisitDeleteFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 400, response)
}

type DeleteFile403JSONResponse struct{ ErrorJSONResponse }

func (response DeleteFile403JSONResponse) VisitDeleteFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 403, response)
}

type DeleteFile404JSONResponse struct{ ErrorJSONResponse }

func (response DeleteFile404JSONResponse) VisitDeleteFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 404, response)
}

type DeleteFile500JSONResponse struct{ ErrorJSONResponse }

func (response DeleteFile500JSONResponse) VisitDeleteFileResponse(w http.ResponseWriter) error {
	return writeJSON(w, 500, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// StrictServerInterface represents all server handlers.
type StrictServerInterface interface {
	// Server status
	// (GET /api/health)
	Health(ctx context.Context, request HealthRequestObject) (HealthResponseObject, error)
	// List the served root directory
	// (GET /api/files)
	ListRoot(ctx context.Context, request ListRootRequestObject) (ListRootResponseObject, error)
	// Read a file or list a directory
	// (GET /api/files/{path})
	ReadFile(ctx context.Context, request ReadFileRequestObject) (ReadFileResponseObject, error)
	// Create a file or directory
	// (POST /api/files/{path})
	CreateFile(ctx context.Context, request CreateFileRequestObject) (CreateFileResponseObject, error)
	// Overwrite an existing file
	// (PUT /api/files/{path})
	UpdateFile(ctx context.Context, request UpdateFileRequestObject) (UpdateFileResponseObject, error)
	// Delete a file or directory recursively
	// (DELETE /api/files/{path})
	DeleteFile(ctx context.Context, request DeleteFileRequestObject) (DeleteFileResponseObject, error)
}

type StrictHandlerFunc = strictnethttp.StrictHTTPHandlerFunc
type StrictMiddlewareFunc = strictnethttp.StrictHTTPMiddlewareFunc

type StrictHTTPServerOptions struct {
	RequestErrorHandlerFunc  func(w http.ResponseWriter, r *http.Request, err error)
	ResponseErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func NewStrictHandler(ssi StrictServerInterface, middlewares []StrictMiddlewareFunc) ServerInterface {
	return NewStrictHandlerWithOptions(ssi, middlewares, StrictHTTPServerOptions{
		RequestErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		},
		ResponseErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		},
	})
}

func NewStrictHandlerWithOptions(ssi StrictServerInterface, middlewares []StrictMiddlewareFunc, options StrictHTTPServerOptions) ServerInterface {
	return &strictHandler{ssi: ssi, middlewares: middlewares, options: options}
}

type strictHandler struct {
	ssi         StrictServerInterface
	middlewares []StrictMiddlewareFunc
	options     StrictHTTPServerOptions
}

// Health operation middleware
func (sh *strictHandler) Health(w http.ResponseWriter, r *http.Request) {
	var request HealthRequestObject

	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		return sh.ssi.Health(ctx, request.(HealthRequestObject))
	}
	response, err := sh.run(handler, "Health", w, r, request)
	if err != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, err)
	} else if validResponse, ok := response.(HealthResponseObject); ok {
		if err := validResponse.VisitHealthResponse(w); err != nil {
			sh.options.ResponseErrorHandlerFunc(w, r, err)
		}
	} else if response != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, fmt.Errorf("unexpected response type: %T", response))
	}
}

// ListRoot operation middleware
func (sh *strictHandler) ListRoot(w http.ResponseWriter, r *http.Request) {
	var request ListRootRequestObject

	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		return sh.ssi.ListRoot(ctx, request.(ListRootRequestObject))
	}
	response, err := sh.run(handler, "ListRoot", w, r, request)
	if err != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, err)
	} else if validResponse, ok := response.(ListRootResponseObject); ok {
		if err := validResponse.VisitListRootResponse(w); err != nil {
			sh.options.ResponseErrorHandlerFunc(w, r, err)
		}
	} else if response != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, fmt.Errorf("unexpected response type: %T", response))
	}
}

// ReadFile operation middleware
func (sh *strictHandler) ReadFile(w http.ResponseWriter, r *http.Request, path string) {
	var request ReadFileRequestObject

	request.Path = path

	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		return sh.ssi.ReadFile(ctx, request.(ReadFileRequestObject))
	}
	response, err := sh.run(handler, "ReadFile", w, r, request)
	if err != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, err)
	} else if validResponse, ok := response.(ReadFileResponseObject); ok {
		if err := validResponse.VisitReadFileResponse(w); err != nil {
			sh.options.ResponseErrorHandlerFunc(w, r, err)
		}
	} else if response != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, fmt.Errorf("unexpected response type: %T", response))
	}
}

// CreateFile operation middleware
func (sh *strictHandler) CreateFile(w http.ResponseWriter, r *http.Request, path string) {
	var request CreateFileRequestObject

	request.Path = path

	var body CreateFileJSONRequestBody
	if err := decodeBody(r, &body); err != nil {
		sh.options.RequestErrorHandlerFunc(w, r, fmt.Errorf("can't decode JSON body: %w", err))
		return
	}
	request.Body = &body

	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		return sh.ssi.CreateFile(ctx, request.(CreateFileRequestObject))
	}
	response, err := sh.run(handler, "CreateFile", w, r, request)
	if err != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, err)
	} else if validResponse, ok := response.(CreateFileResponseObject); ok {
		if err := validResponse.VisitCreateFileResponse(w); err != nil {
			sh.options.ResponseErrorHandlerFunc(w, r, err)
		}
	} else if response != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, fmt.Errorf("unexpected response type: %T", response))
	}
}

// UpdateFile operation middleware
func (sh *strictHandler) UpdateFile(w http.ResponseWriter, r *http.Request, path string) {
	var request UpdateFileRequestObject

	request.Path = path

	var body UpdateFileJSONRequestBody
	if err := decodeBody(r, &body); err != nil {
		sh.options.RequestErrorHandlerFunc(w, r, fmt.Errorf("can't decode JSON body: %w", err))
		return
	}
	request.Body = &body

	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		return sh.ssi.UpdateFile(ctx, request.(UpdateFileRequestObject))
	}
	response, err := sh.run(handler, "UpdateFile", w, r, request)
	if err != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, err)
	} else if validResponse, ok := response.(UpdateFileResponseObject); ok {
		if err := validResponse.VisitUpdateFileResponse(w); err != nil {
			sh.options.ResponseErrorHandlerFunc(w, r, err)
		}
	} else if response != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, fmt.Errorf("unexpected response type: %T", response))
	}
}

// DeleteFile operation middleware
func (sh *strictHandler) DeleteFile(w http.ResponseWriter, r *http.Request, path string) {
	var request DeleteFileRequestObject

	request.Path = path

	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		return sh.ssi.DeleteFile(ctx, request.(DeleteFileRequestObject))
	}
	response, err := sh.run(handler, "DeleteFile", w, r, request)
	if err != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, err)
	} else if validResponse, ok := response.(DeleteFileResponseObject); ok {
		if err := validResponse.VisitDeleteFileResponse(w); err != nil {
			sh.options.ResponseErrorHandlerFunc(w, r, err)
		}
	} else if response != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, fmt.Errorf("unexpected response type: %T", response))
	}
}

// run wraps handler in the strict middlewares; the last one listed runs outermost.
func (sh *strictHandler) run(handler StrictHandlerFunc, operationID string, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
	for _, middleware := range sh.middlewares {
		handler = middleware(handler, operationID)
	}
	return handler(r.Context(), w, r, request)
}

// decodeBody reads a JSON object. An empty body leaves v at its zero value.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
