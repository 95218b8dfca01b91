package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/corporatepranks/storefront-backend/api/responses"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/storage/gcs"
)

const uploadFormMemory = 1 << 20

// Uploader stores admin assets and returns their public url.
type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, body io.Reader) (string, error)
}

// AdminUpload stores a multipart "file" under the form's "path" and returns
// its public url.
func AdminUpload(store Uploader, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "uploads unavailable"))
			return
		}
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes+uploadFormMemory)
		}
		if err := r.ParseMultipartForm(uploadFormMemory); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file is required"))
			return
		}
		defer func() { _ = file.Close() }()

		objectPath := r.FormValue("path")
		if objectPath == "" {
			objectPath = header.Filename
		}
		contentType := header.Header.Get("Content-Type")

		url, err := store.Upload(r.Context(), objectPath, contentType, file)
		switch {
		case errors.Is(err, gcs.ErrInvalidPath):
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid upload path"))
			return
		case errors.Is(err, gcs.ErrTooLarge):
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file too large"))
			return
		case err != nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload failed"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"url": url, "path": objectPath})
	}
}
