package httpapi

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhaarna97/BookSwap/internal/apperrors"
)

// maxUploadBytes bounds multipart form parsing.
const maxUploadBytes = 10 << 20 // 10 MiB

// saveUpload writes the uploaded file into the upload directory and returns
// the URL it will be served from. The stored name is a timestamp plus the
// original extension.
func (a *API) saveUpload(r *http.Request, file multipart.File, header *multipart.FileHeader) (string, error) {
	defer file.Close()

	if err := os.MkdirAll(a.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := fmt.Sprintf("%d%s", time.Now().UnixMilli(), filepath.Ext(header.Filename))
	path := filepath.Join(a.uploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}

	return a.uploadURL(r, name), nil
}

func (a *API) uploadURL(r *http.Request, name string) string {
	base := a.uploadBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return strings.TrimSuffix(base, "/") + "/uploads/" + name
}

// formFile fetches an optional multipart file field. A missing field is not
// an error; a malformed one is.
func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, apperrors.Validation("invalid " + field + " upload")
	}
	return file, header, nil
}
