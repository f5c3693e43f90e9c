package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"chatter/internal/chat"
	"chatter/internal/media"

	"github.com/goccy/go-json"
)

// maxFormMemory bounds the multipart parser; larger forms spill to disk.
const maxFormMemory = media.MaxImageSize + 1<<20

type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := chat.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("[API] Internal error", "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{StatusCode: status, Error: chat.Code(err), Message: msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", chat.ErrValidation)
	}
	return nil
}

func parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return fmt.Errorf("%w: expected multipart form data", chat.ErrValidation)
	}
	return nil
}

// formImage reads the image uploaded under field, or nil when there is none.
// Oversized files are read one byte past the limit so validation rejects them.
func formImage(r *http.Request, field string) (*chat.Image, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", chat.ErrValidation, field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, media.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", chat.ErrValidation, field, err)
	}
	return &chat.Image{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
