package media

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Handler serves objects under /media/ when the request carries a valid,
// unexpired signature.
func (b *Blobs) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, routePrefix)
		if key == "" || key == r.URL.Path {
			http.NotFound(w, r)
			return
		}

		if err := b.signer.Verify(key, r.URL.Query()); err != nil {
			slog.Debug("[MEDIA] Rejected signed url", "key", key, "error", err)
			http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
			return
		}

		data, contentType, err := b.objects.Get(r.Context(), key)
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				http.NotFound(w, r)
				return
			}
			slog.Error("[MEDIA] Failed to read object", "key", key, "error", err)
			http.Error(w, "failed to read object", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "private, max-age=300")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	})
}
