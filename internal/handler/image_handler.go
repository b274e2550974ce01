package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tempchat/internal/app/storage"
	"tempchat/internal/pkg/errs"
	"tempchat/internal/pkg/resp"
)

// HandleGetImage serves the image of a live message. Offloaded images redirect to a
// short-lived presigned URL; inline images are written directly.
func HandleGetImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			resp.Error(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		msg, customErr := deps.Service.LiveImage(r.Context(), id, time.Now())
		if customErr != nil {
			resp.Error(w, r, customErr)
			return
		}

		w.Header().Set("Cache-Control", "no-store")

		if msg.ImageKey != "" {
			if deps.StorageService == nil {
				resp.Error(w, r, errs.NewError(errs.ErrMessageNotFound))
				return
			}

			url, err := deps.StorageService.PresignDownload(r.Context(), msg.ImageKey, storage.DownloadURLExpiry)
			if err != nil {
				resp.Error(w, r, errs.NewError(errs.ErrImageStorageFailed))
				return
			}

			http.Redirect(w, r, url, http.StatusFound)
			return
		}

		w.Header().Set("Content-Type", msg.ImageType)
		w.Header().Set("Content-Length", strconv.Itoa(len(msg.Image)))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(msg.Image)
	}
}
