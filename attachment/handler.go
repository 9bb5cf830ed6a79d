package attachment

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/blob"
	"optica/database"
	"optica/model"
	"optica/tenant"
	"optica/web"
)

// multipartOverhead allows for boundaries and form fields around the file.
const multipartOverhead = 1 << 20

func UploadHandler(db *sqlx.DB, store blob.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		customerID, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, MaxSize+multipartOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				web.WriteJSONError(w, "file is larger than 20 MiB", http.StatusRequestEntityTooLarge)
				return
			}
			web.Error(w, r, web.BadRequestf("multipart field 'file' is required"))
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = mime.TypeByExtension(path.Ext(header.Filename))
		}
		a, err := Upload(r.Context(), db, store, tenantID, customerID, header.Filename, contentType, file)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusCreated, a)
	}
}

func ListHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		scope := tenant.ScopeFrom(r.Context())
		if _, err := database.GetCustomer(r.Context(), db, scope, customerID); err != nil {
			web.Error(w, r, err)
			return
		}
		list, err := database.ListAttachments(r.Context(), db, scope, customerID)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, list)
	}
}

// DownloadHandler streams the content with its stored type and name.
func DownloadHandler(db *sqlx.DB, store blob.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		a, rc, err := Open(r.Context(), db, store, tenant.ScopeFrom(r.Context()), id)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				err = model.ErrNotFound
			}
			web.Error(w, r, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", a.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if _, err := io.Copy(w, rc); err != nil {
			zap.L().Warn("attachment download interrupted", zap.Int64("attachment", id), zap.Error(err))
		}
	}
}

func DeleteHandler(db *sqlx.DB, store blob.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if err := Delete(r.Context(), db, store, tenantID, id); err != nil {
			web.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
