// Package attachment keeps files attached to customers, such as scanned
// referrals or external prescriptions. Content lives in a blob.Store and the
// metadata in the database.
package attachment

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/blob"
	"optica/database"
	"optica/model"
)

// MaxSize is the largest accepted attachment.
const MaxSize = 20 << 20

const maxNameLength = 100

// SanitizeName reduces a client file name to a safe key segment.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if len(s) > maxNameLength {
		s = s[len(s)-maxNameLength:]
	}
	if s == "" {
		return "file"
	}
	return s
}

// displayName is the client's base name, kept for downloads.
func displayName(name string) string {
	base := strings.TrimSpace(path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")))
	if base == "" || base == "." || base == "/" {
		return SanitizeName(name)
	}
	return base
}

// Key is the blob key of a new attachment.
func Key(tenantID, customerID int64, name string) string {
	return fmt.Sprintf("tenants/%d/customers/%d/%s-%s", tenantID, customerID, uuid.NewString(), SanitizeName(name))
}

// Upload stores content for a customer of tenantID. The blob is removed again
// when the metadata cannot be saved.
func Upload(ctx context.Context, db *sqlx.DB, store blob.Store, tenantID, customerID int64, name, contentType string, content io.Reader) (*model.Attachment, error) {
	if _, err := database.GetCustomer(ctx, db, model.TenantScope(tenantID), customerID); err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	a := &model.Attachment{
		TenantID:    tenantID,
		CustomerID:  customerID,
		BlobKey:     Key(tenantID, customerID, name),
		FileName:    displayName(name),
		ContentType: contentType,
	}
	info, err := store.Put(ctx, a.BlobKey, io.LimitReader(content, MaxSize+1), blob.PutOptions{ContentType: contentType, Size: -1})
	if err != nil {
		return nil, fmt.Errorf("failed to store attachment %s: %w", a.BlobKey, err)
	}
	if info.Size > MaxSize {
		if derr := store.Delete(ctx, a.BlobKey); derr != nil {
			zap.L().Warn("failed to remove oversized attachment", zap.String("key", a.BlobKey), zap.Error(derr))
		}
		return nil, &model.ValidationError{Fields: map[string]string{"file": "larger than 20 MiB"}}
	}
	a.Size = info.Size
	if err := database.CreateAttachment(ctx, db, a); err != nil {
		if derr := store.Delete(ctx, a.BlobKey); derr != nil {
			zap.L().Warn("failed to remove orphaned attachment", zap.String("key", a.BlobKey), zap.Error(derr))
		}
		return nil, err
	}
	zap.S().Infow("attachment uploaded", "tenant", tenantID, "customer", customerID, "key", a.BlobKey, "size", a.Size)
	return a, nil
}

// Open returns an attachment's metadata and content. The caller closes the reader.
func Open(ctx context.Context, db database.DBTX, store blob.Store, scope model.Scope, id int64) (*model.Attachment, io.ReadCloser, error) {
	a, err := database.GetAttachment(ctx, db, scope, id)
	if err != nil {
		return nil, nil, err
	}
	_, rc, err := store.Get(ctx, a.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read attachment %d: %w", id, err)
	}
	return a, rc, nil
}

// Delete removes the row first so a failing blob delete leaves at worst an
// unreferenced blob.
func Delete(ctx context.Context, db *sqlx.DB, store blob.Store, tenantID, id int64) error {
	scope := model.TenantScope(tenantID)
	a, err := database.GetAttachment(ctx, db, scope, id)
	if err != nil {
		return err
	}
	if err := database.DeleteAttachment(ctx, db, scope, id); err != nil {
		return err
	}
	if err := store.Delete(ctx, a.BlobKey); err != nil {
		zap.L().Warn("failed to delete attachment blob", zap.String("key", a.BlobKey), zap.Error(err))
	}
	return nil
}
