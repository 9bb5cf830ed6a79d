package database

import (
	"context"
	"fmt"

	"optica/model"
)

const attachmentColumns = `id, tenant_id, customer_id, blob_key, file_name, content_type, size, created_at`

func CreateAttachment(ctx context.Context, db DBTX, a *model.Attachment) error {
	a.CreatedAt = now()
	err := db.GetContext(ctx, &a.ID, db.Rebind(`
		INSERT INTO attachments (tenant_id, customer_id, blob_key, file_name, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		a.TenantID, a.CustomerID, a.BlobKey, a.FileName, a.ContentType, a.Size, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("CreateAttachment (Customer: %d) failed: %w", a.CustomerID, err)
	}
	return nil
}

func GetAttachment(ctx context.Context, db DBTX, scope model.Scope, id int64) (*model.Attachment, error) {
	cond, args := scopeFilter("tenant_id", scope)
	var a model.Attachment
	err := db.GetContext(ctx, &a, db.Rebind(`SELECT `+attachmentColumns+` FROM attachments WHERE id = ? AND `+cond),
		append([]interface{}{id}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func ListAttachments(ctx context.Context, db DBTX, scope model.Scope, customerID int64) ([]model.Attachment, error) {
	cond, args := scopeFilter("tenant_id", scope)
	list := []model.Attachment{}
	err := db.SelectContext(ctx, &list, db.Rebind(`SELECT `+attachmentColumns+` FROM attachments
		WHERE customer_id = ? AND `+cond+` ORDER BY created_at DESC, id DESC`), append([]interface{}{customerID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("ListAttachments (Customer: %d) failed: %w", customerID, err)
	}
	return list, nil
}

func DeleteAttachment(ctx context.Context, db DBTX, scope model.Scope, id int64) error {
	cond, args := scopeFilter("tenant_id", scope)
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM attachments WHERE id = ? AND `+cond), append([]interface{}{id}, args...)...)
	if err != nil {
		return fmt.Errorf("DeleteAttachment (ID: %d) failed: %w", id, err)
	}
	return expectAffected(res)
}
