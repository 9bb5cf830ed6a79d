package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Sequence names. Each tenant numbers its own codes.
const (
	SeqCustomer = "CU"
	SeqSupplier = "SU"
	SeqProduct  = "SK"
)

// NextSequenceInTx increments the named per-tenant counter and formats it as
// prefix + zero padded number. The row is created on first use.
func NextSequenceInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, name, prefix string, padding int) (string, error) {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO code_sequences (tenant_id, name, last_no) VALUES (?, ?, 0)
		ON CONFLICT (tenant_id, name) DO NOTHING`), tenantID, name)
	if err != nil {
		return "", fmt.Errorf("failed to ensure sequence '%s': %w", name, err)
	}

	var newNo int64
	err = tx.GetContext(ctx, &newNo, tx.Rebind(`
		UPDATE code_sequences SET last_no = last_no + 1
		WHERE tenant_id = ? AND name = ?
		RETURNING last_no`), tenantID, name)
	if err != nil {
		return "", fmt.Errorf("failed to update sequence '%s': %w", name, err)
	}

	newCode := fmt.Sprintf("%s%0*d", prefix, padding, newNo)
	zap.S().Debugw("sequence incremented", "tenant", tenantID, "name", name, "code", newCode)
	return newCode, nil
}

// nextFreeCodeInTx draws from the named sequence until the code is not
// already held by a row of table in the tenant.
func nextFreeCodeInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, table, column, name, prefix string, padding int) (string, error) {
	for {
		code, err := NextSequenceInTx(ctx, tx, tenantID, name, prefix, padding)
		if err != nil {
			return "", err
		}
		var taken bool
		err = tx.GetContext(ctx, &taken, tx.Rebind(`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE tenant_id = ? AND `+column+` = ?)`), tenantID, code)
		if err != nil {
			return "", fmt.Errorf("failed to check %s.%s for '%s': %w", table, column, code, err)
		}
		if !taken {
			return code, nil
		}
		zap.S().Debugw("sequence code already taken", "tenant", tenantID, "name", name, "code", code)
	}
}

// SequenceNumber extracts n from a code of the form prefix<n>. Other codes
// report false.
func SequenceNumber(prefix, code string) (int64, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !strings.HasPrefix(code, prefix) || len(code) == len(prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(code[len(prefix):], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// claimCodeInTx moves the sequence past an explicit code written in the
// generated form, so the counter never hands it out again.
func claimCodeInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, name, prefix, code string) error {
	n, ok := SequenceNumber(prefix, code)
	if !ok {
		return nil
	}
	return SetSequenceFloorInTx(ctx, tx, tenantID, name, n)
}

// SetSequenceFloorInTx raises the counter to at least n, used after imports
// that bring their own codes.
func SetSequenceFloorInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, name string, n int64) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO code_sequences (tenant_id, name, last_no) VALUES (?, ?, ?)
		ON CONFLICT (tenant_id, name) DO UPDATE SET
			last_no = CASE WHEN code_sequences.last_no < excluded.last_no THEN excluded.last_no ELSE code_sequences.last_no END`),
		tenantID, name, n)
	if err != nil {
		return fmt.Errorf("SetSequenceFloorInTx (%s) failed: %w", name, err)
	}
	return nil
}
