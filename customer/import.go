package customer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/database"
	"optica/metrics"
	"optica/model"
	"optica/parsers"
)

type ImportResult struct {
	Created int                `json:"created"`
	Updated int                `json:"updated"`
	Skipped int                `json:"skipped"`
	Errors  []parsers.RowError `json:"errors"`
}

// Import reads a customer CSV in the labelled encoding and upserts every valid
// row by code in one transaction. Invalid rows are skipped and reported.
func Import(ctx context.Context, db *sqlx.DB, m *metrics.Metrics, tenantID int64, r io.Reader, encoding string) (*ImportResult, error) {
	decoded, err := parsers.NewDecodingReader(r, encoding)
	if err != nil {
		return nil, &model.ValidationError{Fields: map[string]string{"encoding": err.Error()}}
	}
	records, rowErrors, err := parsers.ParseCustomerCSV(decoded)
	if err != nil {
		return nil, &model.ValidationError{Fields: map[string]string{"file": err.Error()}}
	}

	result := &ImportResult{Errors: []parsers.RowError{}}
	result.Errors = append(result.Errors, rowErrors...)
	result.Skipped = len(rowErrors)
	today := time.Now().UTC()

	err = database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		// Codes brought by the file must never be handed out to new rows.
		var maxCode int64
		for _, rec := range records {
			if n, ok := database.SequenceNumber(database.SeqCustomer, rec.Input.Code); ok && n > maxCode {
				maxCode = n
			}
		}
		if maxCode > 0 {
			if err := database.SetSequenceFloorInTx(ctx, tx, tenantID, database.SeqCustomer, maxCode); err != nil {
				return err
			}
		}

		for _, rec := range records {
			in := rec.Input
			if err := Validate(&in, today); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, parsers.RowError{Line: rec.Line, Message: err.Error()})
				continue
			}
			var created bool
			err := database.WithSavepoint(ctx, tx, "import_row", func() error {
				var err error
				_, created, err = database.UpsertCustomerByCodeInTx(ctx, tx, tenantID, in)
				return err
			})
			if err != nil {
				if model.IsClientError(err) {
					result.Skipped++
					result.Errors = append(result.Errors, parsers.RowError{Line: rec.Line, Message: err.Error()})
					continue
				}
				return fmt.Errorf("line %d: %w", rec.Line, err)
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.CustomersImported(result.Created, result.Updated, result.Skipped)
	zap.S().Infow("customers imported",
		"tenant", tenantID, "created", result.Created, "updated", result.Updated, "skipped", result.Skipped)
	return result, nil
}
