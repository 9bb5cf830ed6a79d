package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ParsedStockCountRecord is one counted product. Barcode wins over SKU when
// both are present.
type ParsedStockCountRecord struct {
	Line    int
	Barcode string
	SKU     string
	Counted float64
}

// ParseStockCountCSV reads a stocktake sheet with a counted column and a
// barcode or sku column. Rows with neither identifier, or with an unreadable
// count, are reported as RowErrors.
func ParseStockCountCSV(r io.Reader) ([]ParsedStockCountRecord, []RowError, error) {
	reader := csv.NewReader(SkipBOM(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex, err := getColIndex(header, []string{"counted"})
	if err != nil {
		return nil, nil, err
	}
	_, hasBarcode := colIndex["barcode"]
	_, hasSKU := colIndex["sku"]
	if !hasBarcode && !hasSKU {
		return nil, nil, fmt.Errorf("required header missing: barcode or sku")
	}

	var records []ParsedStockCountRecord
	var rowErrors []RowError
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
			}
			zap.S().Warnw("stock count row unreadable", "line", pe.StartLine, "error", pe.Err)
			rowErrors = append(rowErrors, RowError{Line: pe.StartLine, Message: pe.Err.Error()})
			continue
		}
		line, _ := reader.FieldPos(0)

		get := func(key string) string {
			if idx, ok := colIndex[key]; ok && idx < len(rec) {
				return strings.TrimSpace(rec[idx])
			}
			return ""
		}

		out := ParsedStockCountRecord{Line: line, Barcode: get("barcode"), SKU: get("sku")}
		raw := get("counted")
		if out.Barcode == "" && out.SKU == "" && raw == "" {
			continue
		}
		if out.Barcode == "" && out.SKU == "" {
			rowErrors = append(rowErrors, RowError{Line: line, Message: "barcode or sku is required"})
			continue
		}
		counted, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(counted >= 0) || math.IsInf(counted, 0) {
			rowErrors = append(rowErrors, RowError{Line: line, Message: fmt.Sprintf("counted %q is not a non-negative number", raw)})
			continue
		}
		out.Counted = counted
		records = append(records, out)
	}
	return records, rowErrors, nil
}
