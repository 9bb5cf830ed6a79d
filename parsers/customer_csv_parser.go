package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"optica/model"
)

// CustomerColumns is the header written by WriteCustomerCSV and accepted by ParseCustomerCSV.
var CustomerColumns = []string{"code", "first_name", "last_name", "birth_date", "phone", "email", "address", "notes"}

// ParsedCustomerRecord is one data row; Line is 1-based and counts the header.
type ParsedCustomerRecord struct {
	Line  int
	Input model.CustomerInput
}

// RowError reports a row that could not be read.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ParseCustomerCSV reads a customer CSV already decoded to UTF-8.
// Malformed rows are returned as RowErrors rather than failing the file.
func ParseCustomerCSV(r io.Reader) ([]ParsedCustomerRecord, []RowError, error) {
	reader := csv.NewReader(SkipBOM(r))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex, err := getColIndex(header, []string{"first_name", "last_name"})
	if err != nil {
		return nil, nil, err
	}

	var records []ParsedCustomerRecord
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
			zap.S().Warnw("customer CSV row unreadable", "line", pe.StartLine, "error", pe.Err)
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

		in := model.CustomerInput{
			Code:      get("code"),
			FirstName: get("first_name"),
			LastName:  get("last_name"),
			BirthDate: get("birth_date"),
			Phone:     get("phone"),
			Email:     get("email"),
			Address:   get("address"),
			Notes:     get("notes"),
		}
		if in == (model.CustomerInput{}) {
			continue
		}
		records = append(records, ParsedCustomerRecord{Line: line, Input: in})
	}

	return records, rowErrors, nil
}

// WriteCustomerCSV writes customers with the CustomerColumns header.
func WriteCustomerCSV(w io.Writer, customers []model.Customer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CustomerColumns); err != nil {
		return err
	}
	for _, c := range customers {
		if err := cw.Write([]string{c.Code, c.FirstName, c.LastName, c.BirthDate, c.Phone, c.Email, c.Address, c.Notes}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
