// Package barcode parses retail and GS1 barcodes into GTIN-14.
package barcode

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Result holds the parsed parts of a scanned code.
type Result struct {
	Gtin14     string // AI(01), always 14 digits with a valid check digit
	ExpiryDate string // AI(17) as YYYY-MM-DD, empty when absent
	LotNumber  string // AI(10)
}

// groupSeparator is the FNC1 character scanners emit between variable-length AIs.
const groupSeparator = '\x1d'

// maxLotLength is the GS1 maximum for AI(10).
const maxLotLength = 20

var ErrCheckDigit = errors.New("invalid check digit")

// Parse accepts EAN-8, UPC-A, EAN-13, GTIN-14 or a GS1 element string that
// starts with AI(01), with or without parentheses around the AIs.
func Parse(code string) (*Result, error) {
	code = strings.TrimSpace(code)
	if strings.HasPrefix(code, "(") {
		code = strings.NewReplacer("(", "", ")", "").Replace(code)
	}
	code = strings.ReplaceAll(code, " ", "")

	if code == "" {
		return nil, fmt.Errorf("barcode is empty")
	}

	if len(code) > 14 {
		if strings.HasPrefix(code, "01") {
			return parseAIString(code)
		}
		return nil, fmt.Errorf("codes longer than 14 characters must start with AI(01)")
	}

	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return nil, fmt.Errorf("barcode must have 8, 12, 13 or 14 digits, got %d", len(code))
	}
	gtin := fmt.Sprintf("%014s", code)
	if err := verify(gtin); err != nil {
		return nil, err
	}
	return &Result{Gtin14: gtin}, nil
}

// Normalize returns the GTIN-14 of code, or "" for an empty input.
func Normalize(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", nil
	}
	r, err := Parse(code)
	if err != nil {
		return "", err
	}
	return r.Gtin14, nil
}

// CheckDigit computes the GS1 mod-10 check digit of the digits in body.
func CheckDigit(body string) (byte, error) {
	sum := 0
	// Weights alternate 3,1 starting from the rightmost body digit.
	for i := len(body) - 1; i >= 0; i-- {
		c := body[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q in barcode", c)
		}
		d := int(c - '0')
		if (len(body)-1-i)%2 == 0 {
			d *= 3
		}
		sum += d
	}
	return byte('0' + (10-sum%10)%10), nil
}

func verify(gtin string) error {
	want, err := CheckDigit(gtin[:len(gtin)-1])
	if err != nil {
		return err
	}
	if gtin[len(gtin)-1] != want {
		return fmt.Errorf("%w: expected %c", ErrCheckDigit, want)
	}
	return nil
}

// parseAIString walks a GS1 element string holding AIs 01, 17 and 10.
func parseAIString(code string) (*Result, error) {
	result := &Result{}
	i := 0
	length := len(code)

	for i < length {
		if code[i] == groupSeparator {
			i++
			continue
		}

		// (01) GTIN, fixed 14
		if strings.HasPrefix(code[i:], "01") {
			if i+16 > length {
				return nil, fmt.Errorf("AI(01) is truncated")
			}
			result.Gtin14 = code[i+2 : i+16]
			i += 16
			continue
		}

		// (17) expiry YYMMDD, fixed 6
		if strings.HasPrefix(code[i:], "17") {
			if i+8 > length {
				return nil, fmt.Errorf("AI(17) is truncated")
			}
			expiry, err := parseExpiry(code[i+2 : i+8])
			if err != nil {
				return nil, err
			}
			result.ExpiryDate = expiry
			i += 8
			continue
		}

		// (10) lot, variable up to 20, ended by FNC1 or a complete following AI
		if strings.HasPrefix(code[i:], "10") {
			dataStart := i + 2
			dataEnd := dataStart
			for dataEnd < length && dataEnd-dataStart < maxLotLength {
				if code[dataEnd] == groupSeparator {
					break
				}
				remaining := code[dataEnd:]
				if strings.HasPrefix(remaining, "01") && len(remaining) == 16 {
					break
				}
				if strings.HasPrefix(remaining, "17") && len(remaining) == 8 {
					break
				}
				dataEnd++
			}
			result.LotNumber = code[dataStart:dataEnd]
			i = dataEnd
			continue
		}

		return nil, fmt.Errorf("unsupported application identifier at position %d", i)
	}

	if result.Gtin14 == "" {
		return nil, fmt.Errorf("no AI(01) GTIN found in barcode")
	}
	if err := verify(result.Gtin14); err != nil {
		return nil, err
	}
	return result, nil
}

// parseExpiry converts YYMMDD to YYYY-MM-DD. Day 00 means the last day of the month.
func parseExpiry(yymmdd string) (string, error) {
	var yy, mm, dd int
	if _, err := fmt.Sscanf(yymmdd, "%2d%2d%2d", &yy, &mm, &dd); err != nil || mm < 1 || mm > 12 {
		return "", fmt.Errorf("AI(17) %q is not a valid YYMMDD date", yymmdd)
	}
	year := 2000 + yy
	if dd == 0 {
		last := time.Date(year, time.Month(mm)+1, 0, 0, 0, 0, 0, time.UTC)
		return last.Format("2006-01-02"), nil
	}
	t := time.Date(year, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if t.Day() != dd {
		return "", fmt.Errorf("AI(17) %q is not a valid YYMMDD date", yymmdd)
	}
	return t.Format("2006-01-02"), nil
}
