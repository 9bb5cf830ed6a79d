package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStockCountCSV(t *testing.T) {
	data := "SKU,Barcode,Counted\n" +
		"SK000001,,4\n" +
		",4901234567894, 2.5 \n" +
		",,\n" +
		",,3\n" +
		"SK000002,,-1\n" +
		"SK000003,,NaN\n"
	records, rowErrors, err := ParseStockCountCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ParsedStockCountRecord{Line: 2, SKU: "SK000001", Counted: 4}, records[0])
	assert.Equal(t, ParsedStockCountRecord{Line: 3, Barcode: "4901234567894", Counted: 2.5}, records[1])

	require.Len(t, rowErrors, 3)
	assert.Equal(t, 5, rowErrors[0].Line)
	assert.Equal(t, 6, rowErrors[1].Line)
	assert.Equal(t, 7, rowErrors[2].Line)
}

func TestParseStockCountCSVHeaders(t *testing.T) {
	_, _, err := ParseStockCountCSV(strings.NewReader("sku,quantity\nSK000001,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counted")

	_, _, err = ParseStockCountCSV(strings.NewReader("name,counted\nFrame,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "barcode or sku")

	records, _, err := ParseStockCountCSV(strings.NewReader("barcode,counted\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}
