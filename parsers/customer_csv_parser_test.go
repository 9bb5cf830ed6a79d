package parsers

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"optica/model"
)

func TestParseCustomerCSV(t *testing.T) {
	data := "\xEF\xBB\xBFFirst_Name,last_name,phone,code\n" +
		"Jane,Doe,555-0100,\n" +
		"\n" +
		"Ana, Silva ,,CU00042\n" +
		"Bo,Do\"e,,\n" +
		",,,\n" +
		"Li,Wei,,\n"
	records, rowErrors, err := ParseCustomerCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, 2, records[0].Line)
	assert.Equal(t, model.CustomerInput{FirstName: "Jane", LastName: "Doe", Phone: "555-0100"}, records[0].Input)
	assert.Equal(t, 4, records[1].Line)
	assert.Equal(t, "Silva", records[1].Input.LastName)
	assert.Equal(t, "CU00042", records[1].Input.Code)
	assert.Equal(t, 7, records[2].Line)

	require.Len(t, rowErrors, 1)
	assert.Equal(t, 5, rowErrors[0].Line)
}

func TestParseCustomerCSVMissingHeader(t *testing.T) {
	_, _, err := ParseCustomerCSV(strings.NewReader("name,phone\nJane,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first_name")

	_, _, err = ParseCustomerCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestNewDecodingReader(t *testing.T) {
	sjis, _, err := transform.String(japanese.ShiftJIS.NewEncoder(), "first_name,last_name\n太郎,山田\n")
	require.NoError(t, err)

	r, err := NewDecodingReader(strings.NewReader(sjis), "shift_jis")
	require.NoError(t, err)
	records, _, err := ParseCustomerCSV(r)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "山田", records[0].Input.LastName)

	latin, err := charmap.Windows1252.NewEncoder().String("first_name,last_name\nJosé,Müller\n")
	require.NoError(t, err)
	r, err = NewDecodingReader(strings.NewReader(latin), "windows-1252")
	require.NoError(t, err)
	records, _, err = ParseCustomerCSV(r)
	require.NoError(t, err)
	assert.Equal(t, "José", records[0].Input.FirstName)

	_, err = NewDecodingReader(strings.NewReader(""), "klingon")
	assert.Error(t, err)
}

func TestWriteCustomerCSVRoundTripsThroughEncoding(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewEncodingWriter(&buf, "shift_jis")
	require.NoError(t, err)
	require.NoError(t, WriteCustomerCSV(w, []model.Customer{{Code: "CU00001", FirstName: "太郎", LastName: "山田"}}))
	if c, ok := w.(io.Closer); ok {
		require.NoError(t, c.Close())
	}

	r, err := NewDecodingReader(&buf, "shift_jis")
	require.NoError(t, err)
	records, _, err := ParseCustomerCSV(r)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CU00001", records[0].Input.Code)
	assert.Equal(t, "太郎", records[0].Input.FirstName)
}
