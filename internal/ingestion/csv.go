package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported by DetectEncoding.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-bom"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
	EncodingLatin1  = "latin-1"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding inspects raw bytes and returns the name of their encoding together with the
// decoder that turns them into UTF-8. Byte order marks are consumed by the decoder.
func DetectEncoding(data []byte) (string, encoding.Encoding) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return EncodingUTF8BOM, unicode.UTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return EncodingUTF16LE, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case bytes.HasPrefix(data, bomUTF16BE):
		return EncodingUTF16BE, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case utf8.Valid(data):
		return EncodingUTF8, encoding.Nop
	default:
		return EncodingLatin1, charmap.ISO8859_1
	}
}

// Decode converts data to UTF-8 using the detected encoding.
func Decode(data []byte) ([]byte, string, error) {
	name, enc := DetectEncoding(data)
	if enc == encoding.Nop {
		return data, name, nil
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s input: %w", name, err)
	}
	return decoded, name, nil
}

// ReadCSV reads a whole CSV document. The first record is the header row. Rows with a cell
// count different from the header count are kept untouched. A document with a header row and
// no data rows is valid and yields an empty table.
func ReadCSV(r io.Reader) (Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read CSV input: %w", err)
	}
	data, enc, err := Decode(raw)
	if err != nil {
		return Table{}, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, ErrEmptyInput
		}
		return Table{}, fmt.Errorf("failed to read CSV header row: %w", err)
	}

	table := Table{Headers: headers, Rows: make([][]string, 0)}
	table.TrimHeaders()
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Table{}, fmt.Errorf("failed to read CSV row %d: %w", len(table.Rows)+2, err)
		}
		table.Rows = append(table.Rows, row)
	}
	if enc != EncodingUTF8 {
		log.Printf("Decoded CSV input from %s: %d headers, %d rows.", enc, len(table.Headers), len(table.Rows))
	}
	return table, nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) (Table, error) {
	if path == "" {
		return Table{}, fmt.Errorf("filepath is required for CSV sources")
	}
	file, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to open CSV file %s: %w", path, err)
	}
	defer file.Close()

	table, err := ReadCSV(file)
	if err != nil {
		return Table{}, fmt.Errorf("CSV file %s: %w", path, err)
	}
	log.Printf("Read %d records from CSV file %s.", table.Len(), path)
	return table, nil
}
