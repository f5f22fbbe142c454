// Package export writes stored day records as CSV.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/runnerr0/tabtally/internal/storage"
)

// ErrNothingToExport is returned when the store holds no day records.
var ErrNothingToExport = errors.New("nothing to export")

const histogramField = "tabCounts"

// RecordSource yields raw stored records.
type RecordSource interface {
	RawDays(ctx context.Context) ([]storage.RawRecord, error)
}

type Exporter struct {
	source RecordSource
}

func New(source RecordSource) *Exporter {
	return &Exporter{source: source}
}

type field struct {
	key   string
	value json.RawMessage
}

// WriteCSV writes one header row and one row per stored record to w and
// returns the number of data rows. The header is the field order of the
// first record; later records are laid out to match it.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer) (int, error) {
	rows, err := e.records(ctx)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrNothingToExport
	}

	header := make([]string, len(rows[0]))
	for i, f := range rows[0] {
		header[i] = f.key
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range rows {
		if err := cw.Write(layout(header, rec)); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(rows), nil
}

// ExportFile writes the CSV to path. No file is created when there is
// nothing to export.
func (e *Exporter) ExportFile(ctx context.Context, path string) (int, error) {
	var buf bytes.Buffer
	n, err := e.WriteCSV(ctx, &buf)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

func (e *Exporter) records(ctx context.Context) ([][]field, error) {
	raw, err := e.source.RawDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	out := make([][]field, 0, len(raw))
	for _, r := range raw {
		fields, err := parseObject(r.Value)
		if err != nil {
			log.Warn().Err(err).Str("key", r.Key).Msg("skipping unreadable record")
			continue
		}
		out = append(out, normalizeHistogram(fields))
	}
	return out, nil
}

// parseObject decodes a JSON object keeping its field order.
func parseObject(data []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("record is not a JSON object")
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		fields = append(fields, field{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

// normalizeHistogram replaces a missing or malformed histogram with zeros.
func normalizeHistogram(fields []field) []field {
	for i, f := range fields {
		if f.key != histogramField {
			continue
		}
		if !validHistogram(f.value) {
			fields[i].value = zeroHistogram()
		}
		return fields
	}
	return append(fields, field{key: histogramField, value: zeroHistogram()})
}

func validHistogram(raw json.RawMessage) bool {
	var counts []json.Number
	if err := json.Unmarshal(raw, &counts); err != nil {
		return false
	}
	if len(counts) != storage.HoursPerDay {
		return false
	}
	for _, c := range counts {
		if _, err := c.Float64(); err != nil {
			return false
		}
	}
	return true
}

func zeroHistogram() json.RawMessage {
	zeros := make([]string, storage.HoursPerDay)
	for i := range zeros {
		zeros[i] = "0"
	}
	return json.RawMessage("[" + strings.Join(zeros, ",") + "]")
}

func layout(header []string, rec []field) []string {
	byKey := make(map[string]json.RawMessage, len(rec))
	for _, f := range rec {
		byKey[f.key] = f.value
	}
	row := make([]string, len(header))
	for i, key := range header {
		if v, ok := byKey[key]; ok {
			row[i] = cell(v)
		}
	}
	return row
}

// cell renders a JSON value: strings unquoted, arrays comma-joined, null
// empty, anything else verbatim.
func cell(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = cell(item)
			}
			return strings.Join(parts, ",")
		}
	}
	return string(trimmed)
}
