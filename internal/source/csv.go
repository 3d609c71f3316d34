package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/expjudge/expjudge/internal/event"
)

// CSVSource reads the raw event table from a local CSV file. The file
// is re-read on every call so each request sees a consistent snapshot.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Events(ctx context.Context) ([]event.Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	return DecodeCSV(f)
}

func (s *CSVSource) Close() error { return nil }

// timestampLayouts are tried in order when parsing the timestamp column.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// DecodeCSV parses the raw event table from r. The first row must be a
// header naming at least event_name, timestamp and user_id; item_id and
// experiments are optional columns.
func DecodeCSV(r io.Reader) ([]event.Event, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"event_name", "timestamp", "user_id"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV header missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var events []event.Event
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}

		ts, err := parseTimestamp(field(record, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("CSV row %d: %w", line, err)
		}

		events = append(events, event.Event{
			Name:        field(record, "event_name"),
			ItemID:      field(record, "item_id"),
			Timestamp:   ts,
			UserID:      field(record, "user_id"),
			Experiments: field(record, "experiments"),
		})
	}

	return events, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}
