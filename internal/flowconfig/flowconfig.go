// Package flowconfig loads the interview flow and FAQ tables from CSV.
package flowconfig

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

//go:embed defaults/flow.csv
var defaultFlowCSV []byte

//go:embed defaults/faq.csv
var defaultFAQCSV []byte

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// readTable reads a CSV with a header row into header-keyed records.
func readTable(r io.Reader, required ...string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty table: %w", ErrMissingColumn)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row := make(map[string]string, len(cols))
		for name, i := range cols {
			if i < len(rec) {
				row[name] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseFlow reads step,ask,match rows. The match column is optional.
func ParseFlow(r io.Reader) (*models.FlowDefinition, error) {
	rows, err := readTable(r, "step", "ask")
	if err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}
	steps := make([]models.FlowStep, 0, len(rows))
	for _, row := range rows {
		steps = append(steps, models.FlowStep{ID: row["step"], Prompt: row["ask"], Match: row["match"]})
	}
	def, err := models.NewFlowDefinition(steps)
	if err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}
	return def, nil
}

// ParseFAQ reads key,response rows, keeping file order.
func ParseFAQ(r io.Reader) (models.FAQTable, error) {
	rows, err := readTable(r, "key", "response")
	if err != nil {
		return nil, fmt.Errorf("faq: %w", err)
	}
	table := make(models.FAQTable, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		key := row["key"]
		if key == "" {
			return nil, fmt.Errorf("faq: row %d has an empty key", i+1)
		}
		if seen[strings.ToLower(key)] {
			return nil, fmt.Errorf("faq: duplicate key %q", key)
		}
		seen[strings.ToLower(key)] = true
		table = append(table, models.FAQEntry{Key: key, Response: row["response"]})
	}
	return table, nil
}

// LoadFlow reads the flow from path, or the bundled flow when path is empty.
func LoadFlow(path string) (*models.FlowDefinition, error) {
	if path == "" {
		slog.Debug("flowconfig.LoadFlow: using bundled flow")
		return DefaultFlow()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flow file: %w", err)
	}
	defer f.Close()
	def, err := ParseFlow(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("flowconfig.LoadFlow: flow loaded", "path", path, "steps", def.Len())
	return def, nil
}

// LoadFAQ reads the FAQ table from path, or the bundled table when path is empty.
// A configured path that does not exist yields an empty table.
func LoadFAQ(path string) (models.FAQTable, error) {
	if path == "" {
		return DefaultFAQ()
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("flowconfig.LoadFAQ: FAQ file not found, FAQ answers disabled", "path", path)
		return models.FAQTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open FAQ file: %w", err)
	}
	defer f.Close()
	table, err := ParseFAQ(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("flowconfig.LoadFAQ: FAQ loaded", "path", path, "entries", len(table))
	return table, nil
}

// DefaultFlow returns the bundled interview flow.
func DefaultFlow() (*models.FlowDefinition, error) {
	return ParseFlow(bytes.NewReader(defaultFlowCSV))
}

// DefaultFAQ returns the bundled FAQ table.
func DefaultFAQ() (models.FAQTable, error) {
	return ParseFAQ(bytes.NewReader(defaultFAQCSV))
}
