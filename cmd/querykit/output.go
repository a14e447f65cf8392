package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/TFMV/querykit/pkg/filter"
	"github.com/TFMV/querykit/pkg/models"
	"github.com/TFMV/querykit/pkg/rows"
	"github.com/TFMV/querykit/pkg/schema"
)

type pageOutput struct {
	Total int64      `json:"total"`
	Rows  []rows.Row `json:"rows"`
}

type countOutput struct {
	Count int64 `json:"count"`
}

type columnOutput struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type relationOutput struct {
	Name         string `json:"name"`
	LocalColumn  string `json:"local_column"`
	Table        string `json:"table"`
	RemoteColumn string `json:"remote_column"`
}

type tableOutput struct {
	Name           string              `json:"name"`
	Columns        []columnOutput      `json:"columns"`
	PrimaryKey     []string            `json:"primary_key,omitempty"`
	Unique         map[string][]string `json:"unique,omitempty"`
	ConflictTarget []string            `json:"conflict_target"`
	Tenant         string              `json:"tenant,omitempty"`
	Modified       string              `json:"modified,omitempty"`
	Relations      []relationOutput    `json:"relations,omitempty"`
}

func describeTable(t *schema.Table) tableOutput {
	out := tableOutput{
		Name:           t.Name(),
		PrimaryKey:     t.PrimaryKeyColumns(),
		ConflictTarget: t.ConflictTarget(),
		Tenant:         t.TenantColumn(),
		Modified:       t.ModifiedColumn(),
	}
	for _, c := range t.Columns() {
		out.Columns = append(out.Columns, columnOutput{Name: c.Name, Type: c.Type.String()})
	}
	for _, u := range t.UniqueConstraints() {
		if out.Unique == nil {
			out.Unique = make(map[string][]string)
		}
		out.Unique[u.Name] = u.Columns
	}
	for _, r := range t.Relations() {
		out.Relations = append(out.Relations, relationOutput{
			Name:         r.Name,
			LocalColumn:  r.LocalColumn,
			Table:        r.Table.Name(),
			RemoteColumn: r.RemoteColumn,
		})
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// parseWhere decodes a filter descriptor. Integral numbers become int64 so
// they bind as integers.
func parseWhere(s string) (filter.Descriptor, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid --where: %w", err)
	}
	d := make(filter.Descriptor, len(raw))
	for k, v := range raw {
		d[k] = normalizeJSON(v)
	}
	return d, nil
}

func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeJSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeJSON(e)
		}
		return out
	}
	return v
}

type metricInput struct {
	Team       string `json:"team"`
	Date       string `json:"date"`
	ReviewTime int64  `json:"review_time"`
	MergeTime  int64  `json:"merge_time"`
}

// readMetrics decodes a JSON array of metric records. Dates use YYYY-MM-DD.
func readMetrics(r io.Reader) ([]models.TeamMetric, error) {
	var in []metricInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("invalid metrics: %w", err)
	}
	out := make([]models.TeamMetric, 0, len(in))
	for i, m := range in {
		date, err := time.Parse(time.DateOnly, m.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid metrics: record %d: %w", i, err)
		}
		out = append(out, models.TeamMetric{
			Team:       m.Team,
			Date:       date,
			ReviewTime: m.ReviewTime,
			MergeTime:  m.MergeTime,
		})
	}
	return out, nil
}
