package models

import (
	"time"
	"unicode/utf8"

	"github.com/TFMV/querykit/pkg/errors"
)

// MaxTeamNameLength bounds team names.
const MaxTeamNameLength = 255

// TeamMetric is one row of an imported metrics file.
type TeamMetric struct {
	Team       string    `json:"team"`
	Date       time.Time `json:"date"`
	ReviewTime int64     `json:"review_time"`
	MergeTime  int64     `json:"merge_time"`
}

// Validate checks field bounds.
func (m TeamMetric) Validate() error {
	if n := utf8.RuneCountInString(m.Team); n == 0 || n > MaxTeamNameLength {
		return errors.BadInputf("team name must be 1 to %d characters", MaxTeamNameLength).WithDetail("team", m.Team)
	}
	if m.Date.IsZero() {
		return errors.BadInputf("team %s: date is required", m.Team)
	}
	if m.ReviewTime < 0 {
		return errors.BadInputf("team %s: review_time must not be negative", m.Team)
	}
	if m.MergeTime < 0 {
		return errors.BadInputf("team %s: merge_time must not be negative", m.Team)
	}
	return nil
}

// Day truncates the metric date to midnight UTC.
func (m TeamMetric) Day() time.Time {
	y, mo, d := m.Date.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// Values maps the metric onto a team_data row for the given team id.
func (m TeamMetric) Values(teamID any) map[string]any {
	return map[string]any{
		"team_id":     teamID,
		"date":        m.Day(),
		"review_time": m.ReviewTime,
		"merge_time":  m.MergeTime,
	}
}
