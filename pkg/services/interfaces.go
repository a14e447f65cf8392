// Package services contains the team and import workflows built on the
// repository layer.
package services

import (
	"context"

	"github.com/TFMV/querykit/pkg/models"
	"github.com/TFMV/querykit/pkg/rows"
)

// TeamService manages teams and their daily metrics.
type TeamService interface {
	// Create adds teams with the given names to the active project.
	Create(ctx context.Context, names []string) error
	// CreateMetrics stores metrics rows for teams that already exist.
	CreateMetrics(ctx context.Context, teamIDs map[string]any, metrics []models.TeamMetric) error
	// IDs maps team names of the active project to their ids.
	IDs(ctx context.Context, names []string) (map[string]any, error)
}

// ImportService records metrics imports.
type ImportService interface {
	// Create records an import of filename and stores its metrics, creating
	// any teams it mentions that do not exist yet.
	Create(ctx context.Context, filename string, metrics []models.TeamMetric) (rows.Row, error)
}

// Logger defines the logging interface for services.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
