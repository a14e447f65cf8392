package services

import (
	"context"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
	"github.com/TFMV/querykit/pkg/models"
	"github.com/TFMV/querykit/pkg/repositories"
	"github.com/TFMV/querykit/pkg/rows"
	"github.com/TFMV/querykit/pkg/tenant"
)

// importService implements ImportService.
type importService struct {
	db      repositories.Database
	imports *repositories.Repository
	teams   TeamService
	locks   *keyedLock
	logger  Logger
	metrics metrics.Collector
}

// NewImportService creates an import service over db. Imports of one
// project run one at a time.
func NewImportService(db repositories.Database, teams TeamService, logger Logger, collector metrics.Collector, opts ...repositories.Option) ImportService {
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &importService{
		db:      db,
		imports: repositories.New(db, models.Imports, opts...),
		teams:   teams,
		locks:   newKeyedLock(),
		logger:  logger,
		metrics: collector,
	}
}

func (s *importService) Create(ctx context.Context, filename string, metricRows []models.TeamMetric) (rows.Row, error) {
	projectID, ok := tenant.ProjectID(ctx)
	if !ok {
		return rows.Row{}, errors.BadInput("import requires a project scope")
	}
	if filename == "" {
		return rows.Row{}, errors.BadInput("import filename is required")
	}
	if len(metricRows) == 0 {
		return rows.Row{}, errors.BadInput("import has no metrics")
	}
	names := make([]string, 0)
	seen := make(map[string]struct{})
	for _, m := range metricRows {
		if err := m.Validate(); err != nil {
			return rows.Row{}, err
		}
		if _, ok := seen[m.Team]; !ok {
			seen[m.Team] = struct{}{}
			names = append(names, m.Team)
		}
	}

	timer := s.metrics.StartTimer(metrics.ImportDuration)
	unlock := s.locks.Lock(projectID)
	defer unlock()

	var (
		record  rows.Row
		created int
	)
	err := repositories.RunInTx(ctx, s.db, func(ctx context.Context) error {
		ids, err := s.createMissingTeams(ctx, names)
		if err != nil {
			return err
		}
		created = len(names) - ids.existing

		record, _, err = s.imports.Create(ctx, map[string]any{"filename": filename}, true)
		if err != nil {
			return err
		}
		return s.teams.CreateMetrics(ctx, ids.byName, metricRows)
	})
	s.metrics.RecordHistogram(metrics.ImportDuration, timer.Stop())
	if err != nil {
		s.metrics.IncrementCounter(metrics.ImportsTotal, "status", "failed")
		s.logger.Error("Import failed", "error", err, "project_id", projectID, "filename", filename)
		return rows.Row{}, err
	}

	s.metrics.IncrementCounter(metrics.ImportsTotal, "status", "ok")
	s.metrics.RecordHistogram(metrics.ImportRows, float64(len(metricRows)))
	s.logger.Info("Import created",
		"project_id", projectID,
		"filename", filename,
		"rows", len(metricRows),
		"teams_created", created,
		"unit_id", tenant.UnitID(ctx))
	return record, nil
}

type teamIDs struct {
	byName   map[string]any
	existing int
}

func (s *importService) createMissingTeams(ctx context.Context, names []string) (teamIDs, error) {
	existing, err := s.teams.IDs(ctx, names)
	if err != nil {
		return teamIDs{}, err
	}
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := existing[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return teamIDs{byName: existing, existing: len(existing)}, nil
	}
	if err := s.teams.Create(ctx, missing); err != nil {
		return teamIDs{}, err
	}
	all, err := s.teams.IDs(ctx, names)
	if err != nil {
		return teamIDs{}, err
	}
	return teamIDs{byName: all, existing: len(existing)}, nil
}
