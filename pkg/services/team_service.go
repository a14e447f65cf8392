package services

import (
	"context"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/filter"
	"github.com/TFMV/querykit/pkg/models"
	"github.com/TFMV/querykit/pkg/repositories"
	"github.com/TFMV/querykit/pkg/tenant"
)

// teamService implements TeamService.
type teamService struct {
	teams  *repositories.Repository
	data   *repositories.Repository
	logger Logger
}

// NewTeamService creates a team service over db.
func NewTeamService(db repositories.Database, logger Logger, opts ...repositories.Option) TeamService {
	return &teamService{
		teams:  repositories.New(db, models.Team, opts...),
		data:   repositories.New(db, models.TeamData, opts...),
		logger: logger,
	}
}

func (s *teamService) Create(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	values := make([]map[string]any, len(names))
	for i, name := range names {
		values[i] = map[string]any{"name": name}
	}
	if _, err := s.teams.BulkCreate(ctx, values, false); err != nil {
		return err
	}
	s.logger.Debug("Teams created", "count", len(names), "unit_id", tenant.UnitID(ctx))
	return nil
}

func (s *teamService) CreateMetrics(ctx context.Context, teamIDs map[string]any, metrics []models.TeamMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	values := make([]map[string]any, len(metrics))
	for i, m := range metrics {
		id, ok := teamIDs[m.Team]
		if !ok {
			return errors.BadInputf("unknown team %q", m.Team).WithDetail("team", m.Team)
		}
		values[i] = m.Values(id)
	}
	_, err := s.data.BulkCreate(ctx, values, false)
	return err
}

func (s *teamService) IDs(ctx context.Context, names []string) (map[string]any, error) {
	projectID, ok := tenant.ProjectID(ctx)
	if !ok {
		return nil, errors.BadInput("team lookup requires a project scope")
	}
	found, err := s.teams.GetEntities(ctx, repositories.Options{
		Filters: filter.Descriptor{"name__in": names, "project_id": projectID},
		Fields:  []string{"name", "id"},
	})
	if err != nil {
		return nil, err
	}
	ids := make(map[string]any, len(found))
	for _, t := range found {
		if name, ok := t.Get("name").(string); ok {
			ids[name] = t.Get("id")
		}
	}
	return ids, nil
}
