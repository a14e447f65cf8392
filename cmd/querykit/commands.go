package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/querykit/pkg/models"
	"github.com/TFMV/querykit/pkg/repositories"
	"github.com/TFMV/querykit/pkg/services"
)

func newQueryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query TABLE",
		Short: "Select rows matching a filter descriptor",
		Long: `Select rows matching a filter descriptor and print them as JSON.

Example:
  querykit query team --where '{"project_id": 1, "name__in": ["core", "mobile"]}' --fields id,name
  querykit query team_data --where '{"team__name": "core", "date__gte": "2023-03-01"}' --order-by -date --limit 10`,
		Args: cobra.ExactArgs(1),
	}
	where := cmd.Flags().String("where", "", "filter descriptor as a JSON object")
	orderBy := cmd.Flags().StringSlice("order-by", nil, "ordering keys, prefix - for descending")
	fields := cmd.Flags().StringSlice("fields", nil, "columns to return")
	limit := cmd.Flags().Int("limit", 0, "maximum rows")
	offset := cmd.Flags().Int("offset", 0, "rows to skip")
	distinct := cmd.Flags().Bool("distinct", false, "return distinct rows")
	withCount := cmd.Flags().Bool("with-count", false, "also return the total ignoring limit and offset")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		filters, err := parseWhere(*where)
		if err != nil {
			return err
		}
		return withApp(cmd, v, func(ctx context.Context, a *app) error {
			t, err := a.table(ctx, args[0])
			if err != nil {
				return err
			}
			repo := repositories.New(a.db, t, a.repoOptions()...)
			opts := repositories.Options{
				Filters:  filters,
				OrderBy:  *orderBy,
				Fields:   *fields,
				Distinct: *distinct,
				Limit:    *limit,
				Offset:   *offset,
			}
			if *withCount {
				found, total, err := repo.GetEntitiesWithCount(ctx, opts)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), pageOutput{Total: total, Rows: found})
			}
			found, err := repo.GetEntities(ctx, opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), found)
		})
	}
	return cmd
}

func newCountCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count TABLE",
		Short: "Count rows matching a filter descriptor",
		Args:  cobra.ExactArgs(1),
	}
	where := cmd.Flags().String("where", "", "filter descriptor as a JSON object")
	distinct := cmd.Flags().Bool("distinct", false, "count distinct rows")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		filters, err := parseWhere(*where)
		if err != nil {
			return err
		}
		return withApp(cmd, v, func(ctx context.Context, a *app) error {
			t, err := a.table(ctx, args[0])
			if err != nil {
				return err
			}
			n, err := repositories.New(a.db, t, a.repoOptions()...).
				GetCount(ctx, repositories.Options{Filters: filters, Distinct: *distinct})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), countOutput{Count: n})
		})
	}
	return cmd
}

func newDescribeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "describe TABLE",
		Short: "Print a table definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				t, err := a.table(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), describeTable(t))
			})
		},
	}
}

func newInitCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the project, team and import tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				if err := models.CreateTables(ctx, a.db, a.dialect()); err != nil {
					return err
				}
				a.logger.Info().Str("dialect", string(a.dialect())).Msg("Schema applied")
				return nil
			})
		},
	}
}

func newTeamsCmd(v *viper.Viper) *cobra.Command {
	teamsCmd := &cobra.Command{
		Use:   "teams",
		Short: "Manage teams",
	}
	teamsCmd.AddCommand(&cobra.Command{
		Use:   "create NAME...",
		Short: "Create teams in the configured project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				if a.cfg.Project == 0 {
					return fmt.Errorf("--project is required")
				}
				ctx = a.scope(ctx)
				teams := services.NewTeamService(a.db, a.serviceLogger("team_service"), a.repoOptions()...)
				if err := teams.Create(ctx, args); err != nil {
					return err
				}
				ids, err := teams.IDs(ctx, args)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), ids)
			})
		},
	})
	return teamsCmd
}

func newImportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import team metrics into the configured project",
		Long: `Import team metrics into the configured project.

FILE holds a JSON array of records:
  [{"team": "core", "date": "2023-03-01", "review_time": 10, "merge_time": 20}]

Teams that do not exist yet are created. The import runs in one transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				if a.cfg.Project == 0 {
					return fmt.Errorf("--project is required")
				}
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open file: %w", err)
				}
				defer f.Close()
				records, err := readMetrics(f)
				if err != nil {
					return err
				}

				logger := a.serviceLogger("import_service")
				teams := services.NewTeamService(a.db, logger, a.repoOptions()...)
				imports := services.NewImportService(a.db, teams, logger, a.collector, a.repoOptions()...)
				record, err := imports.Create(a.scope(ctx), filepath.Base(args[0]), records)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), record)
			})
		},
	}
}

func (a *app) serviceLogger(component string) services.Logger {
	return &serviceLoggerAdapter{logger: a.logger.With().Str("component", component).Logger()}
}
