// Package models declares the project, team and import tables and the
// records exchanged by the services that write them.
package models

import "github.com/TFMV/querykit/pkg/schema"

// Project is a tenant. Every other table is scoped by project_id.
var Project = schema.MustTable(schema.NewTable("project",
	schema.Col("id", schema.TypeSmallInt),
	schema.Col("name", schema.TypeText),
	schema.Col("created", schema.TypeTimestamp),
	schema.Col("modified", schema.TypeTimestamp),
).PrimaryKey("id").
	Unique("project_name_key", "name").
	Modified("modified"))

// Imports records each uploaded metrics file.
var Imports = schema.MustTable(schema.NewTable("imports",
	schema.Col("id", schema.TypeInteger),
	schema.Col("project_id", schema.TypeSmallInt),
	schema.Col("filename", schema.TypeText),
	schema.Col("created", schema.TypeTimestamp),
).PrimaryKey("id").
	Tenant("project_id").
	Relate("project", "project_id", Project, "id"))

// Team is a named team within a project.
var Team = schema.MustTable(schema.NewTable("team",
	schema.Col("id", schema.TypeInteger),
	schema.Col("project_id", schema.TypeSmallInt),
	schema.Col("name", schema.TypeText),
	schema.Col("created", schema.TypeTimestamp),
	schema.Col("modified", schema.TypeTimestamp),
).PrimaryKey("id").
	Unique("team_unique", "project_id", "name").
	Tenant("project_id").
	Modified("modified").
	Relate("project", "project_id", Project, "id"))

// TeamStats holds one aggregate row per team.
var TeamStats = schema.MustTable(schema.NewTable("team_stats",
	schema.Col("id", schema.TypeInteger),
	schema.Col("team_id", schema.TypeInteger),
	schema.Col("project_id", schema.TypeSmallInt),
	schema.Col("created", schema.TypeTimestamp),
	schema.Col("modified", schema.TypeTimestamp),
).PrimaryKey("id").
	Unique("team_stats_team_id_key", "team_id").
	Tenant("project_id").
	Modified("modified").
	Relate("team", "team_id", Team, "id").
	Relate("project", "project_id", Project, "id"))

// TeamData holds one metrics row per team and day.
var TeamData = schema.MustTable(schema.NewTable("team_data",
	schema.Col("id", schema.TypeInteger),
	schema.Col("team_id", schema.TypeInteger),
	schema.Col("date", schema.TypeDate),
	schema.Col("review_time", schema.TypeInteger),
	schema.Col("merge_time", schema.TypeInteger),
	schema.Col("project_id", schema.TypeSmallInt),
	schema.Col("created", schema.TypeTimestamp),
	schema.Col("modified", schema.TypeTimestamp),
).PrimaryKey("id").
	Unique("team_data_unique", "team_id", "date").
	Tenant("project_id").
	Modified("modified").
	Relate("team", "team_id", Team, "id").
	Relate("project", "project_id", Project, "id"))

// Tables lists every table in dependency order.
func Tables() []*schema.Table {
	return []*schema.Table{Project, Imports, Team, TeamStats, TeamData}
}

// Lookup returns the table with the given name.
func Lookup(name string) (*schema.Table, bool) {
	for _, t := range Tables() {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
