package models

import (
	"context"
	"fmt"

	"github.com/TFMV/querykit/pkg/repositories"
)

// Dialect selects the DDL flavour.
type Dialect string

const (
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

// DuckDB has no identity columns, so keys draw from sequences.
var duckDBSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS project_id_seq`,
	`CREATE SEQUENCE IF NOT EXISTS imports_id_seq`,
	`CREATE SEQUENCE IF NOT EXISTS team_id_seq`,
	`CREATE SEQUENCE IF NOT EXISTS team_stats_id_seq`,
	`CREATE SEQUENCE IF NOT EXISTS team_data_id_seq`,
	`CREATE TABLE IF NOT EXISTS project (
		id SMALLINT PRIMARY KEY DEFAULT nextval('project_id_seq'),
		name VARCHAR UNIQUE,
		created TIMESTAMP DEFAULT current_timestamp,
		modified TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS imports (
		id INTEGER PRIMARY KEY DEFAULT nextval('imports_id_seq'),
		project_id SMALLINT NOT NULL REFERENCES project(id),
		filename VARCHAR NOT NULL,
		created TIMESTAMP DEFAULT current_timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS team (
		id INTEGER PRIMARY KEY DEFAULT nextval('team_id_seq'),
		project_id SMALLINT NOT NULL REFERENCES project(id),
		name VARCHAR NOT NULL,
		created TIMESTAMP DEFAULT current_timestamp,
		modified TIMESTAMP,
		UNIQUE (project_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS team_stats (
		id INTEGER PRIMARY KEY DEFAULT nextval('team_stats_id_seq'),
		team_id INTEGER UNIQUE REFERENCES team(id),
		project_id SMALLINT NOT NULL REFERENCES project(id),
		created TIMESTAMP DEFAULT current_timestamp,
		modified TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS team_data (
		id INTEGER PRIMARY KEY DEFAULT nextval('team_data_id_seq'),
		team_id INTEGER NOT NULL REFERENCES team(id),
		date DATE NOT NULL,
		review_time INTEGER NOT NULL,
		merge_time INTEGER NOT NULL,
		project_id SMALLINT NOT NULL REFERENCES project(id),
		created TIMESTAMP DEFAULT current_timestamp,
		modified TIMESTAMP,
		UNIQUE (team_id, date)
	)`,
	`INSERT INTO project (name) VALUES ('default') ON CONFLICT DO NOTHING`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS project (
		id SMALLINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		name VARCHAR(25) UNIQUE,
		created TIMESTAMP DEFAULT now(),
		modified TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS imports (
		id INTEGER GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		project_id SMALLINT NOT NULL CONSTRAINT project_id_fk REFERENCES project(id) ON DELETE CASCADE,
		filename VARCHAR(255) NOT NULL,
		created TIMESTAMP DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS team (
		id INTEGER GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		project_id SMALLINT NOT NULL CONSTRAINT project_id_fk REFERENCES project(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		created TIMESTAMP DEFAULT now(),
		modified TIMESTAMP,
		CONSTRAINT team_unique UNIQUE (project_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS team_stats (
		id INTEGER GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		team_id INTEGER UNIQUE CONSTRAINT team_id_fk REFERENCES team(id) ON DELETE RESTRICT,
		project_id SMALLINT NOT NULL CONSTRAINT project_id_fk REFERENCES project(id) ON DELETE CASCADE,
		created TIMESTAMP DEFAULT now(),
		modified TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS team_data (
		id INTEGER GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		team_id INTEGER NOT NULL CONSTRAINT team_id_fk REFERENCES team(id) ON DELETE RESTRICT,
		date DATE NOT NULL,
		review_time INTEGER NOT NULL,
		merge_time INTEGER NOT NULL,
		project_id SMALLINT NOT NULL CONSTRAINT project_id_fk REFERENCES project(id) ON DELETE CASCADE,
		created TIMESTAMP DEFAULT now(),
		modified TIMESTAMP,
		CONSTRAINT team_data_unique UNIQUE (team_id, date)
	)`,
	`INSERT INTO project (name) VALUES ('default') ON CONFLICT DO NOTHING`,
}

// Schema returns the statements creating every table for d.
func Schema(d Dialect) ([]string, error) {
	switch d {
	case DialectDuckDB:
		return append([]string(nil), duckDBSchema...), nil
	case DialectPostgres:
		return append([]string(nil), postgresSchema...), nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", d)
	}
}

// CreateTables creates the tables for d in one transaction. Existing tables
// are left untouched.
func CreateTables(ctx context.Context, db repositories.Database, d Dialect) error {
	stmts, err := Schema(d)
	if err != nil {
		return err
	}
	return db.Transaction(ctx, func(ctx context.Context, tx repositories.Querier) error {
		for _, stmt := range stmts {
			if _, err := tx.Execute(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
