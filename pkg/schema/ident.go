package schema

import "github.com/jackc/pgx/v5"

// QuoteIdent quotes and dot-joins identifier parts: QuoteIdent("team", "id")
// yields "team"."id".
func QuoteIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}
