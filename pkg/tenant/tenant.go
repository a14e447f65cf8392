// Package tenant carries the active project through a unit of work.
//
// Writes on tenant-scoped tables read the project from the context and fill
// it in when a row does not carry one. Reads never filter by it implicitly;
// callers pass the project as an ordinary filter.
package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Scope identifies the project a unit of work runs under.
type Scope struct {
	ProjectID int64
	UnitID    uuid.UUID
}

type scopeKey struct{}

// NewContext returns a child context scoped to projectID with a fresh unit id.
func NewContext(ctx context.Context, projectID int64) context.Context {
	return WithScope(ctx, Scope{ProjectID: projectID, UnitID: uuid.New()})
}

// WithScope stores s in a child context. A zero UnitID is replaced.
func WithScope(ctx context.Context, s Scope) context.Context {
	if s.UnitID == uuid.Nil {
		s.UnitID = uuid.New()
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the active scope, if any.
func FromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// ProjectID returns the active project id, if any.
func ProjectID(ctx context.Context) (int64, bool) {
	s, ok := FromContext(ctx)
	if !ok {
		return 0, false
	}
	return s.ProjectID, true
}

// UnitID returns the unit-of-work id as a string, or "" outside a scope.
func UnitID(ctx context.Context) string {
	s, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return s.UnitID.String()
}
