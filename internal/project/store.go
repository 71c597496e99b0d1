package project

import (
	"context"
	"time"

	"estate-portal/internal/backend"
	"estate-portal/internal/profile"
	"estate-portal/prometheus"

	"go.uber.org/zap"
)

// Store reads the projects table with role-based scoping.
type Store struct {
	tables *backend.TableClient
	log    *zap.Logger
}

// NewStore creates a project store over the backend table API.
func NewStore(tables *backend.TableClient, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{tables: tables, log: log}
}

// List fetches projects visible to prof, newest first. Admins see every
// record; everyone else sees only rows whose client_email matches their
// profile email. On failure the caller gets an empty, non-nil slice plus
// the error, so a view can always render.
func (s *Store) List(ctx context.Context, token string, prof *profile.Profile) ([]Project, error) {
	defer prometheus.TrackBackendCall("project_list")(time.Now())

	if prof == nil {
		// No profile row means no scoping predicate can be built; the
		// visible set is empty by definition.
		return []Project{}, nil
	}

	var filters []backend.Filter
	if !prof.IsAdmin() {
		filters = append(filters, backend.Eq("client_email", prof.Email))
	}

	var rows []Project
	err := s.tables.Select(
		ctx, token, projectsTable,
		projectColumns,
		filters,
		&backend.Order{Column: "created_at", Descending: true},
		&rows,
	)
	if err != nil {
		s.log.Error("project listing failed",
			zap.String("role", prof.Role),
			zap.Error(err),
		)
		return []Project{}, err
	}
	if rows == nil {
		rows = []Project{}
	}
	prometheus.ProjectOperationCounter.WithLabelValues("list").Inc()
	return rows, nil
}
