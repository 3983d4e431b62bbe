package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zorroa/archivist-core/pkg/clients/postgres"
	zerr "github.com/zorroa/archivist-core/pkg/errors"
	"github.com/zorroa/archivist-core/pkg/security"
)

// Project is a tenant. Disabling a project rejects all of its
// ordinary traffic while leaving its data untouched.
type Project struct {
	ID      uuid.UUID
	Name    string
	Enabled bool
}

// ProjectStore reads and writes projects. It implements
// [security.ProjectGate].
type ProjectStore struct {
	db *postgres.Client
}

var _ security.ProjectGate = (*ProjectStore)(nil)

// NewProjectStore creates a ProjectStore.
func NewProjectStore(db *postgres.Client) *ProjectStore {
	return &ProjectStore{db: db}
}

// Create inserts a project.
func (s *ProjectStore) Create(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		return nil, zerr.Validation("registry: project name must not be empty")
	}
	p := Project{ID: uuid.New(), Name: name, Enabled: true}
	_, err := s.db.Exec(ctx, `
		INSERT INTO projects (id, name, enabled) VALUES ($1, $2, TRUE)`,
		p.ID, p.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, zerr.Wrap(err, zerr.CodeConflictAlreadyExists,
				"registry: project already exists")
		}
		return nil, err
	}
	return &p, nil
}

// Get fetches a project by id.
func (s *ProjectStore) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	var p Project
	err := s.db.QueryRow(ctx, `
		SELECT id, name, enabled FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, zerr.NotFoundf("registry: no project %s", id)
		}
		return nil, zerr.Wrap(err, zerr.CodeInternalDatabase,
			"registry: project query failed")
	}
	return &p, nil
}

// SetEnabled flips a project's enabled flag.
func (s *ProjectStore) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE projects SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return zerr.NotFoundf("registry: no project %s", id)
	}
	return nil
}

// Enabled implements [security.ProjectGate]. An unknown project is
// reported as not enabled rather than as an error: from the
// authorizer's point of view both mean the request has nowhere valid
// to run.
func (s *ProjectStore) Enabled(ctx context.Context, projectID uuid.UUID) (bool, error) {
	var enabled bool
	err := s.db.QueryRow(ctx, `
		SELECT enabled FROM projects WHERE id = $1`, projectID).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, zerr.Wrap(err, zerr.CodeInternalDatabase,
			"registry: project query failed")
	}
	return enabled, nil
}
