// Package registry persists the identity state behind the security
// layer: user records, their signing keys, and project tenancy. It is
// the only writer of that state; validators and authorizers reach it
// through the narrow interfaces pkg/security defines.
package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zorroa/archivist-core/pkg/clients/postgres"
	zerr "github.com/zorroa/archivist-core/pkg/errors"
	"github.com/zorroa/archivist-core/pkg/security"
)

// tracerName is the OpenTelemetry instrumentation scope name for this
// package.
const tracerName = "github.com/zorroa/archivist-core/pkg/registry"

// signingKeyBytes is the entropy of generated signing keys.
const signingKeyBytes = 64

// uniqueViolation is the PostgreSQL error code for a unique
// constraint violation.
const uniqueViolation = "23505"

// User is a durable local identity. Externally provisioned users
// carry the (ExternalSubject, IssuerTag) pair that makes provisioning
// idempotent; locally created users leave both empty.
type User struct {
	ID              uuid.UUID
	ProjectID       uuid.UUID
	ExternalSubject string
	IssuerTag       string
	Name            string
	Email           string
	Locale          string
	Enabled         bool
	Permissions     []security.Permission
}

// Actor converts the stored record into a request actor.
func (u *User) Actor() *security.Actor {
	var attrs map[string]string
	if u.Email != "" || u.Locale != "" {
		attrs = map[string]string{}
		if u.Email != "" {
			attrs[security.ClaimEmail] = u.Email
		}
		if u.Locale != "" {
			attrs[security.ClaimLocale] = u.Locale
		}
	}
	return security.NewActor(u.ID, u.ProjectID, u.Name, u.Permissions, attrs)
}

// CreateUserSpec describes a locally created user.
type CreateUserSpec struct {
	ProjectID   uuid.UUID
	Name        string
	Email       string
	Locale      string
	Permissions []security.Permission
}

// UserStore reads and writes users and their signing keys. It
// implements [security.Provisioner], [security.ActorResolver], and
// [security.SigningKeyStore].
type UserStore struct {
	db     *postgres.Client
	tracer trace.Tracer

	// defaultProjectID scopes externally provisioned users whose
	// claims carry no organization.
	defaultProjectID uuid.UUID
}

var (
	_ security.Provisioner     = (*UserStore)(nil)
	_ security.ActorResolver   = (*UserStore)(nil)
	_ security.SigningKeyStore = (*UserStore)(nil)
)

// NewUserStore creates a UserStore over the shared database client.
func NewUserStore(db *postgres.Client, defaultProjectID uuid.UUID) *UserStore {
	return &UserStore{
		db:               db,
		tracer:           otel.Tracer(tracerName),
		defaultProjectID: defaultProjectID,
	}
}

const userColumns = `id, project_id, external_subject, issuer_tag, name, email, locale, enabled, permissions`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var perms []string
	err := row.Scan(&u.ID, &u.ProjectID, &u.ExternalSubject, &u.IssuerTag,
		&u.Name, &u.Email, &u.Locale, &u.Enabled, &perms)
	if err != nil {
		return nil, err
	}
	u.Permissions = make([]security.Permission, 0, len(perms))
	for _, p := range perms {
		u.Permissions = append(u.Permissions, security.Permission(p))
	}
	return &u, nil
}

// Create inserts a locally managed user together with a fresh signing
// key, in one transaction. The generated secret is never returned;
// tokens for the user come from the issuer, which reads the key back
// through [UserStore.Key].
func (s *UserStore) Create(ctx context.Context, spec CreateUserSpec) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "registry.CreateUser")
	defer span.End()

	if spec.Name == "" {
		return nil, zerr.Validation("registry: user name must not be empty")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.New()
	perms := permissionNames(spec.Permissions)
	row := tx.QueryRow(ctx, `
		INSERT INTO users (id, project_id, external_subject, issuer_tag, name, email, locale, enabled, permissions)
		VALUES ($1, $2, '', '', $3, $4, $5, TRUE, $6)
		RETURNING `+userColumns,
		id, spec.ProjectID, spec.Name, spec.Email, spec.Locale, perms)
	user, err := scanUser(row)
	if err != nil {
		return nil, wrapUserError(err)
	}

	secret := security.GenerateSecret(signingKeyBytes)
	if _, err := tx.Exec(ctx, `
		INSERT INTO signing_keys (owner_id, secret) VALUES ($1, $2)`,
		user.ID, secret.Value()); err != nil {
		return nil, zerr.Wrap(err, zerr.CodeInternalDatabase,
			"registry: creating signing key")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, zerr.Wrap(err, zerr.CodeInternalDatabase,
			"registry: committing user creation")
	}
	span.SetAttributes(attribute.String("registry.user_id", user.ID.String()))
	return user, nil
}

// Provision implements [security.Provisioner]. Claims from the
// delegated path carry a userId and upsert by id; claims from
// external providers carry (sub, issuerTag) and upsert on that pair.
// Either way, two concurrent first logins for the same subject
// produce exactly one user: the losing insert hits the uniqueness
// constraint and refetches the winner's row.
func (s *UserStore) Provision(ctx context.Context, claims security.Claims) (*security.Actor, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Provision")
	defer span.End()

	var user *User
	var err error
	if userID, ok := claims.UUID(security.ClaimUserID); ok {
		user, err = s.provisionByID(ctx, userID, claims)
	} else {
		user, err = s.provisionExternal(ctx, claims)
	}
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, zerr.InvalidCredential("registry: user is disabled")
	}

	span.SetAttributes(attribute.String("registry.user_id", user.ID.String()))
	return user.Actor(), nil
}

// provisionExternal upserts on (external_subject, issuer_tag).
// Profile fields refresh on every login; the id, project scope, and
// enabled flag never change after the first.
func (s *UserStore) provisionExternal(ctx context.Context, claims security.Claims) (*User, error) {
	subject := claims.String(security.ClaimSubject)
	issuerTag := claims.String(security.ClaimIssuerTag)
	if subject == "" || issuerTag == "" {
		return nil, zerr.InvalidCredential("registry: claims carry no provisionable subject")
	}

	projectID := s.defaultProjectID
	if org, ok := claims.UUID(security.ClaimCompanyID); ok {
		projectID = org
	}
	name := claims.String(security.ClaimName)
	if name == "" {
		name = subject
	}
	perms := permissionNames(claims.Permissions())

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, project_id, external_subject, issuer_tag, name, email, locale, enabled, permissions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
		ON CONFLICT (external_subject, issuer_tag) WHERE external_subject <> ''
		DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
			locale = EXCLUDED.locale, permissions = EXCLUDED.permissions
		RETURNING `+userColumns,
		uuid.New(), projectID, subject, issuerTag,
		name, claims.String(security.ClaimEmail), claims.String(security.ClaimLocale), perms)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race to a concurrent first login; the winner's
			// row is the user now.
			return s.userByExternal(ctx, subject, issuerTag)
		}
		return nil, wrapUserError(err)
	}

	if err := s.ensureSigningKey(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// provisionByID upserts a user under an id chosen by the remote
// validator.
func (s *UserStore) provisionByID(ctx context.Context, userID uuid.UUID, claims security.Claims) (*User, error) {
	projectID := s.defaultProjectID
	if org, ok := claims.UUID(security.ClaimCompanyID); ok {
		projectID = org
	}
	name := claims.String(security.ClaimName)
	if name == "" {
		name = userID.String()
	}
	perms := permissionNames(claims.Permissions())

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, project_id, external_subject, issuer_tag, name, email, locale, enabled, permissions)
		VALUES ($1, $2, '', '', $3, $4, $5, TRUE, $6)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
			locale = EXCLUDED.locale, permissions = EXCLUDED.permissions
		RETURNING `+userColumns,
		userID, projectID, name,
		claims.String(security.ClaimEmail), claims.String(security.ClaimLocale), perms)

	user, err := scanUser(row)
	if err != nil {
		return nil, wrapUserError(err)
	}
	if err := s.ensureSigningKey(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// ensureSigningKey creates the user's key on first provisioning and
// leaves an existing key untouched, so repeat logins never invalidate
// outstanding tokens.
func (s *UserStore) ensureSigningKey(ctx context.Context, ownerID uuid.UUID) error {
	secret := security.GenerateSecret(signingKeyBytes)
	_, err := s.db.Exec(ctx, `
		INSERT INTO signing_keys (owner_id, secret) VALUES ($1, $2)
		ON CONFLICT (owner_id) DO NOTHING`,
		ownerID, secret.Value())
	if err != nil {
		return zerr.Wrap(err, zerr.CodeInternalDatabase,
			"registry: ensuring signing key")
	}
	return nil
}

func (s *UserStore) userByExternal(ctx context.Context, subject, issuerTag string) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE external_subject = $1 AND issuer_tag = $2`,
		subject, issuerTag)
	user, err := scanUser(row)
	if err != nil {
		return nil, wrapUserError(err)
	}
	return user, nil
}

// Get fetches a user by id.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, wrapUserError(err)
	}
	return user, nil
}

// ActorByID implements [security.ActorResolver]. Disabled users fail
// as rejected credentials; a valid token for a disabled account must
// not authenticate.
func (s *UserStore) ActorByID(ctx context.Context, id uuid.UUID) (*security.Actor, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, zerr.InvalidCredential("registry: user is disabled")
	}
	return user.Actor(), nil
}

// SetEnabled flips a user's enabled flag.
func (s *UserStore) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return zerr.Newf(zerr.CodeNotFoundUser, "registry: no user %s", id)
	}
	return nil
}

// Key implements [security.SigningKeyStore]. A missing key is an
// error; there is no fallback secret to sign or verify with.
func (s *UserStore) Key(ctx context.Context, ownerID uuid.UUID) (security.SigningKey, error) {
	var secret string
	err := s.db.QueryRow(ctx, `
		SELECT secret FROM signing_keys WHERE owner_id = $1`, ownerID).Scan(&secret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return security.SigningKey{}, zerr.Newf(zerr.CodeNotFoundKey,
				"registry: no signing key for %s", ownerID)
		}
		return security.SigningKey{}, zerr.Wrap(err, zerr.CodeInternalDatabase,
			"registry: loading signing key")
	}
	return security.SigningKey{OwnerID: ownerID, Secret: security.Secret(secret)}, nil
}

// RotateKey replaces the owner's signing key, invalidating every
// outstanding token signed with the old one.
func (s *UserStore) RotateKey(ctx context.Context, ownerID uuid.UUID) error {
	secret := security.GenerateSecret(signingKeyBytes)
	tag, err := s.db.Exec(ctx, `
		UPDATE signing_keys SET secret = $2 WHERE owner_id = $1`,
		ownerID, secret.Value())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return zerr.Newf(zerr.CodeNotFoundKey, "registry: no signing key for %s", ownerID)
	}
	return nil
}

// DeleteKey removes the owner's signing key outright. Token
// validation for the owner fails closed from the next request on.
func (s *UserStore) DeleteKey(ctx context.Context, ownerID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM signing_keys WHERE owner_id = $1`, ownerID)
	return err
}

func permissionNames(perms []security.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func wrapUserError(err error) error {
	if err == nil {
		return nil
	}
	var typed *zerr.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return zerr.New(zerr.CodeNotFoundUser, "registry: user not found")
	}
	if isUniqueViolation(err) {
		return zerr.Wrap(err, zerr.CodeConflictAlreadyExists,
			"registry: user already exists")
	}
	return zerr.Wrap(err, zerr.CodeInternalDatabase, "registry: user query failed")
}
