package registry

import (
	"context"

	"github.com/zorroa/archivist-core/pkg/clients/postgres"
	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// Schema is the DDL for the registry tables. The partial unique index
// on (external_subject, issuer_tag) is what makes external
// provisioning idempotent under concurrent first logins; locally
// created users keep both columns empty and stay outside it.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
	id      UUID PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	enabled BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS users (
	id               UUID PRIMARY KEY,
	project_id       UUID NOT NULL,
	external_subject TEXT NOT NULL DEFAULT '',
	issuer_tag       TEXT NOT NULL DEFAULT '',
	name             TEXT NOT NULL,
	email            TEXT NOT NULL DEFAULT '',
	locale           TEXT NOT NULL DEFAULT '',
	enabled          BOOLEAN NOT NULL DEFAULT TRUE,
	permissions      TEXT[] NOT NULL DEFAULT '{}'
);

CREATE UNIQUE INDEX IF NOT EXISTS users_external_identity
	ON users (external_subject, issuer_tag)
	WHERE external_subject <> '';

CREATE TABLE IF NOT EXISTS signing_keys (
	owner_id UUID PRIMARY KEY,
	secret   TEXT NOT NULL
);
`

// ApplySchema creates the registry tables if they do not exist.
// Intended for tests and single-node setups; production deployments
// run migrations out of band.
func ApplySchema(ctx context.Context, db *postgres.Client) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return zerr.Wrap(err, zerr.CodeInternalDatabase,
			"registry: applying schema")
	}
	return nil
}
