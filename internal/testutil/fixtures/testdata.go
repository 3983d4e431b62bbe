// Package fixtures provides shared test identity constants for the
// Archivist core test suite. Common constants keep magic strings out
// of tests and consistent across packages.
package fixtures

// Standard identity values used in security tests.
const (
	// UserID is the default user id for unit tests.
	UserID = "0d5a9c10-3f2e-4b44-9c1b-6a1d3f8e2a01"

	// ProjectID is the default project id for unit tests.
	ProjectID = "7b2f4e60-8c1d-4a33-b5e2-90f7c6d4e802"

	// AltProjectID is a second project id for override tests.
	AltProjectID = "c4e8a1f2-5d6b-4c77-8e93-12a0b3f4d503"

	// UserName is the default user display name.
	UserName = "test-user"

	// ExternalSubject is the default external-IdP subject.
	ExternalSubject = "alice@example.com"

	// ExternalIssuer is the default external-IdP issuer URL.
	ExternalIssuer = "https://idp.example.com"

	// ExternalIssuerTag is the stable short name for the default
	// external provider.
	ExternalIssuerTag = "example-idp"

	// SharedSecret is an HMAC secret for token tests. Long enough to
	// be plausible HS512 material.
	SharedSecret = "test-shared-secret-test-shared-secret-test-shared-secret-0123456789"
)

// Standard analyst worker values.
const (
	// AnalystHost is the default worker host claim.
	AnalystHost = "analyst-01.cluster.local"

	// AnalystPort is the default worker port claim.
	AnalystPort = 5000

	// AnalystVersion is the default worker version claim.
	AnalystVersion = "0.41.2"
)

// Standard configuration values used in config loader tests.
const (
	// TestEnvPrefix is the default env prefix for config tests.
	TestEnvPrefix = "TESTAPP"

	// TestConfigYAML is a minimal valid YAML configuration.
	TestConfigYAML = `host: localhost
port: 8080
database: testdb
`

	// TestConfigJSON is a minimal valid JSON configuration.
	TestConfigJSON = `{
  "host": "localhost",
  "port": 8080,
  "database": "testdb"
}`
)

// Standard database values used in postgres client tests.
const (
	TestDBHost = "localhost"
	TestDBPort = 5432
	TestDBName = "testdb"
	TestDBUser = "testuser"

	// TestDBPassword is deliberately weak; unit tests only.
	TestDBPassword = "testpass"
)
