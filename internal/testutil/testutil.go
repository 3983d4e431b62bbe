// Package testutil provides shared test helpers for the Archivist
// core test suite.
//
// All helpers accept [testing.TB] for compatibility with both tests
// and benchmarks. Functions that halt the test on failure use
// [require] from testify; functions that record failures without
// stopping use [assert]. Every helper calls t.Helper() so failures
// report the caller's file and line.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// RequireNoError halts the test immediately if err is non-nil.
func RequireNoError(t testing.TB, err error, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, err, msgAndArgs...)
}

// RequireError halts the test immediately if err is nil.
func RequireError(t testing.TB, err error, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
}

// RequireErrorCode halts the test if err is nil, is not a
// *zerr.Error, or does not carry the expected error code. The primary
// helper for checking typed failures.
//
//	err := store.Key(ctx, unknownID)
//	testutil.RequireErrorCode(t, err, zerr.CodeNotFoundKey)
func RequireErrorCode(t testing.TB, err error, code zerr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	typed, ok := zerr.AsError(err)
	require.True(t, ok, "expected *zerr.Error, got %T: %v", err, err)
	require.Equal(t, code, typed.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		typed.Code, code, typed.Message)
}

// AssertErrorCode records a failure (without halting) if err does not
// carry the expected code. Use in table-driven tests to check every
// row.
func AssertErrorCode(t testing.TB, err error, code zerr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	typed, ok := zerr.AsError(err)
	if !assert.True(t, ok, "expected *zerr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, typed.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		typed.Code, code, typed.Message)
}

// TempConfigFile creates a temporary file with the given content and
// extension (".yaml", ".json") inside t.TempDir(), mode 0600.
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config"+ext)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write temp config file %s", path)
	return path
}

// TempFile creates a temporary file with the given name and content
// inside t.TempDir().
func TempFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write temp file %s", path)
	return path
}

// SetEnv sets an environment variable and restores the original value
// when the test completes. Safe for parallel tests only when each
// test uses a unique variable.
func SetEnv(t testing.TB, key, value string) {
	t.Helper()
	prev, existed := os.LookupEnv(key)
	err := os.Setenv(key, value)
	require.NoError(t, err, "failed to set env var %s", key)
	t.Cleanup(func() {
		if existed {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

// UnsetEnv unsets an environment variable and restores it when the
// test completes.
func UnsetEnv(t testing.TB, key string) {
	t.Helper()
	prev, existed := os.LookupEnv(key)
	err := os.Unsetenv(key)
	require.NoError(t, err, "failed to unset env var %s", key)
	t.Cleanup(func() {
		if existed {
			_ = os.Setenv(key, prev)
		}
	})
}

// AssertJSONContains marshals v and asserts that the resulting JSON
// contains the expected substring.
func AssertJSONContains(t testing.TB, v any, expected string) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err, "json.Marshal failed")
	assert.Contains(t, string(data), expected,
		"expected JSON to contain %q, got: %s", expected, string(data))
}

// AssertJSONNotContains marshals v and asserts that the resulting
// JSON does not contain the unexpected substring. Used to verify that
// secrets stay redacted.
func AssertJSONNotContains(t testing.TB, v any, unexpected string) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err, "json.Marshal failed")
	assert.NotContains(t, string(data), unexpected,
		"expected JSON to NOT contain %q, got: %s", unexpected, string(data))
}
