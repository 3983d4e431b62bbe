package security

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zorroa/archivist-core/internal/testutil/fixtures"
)

func testActor() *Actor {
	return NewActor(uuid.MustParse(fixtures.UserID), uuid.MustParse(fixtures.ProjectID),
		fixtures.UserName, []Permission{PermAssetsRead}, nil)
}

func TestActorFromContext_Empty(t *testing.T) {
	t.Parallel()
	actor, ok := ActorFromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, actor)
}

func TestWithActor_RoundTrip(t *testing.T) {
	t.Parallel()
	want := testActor()
	ctx := WithActor(context.Background(), want)

	got, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, want, got)
}

func TestMustActorFromContext_PanicsWithoutActor(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		MustActorFromContext(context.Background())
	})
}

func TestMustActorFromContext_ReturnsActor(t *testing.T) {
	t.Parallel()
	want := testActor()
	ctx := WithActor(context.Background(), want)
	assert.Same(t, want, MustActorFromContext(ctx))
}

func TestWithAnalyst_RoundTrip(t *testing.T) {
	t.Parallel()
	endpoint, _ := url.Parse("https://analyst-01:5000")
	want := &AnalystIdentity{Endpoint: endpoint, Version: fixtures.AnalystVersion}
	ctx := WithAnalyst(context.Background(), want)

	got, ok := AnalystFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, want, got)
}

// TestRunAs_RestoresPreviousPrincipal verifies that the elevation is
// scoped to the body: the caller's context keeps its own actor.
func TestRunAs_RestoresPreviousPrincipal(t *testing.T) {
	t.Parallel()
	outer := testActor()
	ctx := WithActor(context.Background(), outer)

	elevated := InceptionActor()
	err := RunAs(ctx, elevated, func(inner context.Context) error {
		got := MustActorFromContext(inner)
		assert.Same(t, elevated, got)
		return nil
	})
	require.NoError(t, err)

	assert.Same(t, outer, MustActorFromContext(ctx))
}

func TestRunAs_PropagatesBodyError(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("body failed")
	err := RunAs(context.Background(), testActor(), func(context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

// TestCapture_ReinstallsPrincipalOnFreshContext covers the fan-out
// pattern: a worker goroutine starts from context.Background and gets
// the submitting request's principal reapplied.
func TestCapture_ReinstallsPrincipalOnFreshContext(t *testing.T) {
	t.Parallel()
	actor := testActor()
	endpoint, _ := url.Parse("https://analyst-01:5000")
	analyst := &AnalystIdentity{Endpoint: endpoint, Version: fixtures.AnalystVersion}

	ctx := WithAnalyst(WithActor(context.Background(), actor), analyst)
	reinstall := Capture(ctx)

	fresh := reinstall(context.Background())
	gotActor, ok := ActorFromContext(fresh)
	require.True(t, ok)
	assert.Same(t, actor, gotActor)

	gotAnalyst, ok := AnalystFromContext(fresh)
	require.True(t, ok)
	assert.Same(t, analyst, gotAnalyst)
}

func TestCapture_NothingToCapture(t *testing.T) {
	t.Parallel()
	reinstall := Capture(context.Background())
	fresh := reinstall(context.Background())

	_, ok := ActorFromContext(fresh)
	assert.False(t, ok)
	_, ok = AnalystFromContext(fresh)
	assert.False(t, ok)
}

func TestBackgroundContext_CarriesSyntheticActor(t *testing.T) {
	t.Parallel()
	projectID := uuid.MustParse(fixtures.ProjectID)
	ctx := BackgroundContext(context.Background(), projectID, []Permission{PermJobsManage})

	actor := MustActorFromContext(ctx)
	assert.Equal(t, BackgroundActorID, actor.ID())
	assert.Equal(t, projectID, actor.ProjectID())
	assert.True(t, actor.HasPermission(PermJobsManage))
	assert.False(t, actor.HasPermission(PermSystemManage))
}
