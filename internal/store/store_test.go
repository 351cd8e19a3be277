package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tabletalk/internal/cache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestStore(t *testing.T) *ArtifactStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "artifacts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testArtifact(fp cache.Fingerprint, version uint64) cache.Artifact {
	return cache.Artifact{
		ID:            "art-" + string(fp[:6]),
		Fingerprint:   fp,
		SchemaVersion: version,
		Code:          "func Answer(env *frame.Env) (*frame.Result, error) { return nil, nil }",
		CreatedAt:     time.Unix(1700000000, 0),
	}
}

func TestPutAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fp := cache.ComputeFingerprint(3, "total amount by region", nil)
	want := testArtifact(fp, 3)
	require.NoError(t, s.Put(ctx, want))

	got, err := s.Get(ctx, fp, 3)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Code, got.Code)
	assert.Equal(t, uint64(3), got.SchemaVersion)
	assert.Equal(t, fp, got.Fingerprint)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	fp := cache.ComputeFingerprint(1, "no such query", nil)
	_, err := s.Get(context.Background(), fp, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetWrongSchemaVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fp := cache.ComputeFingerprint(2, "orders per customer", nil)
	require.NoError(t, s.Put(ctx, testArtifact(fp, 2)))

	// An artifact from version 2 must not satisfy a version 3 lookup.
	_, err := s.Get(ctx, fp, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutReplacesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fp := cache.ComputeFingerprint(1, "average quantity", nil)
	first := testArtifact(fp, 1)
	require.NoError(t, s.Put(ctx, first))

	second := first
	second.ID = "art-replaced"
	second.Code = "func Answer(env *frame.Env) (*frame.Result, error) { return frame.NewScalarResult(1), nil }"
	require.NoError(t, s.Put(ctx, second))

	got, err := s.Get(ctx, fp, 1)
	require.NoError(t, err)
	assert.Equal(t, "art-replaced", got.ID)
	assert.Equal(t, second.Code, got.Code)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPruneOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old1 := cache.ComputeFingerprint(1, "q one", nil)
	old2 := cache.ComputeFingerprint(2, "q two", nil)
	live := cache.ComputeFingerprint(5, "q three", nil)
	require.NoError(t, s.Put(ctx, testArtifact(old1, 1)))
	require.NoError(t, s.Put(ctx, testArtifact(old2, 2)))
	require.NoError(t, s.Put(ctx, testArtifact(live, 5)))

	n, err := s.PruneOlderThan(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.Get(ctx, old1, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := s.Get(ctx, live, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.SchemaVersion)
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifacts.db")
	ctx := context.Background()

	fp := cache.ComputeFingerprint(4, "revenue by month", nil)

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, testArtifact(fp, 4)))
	require.NoError(t, s.Close())

	s2, err := Open(path, nil)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, fp, 4)
	require.NoError(t, err)
	assert.Equal(t, fp, got.Fingerprint)
}
