package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ml8s/training-harness/internal/envcfg"
	"github.com/ml8s/training-harness/internal/gate"
	"github.com/ml8s/training-harness/internal/snapshot"
)

func testEnviron(t *testing.T) (map[string]string, string) {
	t.Helper()
	dataRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataRoot, "train.csv"), []byte("f1,label\n1,0\n2,1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataRoot, "test.csv"), []byte("f1,label\n3,0\n"), 0o644))

	pipelineRoot := t.TempDir()
	env := map[string]string{
		"DATA_ROOT":         dataRoot,
		"TARGET_COLUMN":     "label",
		"PIPELINE_ROOT_URI": pipelineRoot,
	}
	return env, dataRoot
}

func testOptions(t *testing.T, env map[string]string) Options {
	t.Helper()
	cfg, err := envcfg.Load(env)
	require.NoError(t, err)
	return Options{Config: cfg, Environ: env, Logger: zerolog.Nop()}
}

func TestBootstrapFreshRun(t *testing.T) {
	env, _ := testEnviron(t)
	opts := testOptions(t, env)

	res, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)

	assert.Len(t, res.FullConfigHash, 64)
	assert.Len(t, res.RunID, 12)
	assert.Equal(t, res.FullConfigHash[:12], res.RunID)
	assert.Len(t, res.DataFingerprint, 64)
	assert.Contains(t, res.ArtifactRoot, "ml8s_training_runs/"+res.RunID)
	assert.False(t, res.EarlyExit)
	assert.Equal(t, "no_prior_run", res.Decision)
	assert.Len(t, res.FileTokens, 2)

	// The snapshot must already be durable before any downstream stage.
	store := snapshot.NewStore(zerolog.Nop())
	snap, err := store.ReadSnapshot(res.ArtifactRoot)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, res.FullConfigHash, snap.FullConfigHash)
	assert.Equal(t, res.RunID, snap.RunID)
}

func TestBootstrapIsDeterministic(t *testing.T) {
	env, _ := testEnviron(t)

	first, err := Bootstrap(context.Background(), testOptions(t, env))
	require.NoError(t, err)
	second, err := Bootstrap(context.Background(), testOptions(t, env))
	require.NoError(t, err)

	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.FullConfigHash, second.FullConfigHash)
	assert.Equal(t, first.CanonicalJSON, second.CanonicalJSON)
	assert.Equal(t, first.ArtifactRoot, second.ArtifactRoot)
}

func TestBootstrapShortCircuitsAfterSuccess(t *testing.T) {
	env, _ := testEnviron(t)
	opts := testOptions(t, env)

	res, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	require.False(t, res.EarlyExit)

	require.NoError(t, MarkSuccess(context.Background(), opts, res))

	again, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, again.EarlyExit)
	assert.Equal(t, gate.ReasonValidCachedRun, again.Reason)
	assert.Equal(t, res.RunID, again.RunID)
}

func TestBootstrapDataChangeChangesIdentity(t *testing.T) {
	env, dataRoot := testEnviron(t)
	opts := testOptions(t, env)

	res, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, MarkSuccess(context.Background(), opts, res))

	require.NoError(t, os.WriteFile(filepath.Join(dataRoot, "train.csv"), []byte("f1,label\n9,9\n"), 0o644))

	after, err := Bootstrap(context.Background(), testOptions(t, env))
	require.NoError(t, err)
	assert.NotEqual(t, res.RunID, after.RunID)
	assert.False(t, after.EarlyExit, "new identity means a fresh artifact root")
}

func TestBootstrapConfigChangeChangesIdentity(t *testing.T) {
	env, _ := testEnviron(t)
	res, err := Bootstrap(context.Background(), testOptions(t, env))
	require.NoError(t, err)

	env["RANDOM_SEED"] = "43"
	after, err := Bootstrap(context.Background(), testOptions(t, env))
	require.NoError(t, err)
	assert.NotEqual(t, res.RunID, after.RunID)
}

func TestBootstrapPlatformChangeKeepsIdentity(t *testing.T) {
	env, _ := testEnviron(t)
	res, err := Bootstrap(context.Background(), testOptions(t, env))
	require.NoError(t, err)

	env["FORCE_RERUN"] = "false"
	env["FINGERPRINT_ATTEMPTS"] = "7"
	env["LOG_LEVEL"] = "debug"
	after, err := Bootstrap(context.Background(), testOptions(t, env))
	require.NoError(t, err)
	assert.Equal(t, res.RunID, after.RunID)
	assert.Equal(t, res.FullConfigHash, after.FullConfigHash)
}

func TestBootstrapForceRerunIgnoresCache(t *testing.T) {
	env, _ := testEnviron(t)
	opts := testOptions(t, env)

	res, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, MarkSuccess(context.Background(), opts, res))

	env["FORCE_RERUN"] = "true"
	forced, err := Bootstrap(context.Background(), testOptions(t, env))
	require.NoError(t, err)
	assert.False(t, forced.EarlyExit)
	assert.Equal(t, res.RunID, forced.RunID, "force rerun keeps the identity, only the marker goes")

	// Without the marker the next plain invocation recomputes too.
	plain, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, plain.EarlyExit)
}

func TestBootstrapEmptyDataRootFails(t *testing.T) {
	env, _ := testEnviron(t)
	env["DATA_ROOT"] = t.TempDir()

	_, err := Bootstrap(context.Background(), testOptions(t, env))
	require.Error(t, err)
}

func TestBootstrapRedactsSnapshotEnv(t *testing.T) {
	env, _ := testEnviron(t)
	env["AWS_SECRET_ACCESS_KEY"] = "hunter2"
	opts := testOptions(t, env)

	res, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)

	store := snapshot.NewStore(zerolog.Nop())
	snap, err := store.ReadSnapshot(res.ArtifactRoot)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, snapshot.Redacted, snap.Env["AWS_SECRET_ACCESS_KEY"])
}
