package envcfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ml8s/training-harness/internal/storage"
)

func minimalEnv() map[string]string {
	return map[string]string{
		"DATA_ROOT":         "/data/train",
		"TARGET_COLUMN":     "label",
		"PIPELINE_ROOT_URI": "/artifacts",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(minimalEnv())
	require.NoError(t, err)

	assert.Equal(t, "classification", cfg.TaskType)
	assert.Equal(t, int64(42), cfg.RandomSeed)
	assert.Equal(t, 0.8, cfg.TrainSize)
	assert.Equal(t, int64(5), cfg.CVFolds)
	assert.Equal(t, "joblib", cfg.ModelFormat)
	assert.True(t, cfg.StrictDataFingerprint)
	assert.Equal(t, int64(3), cfg.FingerprintAttempts)
	assert.Equal(t, int64(8*1024*1024), cfg.FingerprintChunk)
	assert.Contains(t, cfg.RedactedEnvKeys, "AWS_SECRET_ACCESS_KEY")
}

func TestLoadCoercesDeclaredTypes(t *testing.T) {
	env := minimalEnv()
	env["SAMPLE_ROWS"] = "100"
	env["ENABLE_TIME_SPLIT"] = "yes"
	env["ENABLE_RAY_TRANSFORMS"] = "no"
	env["TRAIN_SIZE"] = "0.7"
	env["LAG_PERIODS"] = "7,1,7"
	env["MODEL_LIST"] = "xgboost, lightgbm"

	cfg, err := Load(env)
	require.NoError(t, err)

	assert.Equal(t, int64(100), cfg.SampleRows)
	assert.True(t, cfg.EnableTimeSplit)
	assert.False(t, cfg.EnableRayTransforms)
	assert.Equal(t, 0.7, cfg.TrainSize)
	assert.Equal(t, []int64{1, 7}, cfg.LagPeriods)
	assert.Equal(t, []string{"lightgbm", "xgboost"}, cfg.ModelList)
}

func TestLoadIgnoresEmptyValues(t *testing.T) {
	env := minimalEnv()
	env["RANDOM_SEED"] = "   "

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.RandomSeed, "blank value keeps the default")
}

func TestLoadRejectsWrongType(t *testing.T) {
	env := minimalEnv()
	env["MAX_FEATURES"] = "lots"

	_, err := Load(env)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "MAX_FEATURES", verr.Field)
}

func TestLoadRejectsBadListItem(t *testing.T) {
	env := minimalEnv()
	env["LAG_PERIODS"] = "7,soon"

	_, err := Load(env)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "LAG_PERIODS", verr.Field)
}

func TestLoadRejectsUnknownTaskType(t *testing.T) {
	env := minimalEnv()
	env["TASK_TYPE"] = "divination"

	_, err := Load(env)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "TaskType", verr.Field)
}

func TestLoadRejectsOutOfRangeTrainSize(t *testing.T) {
	env := minimalEnv()
	env["TRAIN_SIZE"] = "1.5"

	_, err := Load(env)
	require.Error(t, err)
}

func TestValidateSupervisedRequiresTarget(t *testing.T) {
	env := minimalEnv()
	delete(env, "TARGET_COLUMN")

	_, err := Load(env)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "TARGET_COLUMN", verr.Field)
}

func TestValidateForecastingNeedsTimeAxis(t *testing.T) {
	env := minimalEnv()
	delete(env, "TARGET_COLUMN")
	env["TASK_TYPE"] = "forecasting"

	_, err := Load(env)
	require.Error(t, err)

	env["TIME_COLUMN"] = "ts"
	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.ForecastHorizon)
}

func TestLoadRequiresDataRoot(t *testing.T) {
	env := minimalEnv()
	delete(env, "DATA_ROOT")

	_, err := Load(env)
	require.Error(t, err)
}

func TestRetryPolicyDefaultsMatchStorage(t *testing.T) {
	cfg, err := Load(minimalEnv())
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultRetryPolicy(), cfg.RetryPolicy())
}

func TestRetryPolicyHonorsDeclaredKnobs(t *testing.T) {
	env := minimalEnv()
	env["FINGERPRINT_ATTEMPTS"] = "7"
	env["FINGERPRINT_BASE_DELAY_MS"] = "25"
	env["FINGERPRINT_MAX_DELAY_MS"] = "250"

	cfg, err := Load(env)
	require.NoError(t, err)

	p := cfg.RetryPolicy()
	assert.Equal(t, 7, p.Attempts)
	assert.Equal(t, 25*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 250*time.Millisecond, p.MaxDelay)
}

func TestEnviron(t *testing.T) {
	env := Environ([]string{"A=1", "B=x=y", "EMPTY=", "MALFORMED"})
	assert.Equal(t, "1", env["A"])
	assert.Equal(t, "x=y", env["B"])
	assert.Equal(t, "", env["EMPTY"])
	_, ok := env["MALFORMED"]
	assert.False(t, ok)
}

func TestFieldsPartition(t *testing.T) {
	names := map[string]bool{}
	identityCount := 0
	for _, f := range Fields {
		assert.False(t, names[f.Name], "duplicate declared field %s", f.Name)
		names[f.Name] = true
		if f.Identity {
			identityCount++
		}
	}
	assert.True(t, identityCount > 0)
	assert.True(t, identityCount < len(Fields), "platform-only fields must exist")
	assert.True(t, names["DATA_ROOT"])
	assert.False(t, Fields[len(Fields)-1].Identity, "platform fields are declared after identity fields")
}
