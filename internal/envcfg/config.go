package envcfg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ml8s/training-harness/internal/storage"
)

// ValidationError reports a missing or malformed identity-critical field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// PlatformConfig is the explicit typed schema for every declared
// configuration variable. It is constructed exactly once at process entry
// from an explicit environment map and passed by parameter; no component
// reads ambient process state after this point.
type PlatformConfig struct {
	// Identity-relevant fields. Changing any of these changes the run hash.
	DataRoot               string   `validate:"required"`
	TargetDataframe        string   ``
	TargetColumn           string   ``
	TimeColumn             string   ``
	GroupColumn            string   ``
	SampleRows             int64    `validate:"gte=0"`
	TaskType               string   `validate:"oneof=classification regression forecasting clustering ranking survival anomaly multi_label multi_output"`
	TaskSubtype            string   ``
	RandomSeed             int64    ``
	ForecastHorizon        int64    ``
	EnableTimeSplit        bool     ``
	EnableRayTransforms    bool     ``
	EnableFeaturetools     bool     ``
	FTTargetEntity         string   ``
	FTMaxDepth             int64    `validate:"gte=0"`
	FTMaxFeatures          int64    `validate:"gte=0"`
	FTUseTimeIndex         bool     ``
	MaxFeatures            int64    `validate:"gt=0"`
	CorrelationThreshold   float64  `validate:"gt=0,lte=1"`
	MaxMissingRatio        float64  `validate:"gte=0,lte=1"`
	EnableLagFeatures      bool     ``
	LagPeriods             []int64  ``
	EnableRollingFeatures  bool     ``
	RollingWindows         []int64  ``
	AutoMLTimeBudget       int64    `validate:"gte=0"`
	ModelList              []string ``
	HandleImbalance        bool     ``
	ImbalanceStrategy      string   ``
	PrimaryMetric          string   ``
	RetrainFromModelURI    string   ``
	ModelFormat            string   `validate:"oneof=joblib onnx"`
	SplitStrategy          string   ``
	TrainSize              float64  `validate:"gt=0,lt=1"`
	CVFolds                int64    `validate:"gte=0"`
	StratifyBy             string   ``
	GroupSplitColumn       string   ``
	CanonicalizationVersion string  ``
	StrictDataFingerprint  bool     ``

	// Platform-only fields. These must never perturb run identity.
	PipelineRootURI     string `validate:"required"`
	CacheEnabled        bool   ``
	CacheVersion        string ``
	ForceRerun          bool   ``
	FingerprintAttempts int64  `validate:"gte=1"`
	FingerprintBaseMS   int64  `validate:"gte=0"`
	FingerprintMaxMS    int64  `validate:"gte=0"`
	FingerprintChunk    int64  `validate:"gt=0"`
	LedgerURL           string ``
	MetricsAddr         string ``
	TenantID            string ``
	ProjectID           string ``
	RedactedEnvKeys     []string
	LogLevel            string ``
}

// FieldKind is the declared type of a configuration variable.
type FieldKind int

const (
	KindString FieldKind = iota
	KindBool
	KindInt
	KindFloat
	KindStringList
	KindIntList
)

// FieldSpec declares one configuration variable: its environment name,
// its type, and whether it participates in run identity. The ops pair
// gives typed write access during Load and typed read access during
// canonical projection, so both sides share one whitelist.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Identity bool
	ops      fieldOps
}

type fieldOps struct {
	assign func(cfg *PlatformConfig, v any) error
	value  func(cfg *PlatformConfig) any
}

// Fields is the fixed whitelist of declared configuration variables,
// partitioned by the Identity flag into the identity-relevant and the
// platform-only lists.
var Fields = []FieldSpec{
	{Name: "DATA_ROOT", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.DataRoot })},
	{Name: "TARGET_DATAFRAME", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.TargetDataframe })},
	{Name: "TARGET_COLUMN", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.TargetColumn })},
	{Name: "TIME_COLUMN", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.TimeColumn })},
	{Name: "GROUP_COLUMN", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.GroupColumn })},
	{Name: "SAMPLE_ROWS", Kind: KindInt, Identity: true, ops: intField(func(c *PlatformConfig) *int64 { return &c.SampleRows })},
	{Name: "TASK_TYPE", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.TaskType })},
	{Name: "TASK_SUBTYPE", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.TaskSubtype })},
	{Name: "RANDOM_SEED", Kind: KindInt, Identity: true, ops: intField(func(c *PlatformConfig) *int64 { return &c.RandomSeed })},
	{Name: "FORECAST_HORIZON", Kind: KindInt, Identity: true, ops: intField(func(c *PlatformConfig) *int64 { return &c.ForecastHorizon })},
	{Name: "ENABLE_TIME_SPLIT", Kind: KindBool, Identity: true, ops: boolField(func(c *PlatformConfig) *bool { return &c.EnableTimeSplit })},
	{Name: "ENABLE_RAY_TRANSFORMS", Kind: KindBool, Identity: true, ops: boolField(func(c *PlatformConfig) *bool { return &c.EnableRayTransforms })},
	{Name: "ENABLE_FEATURETOOLS", Kind: KindBool, Identity: true, ops: boolField(func(c *PlatformConfig) *bool { return &c.EnableFeaturetools })},
	{Name: "FT_TARGET_ENTITY", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.FTTargetEntity })},
	{Name: "FT_MAX_DEPTH", Kind: KindInt, Identity: true, ops: intField(func(c *PlatformConfig) *int64 { return &c.FTMaxDepth })},
	{Name: "FT_MAX_FEATURES", Kind: KindInt, Identity: true, ops: intField(func(c *PlatformConfig) *int64 { return &c.FTMaxFeatures })},
	{Name: "FT_USE_TIME_INDEX", Kind: KindBool, Identity: true, ops: boolField(func(c *PlatformConfig) *bool { return &c.FTUseTimeIndex })},
	{Name: "MAX_FEATURES", Kind: KindInt, Identity: true, ops: intField(func(c *PlatformConfig) *int64 { return &c.MaxFeatures })},
	{Name: "CORRELATION_THRESHOLD", Kind: KindFloat, Identity: true, ops: floatField(func(c *PlatformConfig) *float64 { return &c.CorrelationThreshold })},
	{Name: "MAX_MISSING_RATIO", Kind: KindFloat, Identity: true, ops: floatField(func(c *PlatformConfig) *float64 { return &c.MaxMissingRatio })},
	{Name: "ENABLE_LAG_FEATURES", Kind: KindBool, Identity: true, ops: boolField(func(c *PlatformConfig) *bool { return &c.EnableLagFeatures })},
	{Name: "LAG_PERIODS", Kind: KindIntList, Identity: true, ops: intListField(func(c *PlatformConfig) *[]int64 { return &c.LagPeriods })},
	{Name: "ENABLE_ROLLING_FEATURES", Kind: KindBool, Identity: true, ops: boolField(func(c *PlatformConfig) *bool { return &c.EnableRollingFeatures })},
	{Name: "ROLLING_WINDOWS", Kind: KindIntList, Identity: true, ops: intListField(func(c *PlatformConfig) *[]int64 { return &c.RollingWindows })},
	{Name: "AUTOML_TIME_BUDGET", Kind: KindInt, Identity: true, ops: intField(func(c *PlatformConfig) *int64 { return &c.AutoMLTimeBudget })},
	{Name: "MODEL_LIST", Kind: KindStringList, Identity: true, ops: stringListField(func(c *PlatformConfig) *[]string { return &c.ModelList })},
	{Name: "HANDLE_IMBALANCE", Kind: KindBool, Identity: true, ops: boolField(func(c *PlatformConfig) *bool { return &c.HandleImbalance })},
	{Name: "IMBALANCE_STRATEGY", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.ImbalanceStrategy })},
	{Name: "PRIMARY_METRIC", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.PrimaryMetric })},
	{Name: "RETRAIN_FROM_MODEL_URI", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.RetrainFromModelURI })},
	{Name: "MODEL_FORMAT", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.ModelFormat })},
	{Name: "SPLIT_STRATEGY", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.SplitStrategy })},
	{Name: "TRAIN_SIZE", Kind: KindFloat, Identity: true, ops: floatField(func(c *PlatformConfig) *float64 { return &c.TrainSize })},
	{Name: "CV_FOLDS", Kind: KindInt, Identity: true, ops: intField(func(c *PlatformConfig) *int64 { return &c.CVFolds })},
	{Name: "STRATIFY_BY", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.StratifyBy })},
	{Name: "GROUP_SPLIT_COLUMN", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.GroupSplitColumn })},
	{Name: "CANONICALIZATION_VERSION", Kind: KindString, Identity: true, ops: stringField(func(c *PlatformConfig) *string { return &c.CanonicalizationVersion })},
	{Name: "STRICT_DATA_FINGERPRINT", Kind: KindBool, Identity: true, ops: boolField(func(c *PlatformConfig) *bool { return &c.StrictDataFingerprint })},

	{Name: "PIPELINE_ROOT_URI", Kind: KindString, Identity: false, ops: stringField(func(c *PlatformConfig) *string { return &c.PipelineRootURI })},
	{Name: "CACHE_ENABLED", Kind: KindBool, Identity: false, ops: boolField(func(c *PlatformConfig) *bool { return &c.CacheEnabled })},
	{Name: "CACHE_VERSION", Kind: KindString, Identity: false, ops: stringField(func(c *PlatformConfig) *string { return &c.CacheVersion })},
	{Name: "FORCE_RERUN", Kind: KindBool, Identity: false, ops: boolField(func(c *PlatformConfig) *bool { return &c.ForceRerun })},
	{Name: "FINGERPRINT_ATTEMPTS", Kind: KindInt, Identity: false, ops: intField(func(c *PlatformConfig) *int64 { return &c.FingerprintAttempts })},
	{Name: "FINGERPRINT_BASE_DELAY_MS", Kind: KindInt, Identity: false, ops: intField(func(c *PlatformConfig) *int64 { return &c.FingerprintBaseMS })},
	{Name: "FINGERPRINT_MAX_DELAY_MS", Kind: KindInt, Identity: false, ops: intField(func(c *PlatformConfig) *int64 { return &c.FingerprintMaxMS })},
	{Name: "FINGERPRINT_CHUNK_BYTES", Kind: KindInt, Identity: false, ops: intField(func(c *PlatformConfig) *int64 { return &c.FingerprintChunk })},
	{Name: "LEDGER_URL", Kind: KindString, Identity: false, ops: stringField(func(c *PlatformConfig) *string { return &c.LedgerURL })},
	{Name: "METRICS_ADDR", Kind: KindString, Identity: false, ops: stringField(func(c *PlatformConfig) *string { return &c.MetricsAddr })},
	{Name: "TENANT_ID", Kind: KindString, Identity: false, ops: stringField(func(c *PlatformConfig) *string { return &c.TenantID })},
	{Name: "PROJECT_ID", Kind: KindString, Identity: false, ops: stringField(func(c *PlatformConfig) *string { return &c.ProjectID })},
	{Name: "REDACTED_ENV_KEYS", Kind: KindStringList, Identity: false, ops: stringListField(func(c *PlatformConfig) *[]string { return &c.RedactedEnvKeys })},
	{Name: "LOG_LEVEL", Kind: KindString, Identity: false, ops: stringField(func(c *PlatformConfig) *string { return &c.LogLevel })},
}

// Defaults returns a PlatformConfig with every field at its declared default.
func Defaults() PlatformConfig {
	return PlatformConfig{
		TaskType:                "classification",
		ForecastHorizon:         1,
		RandomSeed:              42,
		EnableRayTransforms:     true,
		FTMaxDepth:              2,
		FTMaxFeatures:           500,
		FTUseTimeIndex:          true,
		MaxFeatures:             1000,
		CorrelationThreshold:    0.95,
		MaxMissingRatio:         0.8,
		ImbalanceStrategy:       "auto",
		ModelFormat:             "joblib",
		SplitStrategy:           "auto",
		TrainSize:               0.8,
		CVFolds:                 5,
		CanonicalizationVersion: "1.0.0",
		StrictDataFingerprint:   true,

		CacheEnabled:        true,
		CacheVersion:        "v1",
		FingerprintAttempts: 3,
		FingerprintBaseMS:   500,
		FingerprintMaxMS:    5000,
		FingerprintChunk:    8 * 1024 * 1024,
		TenantID:            "default",
		ProjectID:           "default",
		RedactedEnvKeys: []string{
			"AWS_SECRET_ACCESS_KEY",
			"AZURE_CLIENT_SECRET",
			"GOOGLE_APPLICATION_CREDENTIALS",
		},
		LogLevel: "info",
	}
}

// Load builds a validated PlatformConfig from an explicit environment map.
// Each declared field is normalized with NormalizeScalar and then converted
// to its declared type; a value that does not fit the declared type is a
// ValidationError, never a silent guess.
func Load(env map[string]string) (*PlatformConfig, error) {
	cfg := Defaults()
	for _, f := range Fields {
		raw, ok := env[f.Name]
		if !ok {
			continue
		}
		v := NormalizeScalar(&raw)
		if v == nil {
			continue
		}
		if err := f.ops.assign(&cfg, v); err != nil {
			return nil, &ValidationError{Field: f.Name, Message: err.Error()}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var structValidator = validator.New()

// Validate applies per-field rules and the cross-field checks the typed
// schema cannot express with tags alone.
func (c *PlatformConfig) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if ok := asValidationErrors(err, &invalid); ok && len(invalid) > 0 {
			first := invalid[0]
			return &ValidationError{
				Field:   first.StructField(),
				Message: fmt.Sprintf("failed %q rule (value %v)", first.Tag(), first.Value()),
			}
		}
		return &ValidationError{Field: "(struct)", Message: err.Error()}
	}

	switch c.TaskType {
	case "classification", "regression":
		if c.TargetColumn == "" {
			return &ValidationError{Field: "TARGET_COLUMN", Message: "required for supervised tasks"}
		}
	case "forecasting":
		if c.TimeColumn == "" && !c.EnableTimeSplit {
			return &ValidationError{Field: "TIME_COLUMN", Message: "forecasting requires TIME_COLUMN or ENABLE_TIME_SPLIT"}
		}
		if c.ForecastHorizon <= 0 {
			return &ValidationError{Field: "FORECAST_HORIZON", Message: "must be > 0 for forecasting"}
		}
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// RetryPolicy builds the storage retry policy from the declared
// fingerprint knobs. Unset knobs keep the storage defaults. Every
// fingerprinting entry point goes through this so the declared values are
// never silently ignored.
func (c *PlatformConfig) RetryPolicy() storage.RetryPolicy {
	p := storage.DefaultRetryPolicy()
	if c.FingerprintAttempts > 0 {
		p.Attempts = int(c.FingerprintAttempts)
	}
	if c.FingerprintBaseMS > 0 {
		p.BaseDelay = time.Duration(c.FingerprintBaseMS) * time.Millisecond
	}
	if c.FingerprintMaxMS > 0 {
		p.MaxDelay = time.Duration(c.FingerprintMaxMS) * time.Millisecond
	}
	return p
}

// Environ converts a process environment slice ("K=V" entries) into the
// explicit map Load consumes. Built once at entry and passed by parameter.
func Environ(entries []string) map[string]string {
	env := make(map[string]string, len(entries))
	for _, e := range entries {
		if i := strings.IndexByte(e, '='); i > 0 {
			env[e[:i]] = e[i+1:]
		}
	}
	return env
}

func stringField(field func(*PlatformConfig) *string) fieldOps {
	return fieldOps{
		assign: func(c *PlatformConfig, v any) error {
			switch t := v.(type) {
			case string:
				*field(c) = t
			case bool:
				// Tokens like "yes" normalize to bool; a string field takes
				// the canonical spelling so the round trip stays stable.
				*field(c) = strconv.FormatBool(t)
			case int64:
				*field(c) = strconv.FormatInt(t, 10)
			case float64:
				*field(c) = formatFloat(t)
			default:
				return fmt.Errorf("expected scalar, got %T", v)
			}
			return nil
		},
		value: func(c *PlatformConfig) any {
			if s := *field(c); s != "" {
				return s
			}
			return nil
		},
	}
}

func boolField(field func(*PlatformConfig) *bool) fieldOps {
	return fieldOps{
		assign: func(c *PlatformConfig, v any) error {
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("expected boolean, got %T (%v)", v, v)
			}
			*field(c) = b
			return nil
		},
		value: func(c *PlatformConfig) any { return *field(c) },
	}
}

func intField(field func(*PlatformConfig) *int64) fieldOps {
	return fieldOps{
		assign: func(c *PlatformConfig, v any) error {
			n, ok := v.(int64)
			if !ok {
				return fmt.Errorf("expected integer, got %T (%v)", v, v)
			}
			*field(c) = n
			return nil
		},
		value: func(c *PlatformConfig) any { return *field(c) },
	}
}

func floatField(field func(*PlatformConfig) *float64) fieldOps {
	return fieldOps{
		assign: func(c *PlatformConfig, v any) error {
			switch t := v.(type) {
			case float64:
				*field(c) = t
			case int64:
				*field(c) = float64(t)
			default:
				return fmt.Errorf("expected number, got %T (%v)", v, v)
			}
			return nil
		},
		value: func(c *PlatformConfig) any { return *field(c) },
	}
}

func stringListField(field func(*PlatformConfig) *[]string) fieldOps {
	return fieldOps{
		assign: func(c *PlatformConfig, v any) error {
			switch t := v.(type) {
			case []string:
				*field(c) = t
			case string:
				*field(c) = []string{t}
			default:
				return fmt.Errorf("expected list, got %T (%v)", v, v)
			}
			return nil
		},
		value: func(c *PlatformConfig) any {
			if l := *field(c); len(l) > 0 {
				return l
			}
			return nil
		},
	}
}

func intListField(field func(*PlatformConfig) *[]int64) fieldOps {
	return fieldOps{
		assign: func(c *PlatformConfig, v any) error {
			var items []string
			switch t := v.(type) {
			case []string:
				items = t
			case int64:
				*field(c) = []int64{t}
				return nil
			default:
				return fmt.Errorf("expected list of integers, got %T (%v)", v, v)
			}
			out := make([]int64, 0, len(items))
			for _, item := range items {
				n, err := parseIntItem(item)
				if err != nil {
					return err
				}
				out = append(out, n)
			}
			*field(c) = out
			return nil
		},
		value: func(c *PlatformConfig) any {
			if l := *field(c); len(l) > 0 {
				return l
			}
			return nil
		},
	}
}

func parseIntItem(s string) (int64, error) {
	if !intPattern.MatchString(s) {
		return 0, fmt.Errorf("list item %q is not an integer", s)
	}
	return strconv.ParseInt(s, 10, 64)
}
