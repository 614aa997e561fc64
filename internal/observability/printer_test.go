package observability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintIdentity(t *testing.T) {
	var sb strings.Builder
	p := NewPrinter(&sb)

	p.PrintIdentity(&IdentitySummary{
		RunID:          "abababababab",
		FullConfigHash: "ab12",
		ArtifactRoot:   "/artifacts/ml8s_training_runs/abababababab",
	})

	out := sb.String()
	assert.Contains(t, out, "RUN IDENTITY")
	assert.Contains(t, out, "abababababab")
	assert.Contains(t, out, "Fingerprint:   (none)")
}

func TestPrintIdentityNilIsNoop(t *testing.T) {
	var sb strings.Builder
	NewPrinter(&sb).PrintIdentity(nil)
	assert.Empty(t, sb.String())
}

func TestPrintFingerprintAuditTruncatesList(t *testing.T) {
	var sb strings.Builder
	p := NewPrinter(&sb)

	tokens := make([]TokenLine, 12)
	for i := range tokens {
		tokens[i] = TokenLine{Path: "data/file.csv", Strategy: "sha256", Size: 10}
	}
	p.PrintFingerprintAudit("cd34", tokens)

	out := sb.String()
	assert.Contains(t, out, "DATA FINGERPRINT")
	assert.Contains(t, out, "... and 4 more files")
}

func TestPrintFingerprintAuditEmptyIsNoop(t *testing.T) {
	var sb strings.Builder
	NewPrinter(&sb).PrintFingerprintAudit("cd34", nil)
	assert.Empty(t, sb.String())
}

func TestPrintGateDecision(t *testing.T) {
	var sb strings.Builder
	p := NewPrinter(&sb)

	p.PrintGateDecision(DecisionValid, true, "valid cached run")
	assert.Contains(t, sb.String(), "VALID CACHED RUN")

	sb.Reset()
	p.PrintGateDecision(DecisionStale, false, "hash mismatch")
	out := sb.String()
	assert.Contains(t, out, "IDEMPOTENCE GATE")
	assert.Contains(t, out, "stale_prior_run")
	assert.Contains(t, out, "Proceeding with fresh run")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("WARNING").String())
	assert.Equal(t, "error", parseLevel("error").String())
	assert.Equal(t, "info", parseLevel("").String())
	assert.Equal(t, "info", parseLevel("bogus").String())
}
