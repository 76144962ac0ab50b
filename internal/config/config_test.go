package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsInvalidWithoutGeneratorCredential(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "expected Validate to reject a config with no generator credential")
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	cfg := Default()
	cfg.Generator.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsCrossJudgeWithoutBothCredentials(t *testing.T) {
	cfg := Default()
	cfg.Generator.APIKey = "sk-test"
	cfg.EnableCrossJudge = true
	cfg.JudgeA.APIKey = "sk-a"
	require.Error(t, cfg.Validate(), "expected Validate to reject incomplete cross-judge credentials")
}

func TestValidateRejectsBadDPI(t *testing.T) {
	cfg := Default()
	cfg.Generator.APIKey = "sk-test"
	cfg.DPI = 0
	require.Error(t, cfg.Validate(), "expected Validate to reject non-positive dpi")
}

func TestValidateRejectsTargetScoreOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Generator.APIKey = "sk-test"
	cfg.TargetScore = 101
	require.Error(t, cfg.Validate(), "expected Validate to reject target_score > 100")
}

func TestValidateRejectsZeroMaxRetries(t *testing.T) {
	cfg := Default()
	cfg.Generator.APIKey = "sk-test"
	cfg.MaxRetries = 0
	require.Error(t, cfg.Validate(), "expected Validate to reject max_retries < 1")
}

func TestApplyEnvOverridesGeneratorAPIKey(t *testing.T) {
	t.Setenv(envGeneratorAPIKey, "sk-from-env")
	cfg := Default()
	applyEnvOverrides(&cfg)
	assert.Equal(t, "sk-from-env", cfg.Generator.APIKey)
}

func TestEquationWeightEnvIsRejected(t *testing.T) {
	t.Setenv(envEquationWeight, "0.5")
	cfg := Default()
	cfg.Generator.APIKey = "sk-test"
	require.Error(t, cfg.Validate(), "expected Validate to reject PDF2HTML_EQUATION_WEIGHT")
}
