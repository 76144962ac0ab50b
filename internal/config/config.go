// Package config loads runtime configuration for pdf2html-agent from
// environment variables, with an optional JSON overlay file for repeatable
// local runs. This generalizes the teacher's Config struct + Default*
// constants + env-override pattern, dropping the license/device-binding
// machinery that has no SPEC_FULL.md component to serve.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// AppName names the config directory under the user's home.
	AppName = "pdf2html-agent"

	// DefaultDPI is the rasterization resolution (spec §4.1).
	DefaultDPI = 300
	// DefaultTargetScore is the composite score a page must clear to be accepted.
	DefaultTargetScore = 85
	// DefaultMaxRetries bounds the number of refinement iterations per page.
	DefaultMaxRetries = 5
	// DefaultAnalyzerSampleSize is how many pages the Analyzer samples (spec §4.2, K=3).
	DefaultAnalyzerSampleSize = 3
	// DefaultJudgeWeightA/B are the MultiJudge cross-model weighted-combination defaults.
	DefaultJudgeWeightA = 0.5
	DefaultJudgeWeightB = 0.5
	// DefaultRenderWidthPx/HeightPx is the Renderer's fixed viewport (spec §4.4).
	DefaultRenderWidthPx  = 1200
	DefaultRenderHeightPx = 1600
	// DefaultRenderTimeoutSeconds bounds each Renderer navigation/wait step.
	DefaultRenderTimeoutSeconds = 30
	// DefaultBaseRetryDelayMillis and DefaultProviderMaxRetries govern
	// TransientProviderError backoff (grounded in the teacher's batch_translator.go
	// BaseRetryDelay/DefaultMaxRetries constants).
	DefaultBaseRetryDelayMillis = 500
	DefaultProviderMaxRetries   = 3

	envGeneratorAPIKey    = "PDF2HTML_GENERATOR_API_KEY"
	envGeneratorBaseURL   = "PDF2HTML_GENERATOR_BASE_URL"
	envGeneratorModel     = "PDF2HTML_GENERATOR_MODEL"
	envJudgeAAPIKey       = "PDF2HTML_JUDGE_A_API_KEY"
	envJudgeABaseURL      = "PDF2HTML_JUDGE_A_BASE_URL"
	envJudgeAModel        = "PDF2HTML_JUDGE_A_MODEL"
	envJudgeBAPIKey       = "PDF2HTML_JUDGE_B_API_KEY"
	envJudgeBBaseURL      = "PDF2HTML_JUDGE_B_BASE_URL"
	envJudgeBModel        = "PDF2HTML_JUDGE_B_MODEL"
	envEnableCrossJudge   = "PDF2HTML_ENABLE_CROSS_JUDGE"
	envEnableEquationSpec = "PDF2HTML_ENABLE_EQUATION_SPECIALIST"
	envEnableVerifyGate   = "PDF2HTML_ENABLE_VERIFICATION_GATE"
	envJudgeWeightA       = "PDF2HTML_JUDGE_WEIGHT_A"
	envJudgeWeightB       = "PDF2HTML_JUDGE_WEIGHT_B"
	envEquationWeight     = "PDF2HTML_EQUATION_WEIGHT"
	envDPI                = "PDF2HTML_DPI"
	envTargetScore        = "PDF2HTML_TARGET_SCORE"
	envMaxRetries         = "PDF2HTML_MAX_RETRIES"
)

// ProviderCredential is one model provider's connection info.
type ProviderCredential struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

func (p ProviderCredential) empty() bool { return p.APIKey == "" }

// Config is the fully-resolved runtime configuration.
type Config struct {
	Generator ProviderCredential `json:"generator"`
	JudgeA    ProviderCredential `json:"judge_a"`
	JudgeB    ProviderCredential `json:"judge_b"`

	EnableCrossJudge       bool `json:"enable_cross_judge"`
	EnableEquationSpecialist bool `json:"enable_equation_specialist"`
	EnableVerificationGate bool `json:"enable_verification_gate"`

	JudgeWeightA float64 `json:"judge_weight_a"`
	JudgeWeightB float64 `json:"judge_weight_b"`

	DPI          int `json:"dpi"`
	TargetScore  int `json:"target_score"`
	MaxRetries   int `json:"max_retries"`

	AnalyzerSampleSize int `json:"analyzer_sample_size"`

	RenderWidthPx        int `json:"render_width_px"`
	RenderHeightPx       int `json:"render_height_px"`
	RenderTimeoutSeconds int `json:"render_timeout_seconds"`

	BaseRetryDelayMillis int `json:"base_retry_delay_millis"`
	ProviderMaxRetries   int `json:"provider_max_retries"`
}

// Default returns the conservative defaults before env/file overrides.
func Default() Config {
	return Config{
		EnableCrossJudge:         false,
		EnableEquationSpecialist: true,
		EnableVerificationGate:   true,
		JudgeWeightA:             DefaultJudgeWeightA,
		JudgeWeightB:             DefaultJudgeWeightB,
		DPI:                      DefaultDPI,
		TargetScore:              DefaultTargetScore,
		MaxRetries:               DefaultMaxRetries,
		AnalyzerSampleSize:       DefaultAnalyzerSampleSize,
		RenderWidthPx:            DefaultRenderWidthPx,
		RenderHeightPx:           DefaultRenderHeightPx,
		RenderTimeoutSeconds:     DefaultRenderTimeoutSeconds,
		BaseRetryDelayMillis:     DefaultBaseRetryDelayMillis,
		ProviderMaxRetries:       DefaultProviderMaxRetries,
	}
}

// OverlayPath returns ~/.config/pdf2html-agent/config.json.
func OverlayPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName, "config.json"), nil
}

// Load resolves configuration in precedence order: defaults, then the
// optional JSON overlay file (if present), then environment variables
// (§10.3: "env vars win when both are set").
func Load() (Config, error) {
	cfg := Default()

	if path, err := OverlayPath(); err == nil {
		if data, readErr := os.ReadFile(path); readErr == nil {
			if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
				return Config{}, fmt.Errorf("config: parse overlay %s: %w", path, jsonErr)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envGeneratorAPIKey); v != "" {
		cfg.Generator.APIKey = v
	}
	if v := os.Getenv(envGeneratorBaseURL); v != "" {
		cfg.Generator.BaseURL = v
	}
	if v := os.Getenv(envGeneratorModel); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv(envJudgeAAPIKey); v != "" {
		cfg.JudgeA.APIKey = v
	}
	if v := os.Getenv(envJudgeABaseURL); v != "" {
		cfg.JudgeA.BaseURL = v
	}
	if v := os.Getenv(envJudgeAModel); v != "" {
		cfg.JudgeA.Model = v
	}
	if v := os.Getenv(envJudgeBAPIKey); v != "" {
		cfg.JudgeB.APIKey = v
	}
	if v := os.Getenv(envJudgeBBaseURL); v != "" {
		cfg.JudgeB.BaseURL = v
	}
	if v := os.Getenv(envJudgeBModel); v != "" {
		cfg.JudgeB.Model = v
	}
	if v, ok := boolEnv(envEnableCrossJudge); ok {
		cfg.EnableCrossJudge = v
	}
	if v, ok := boolEnv(envEnableEquationSpec); ok {
		cfg.EnableEquationSpecialist = v
	}
	if v, ok := boolEnv(envEnableVerifyGate); ok {
		cfg.EnableVerificationGate = v
	}
	if v, ok := floatEnv(envJudgeWeightA); ok {
		cfg.JudgeWeightA = v
	}
	if v, ok := floatEnv(envJudgeWeightB); ok {
		cfg.JudgeWeightB = v
	}
	if v, ok := intEnv(envDPI); ok {
		cfg.DPI = v
	}
	if v, ok := intEnv(envTargetScore); ok {
		cfg.TargetScore = v
	}
	if v, ok := intEnv(envMaxRetries); ok {
		cfg.MaxRetries = v
	}
}

func boolEnv(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func floatEnv(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func intEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the resolved configuration for internal consistency.
// Per SPEC_FULL §13.2, EQUATION_WEIGHT is deliberately not a recognized
// key: the composite formula's embedded 0.15 coefficient is the single
// source of truth for equation emphasis, so a stray EQUATION_WEIGHT env
// var is rejected rather than silently ignored.
func (c Config) Validate() error {
	if c.Generator.empty() {
		return fmt.Errorf("config: at least one generator credential is required (%s)", envGeneratorAPIKey)
	}
	if c.EnableCrossJudge && (c.JudgeA.empty() || c.JudgeB.empty()) {
		return fmt.Errorf("config: cross-model judging enabled but judge_a/judge_b credentials are incomplete")
	}
	if c.JudgeWeightA+c.JudgeWeightB <= 0 {
		return fmt.Errorf("config: judge weights must sum to a positive value")
	}
	if c.DPI <= 0 {
		return fmt.Errorf("config: dpi must be positive")
	}
	if c.TargetScore < 0 || c.TargetScore > 100 {
		return fmt.Errorf("config: target_score must be within [0,100]")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("config: max_retries must be >= 1")
	}
	if _, set := os.LookupEnv(envEquationWeight); set {
		return fmt.Errorf("config: %s is not supported; equation emphasis is fixed by the composite formula (see SPEC_FULL §13.2)", envEquationWeight)
	}
	return nil
}
