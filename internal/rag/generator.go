package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taleemlabs/taleemd/internal/worker"
)

// Sentinel errors for generation.
var (
	// ErrInvalidConfig indicates invalid generator configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGenerationFailed indicates the generation worker failed or
	// returned malformed output.
	ErrGenerationFailed = errors.New("generation failed")
)

// Generator produces an answer from a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationPayload is the JSON document handed to the generation worker.
type GenerationPayload struct {
	Prompt       string `json:"prompt"`
	MaxNewTokens int    `json:"max_new_tokens"`
}

// GenerationResult is the JSON document the generation worker writes to
// stdout: GeneratedText on success, Error otherwise.
type GenerationResult struct {
	GeneratedText string `json:"generated_text"`
	Error         string `json:"error,omitempty"`
}

// GeneratorConfig holds configuration for the worker-backed generator.
type GeneratorConfig struct {
	// WorkerPath is the generation worker binary.
	WorkerPath string `koanf:"worker_path"`

	// Timeout bounds a single generation call.
	// Default: 60s
	Timeout time.Duration `koanf:"timeout"`

	// MaxNewTokens caps the generated answer length.
	// Default: 256
	MaxNewTokens int `koanf:"max_new_tokens"`
}

// ApplyDefaults sets default values for unset fields.
func (c *GeneratorConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxNewTokens == 0 {
		c.MaxNewTokens = 256
	}
}

// Validate validates the configuration.
func (c *GeneratorConfig) Validate() error {
	if c.WorkerPath == "" {
		return fmt.Errorf("%w: worker path is required", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// WorkerGenerator runs each generation call in an isolated worker process.
// The model runtime lives entirely in the worker, so a crash there surfaces
// as an error here instead of taking the service down.
type WorkerGenerator struct {
	config GeneratorConfig
	runner worker.Runner
	logger *zap.Logger
}

// NewWorkerGenerator creates a generator that shells out to the configured
// worker binary.
func NewWorkerGenerator(config GeneratorConfig, logger *zap.Logger) (*WorkerGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &WorkerGenerator{
		config: config,
		runner: worker.ExecRunner{},
		logger: logger,
	}, nil
}

// Generate stages the prompt as a JSON payload file, invokes the worker,
// and parses its stdout.
func (g *WorkerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(GenerationPayload{
		Prompt:       prompt,
		MaxNewTokens: g.config.MaxNewTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding payload: %v", ErrGenerationFailed, err)
	}

	tmp, err := os.CreateTemp("", "genpayload_*.json")
	if err != nil {
		return "", fmt.Errorf("%w: staging payload: %v", ErrGenerationFailed, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: staging payload: %v", ErrGenerationFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: staging payload: %v", ErrGenerationFailed, err)
	}

	start := time.Now()
	stdout, err := g.runner.Run(ctx, g.config.Timeout, g.config.WorkerPath, tmp.Name())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var result GenerationResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(stdout))), &result); err != nil {
		return "", fmt.Errorf("%w: decoding worker output: %v", ErrGenerationFailed, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrGenerationFailed, result.Error)
	}
	if result.GeneratedText == "" {
		return "", fmt.Errorf("%w: worker returned empty response", ErrGenerationFailed)
	}

	g.logger.Debug("generation worker completed",
		zap.Duration("elapsed", time.Since(start)),
	)
	return strings.TrimSpace(result.GeneratedText), nil
}

var _ Generator = (*WorkerGenerator)(nil)

// DisabledGenerator is used when no generation worker is configured. Every
// call fails, which routes the engine to its extractive fallback answer.
type DisabledGenerator struct{}

func (DisabledGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("%w: no generation worker configured", ErrGenerationFailed)
}

var _ Generator = DisabledGenerator{}
