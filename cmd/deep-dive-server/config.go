package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/deep-dive/analysis"
	"github.com/theimaginaryfoundation/deep-dive/analysis/provider"
)

// Config is the server's YAML configuration. Provider credentials only ever come from the environment.
type Config struct {
	Addr         string `yaml:"addr"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`

	// SpeakersDB selects the SQLite speaker cache; SpeakersDir the JSON-file one. SpeakersDB wins.
	SpeakersDB  string `yaml:"speakers_db"`
	SpeakersDir string `yaml:"speakers_dir"`

	OCR        OCRConfig                `yaml:"ocr"`
	LLM        LLMConfig                `yaml:"llm"`
	Guardrails analysis.GuardrailConfig `yaml:"guardrails"`

	Credentials []string `yaml:"-"`
}

type OCRConfig struct {
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"-"`
	MaxParallel int    `yaml:"max_parallel"`
}

type LLMConfig struct {
	Timeout      string            `yaml:"timeout"`
	Temperature  float64           `yaml:"temperature"`
	MaxTokens    int               `yaml:"max_tokens"`
	Models       map[string]string `yaml:"models"`
	BaseURLs     map[string]string `yaml:"base_urls"`
	HistoryTurns int               `yaml:"history_turns"`
}

func DefaultConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:8787",
		MaxBodyBytes: 20 << 20,
		OCR:          OCRConfig{MaxParallel: 4},
		LLM: LLMConfig{
			Timeout:     provider.DefaultTimeout.String(),
			Temperature: 0.7,
			MaxTokens:   1500,
		},
		Guardrails: analysis.DefaultGuardrails(),
	}
}

// Load reads path (a missing file means defaults) and applies environment overrides.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides(getenv)
	return cfg, nil
}

var credentialEnv = []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"}

func (c *Config) applyEnvOverrides(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("DEEP_DIVE_ADDR")); v != "" {
		c.Addr = v
	}
	if v := strings.TrimSpace(getenv("OCR_ENDPOINT")); v != "" {
		c.OCR.Endpoint = v
	}
	c.OCR.APIKey = strings.TrimSpace(getenv("OCR_API_KEY"))
	c.Credentials = nil
	for _, name := range credentialEnv {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			c.Credentials = append(c.Credentials, v)
		}
	}
}

func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return provider.DefaultTimeout
	}
	return d
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is empty")
	}
	if len(c.Credentials) == 0 {
		return errors.New("missing ANTHROPIC_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY")
	}
	if c.LLM.Timeout != "" {
		if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
			return fmt.Errorf("llm.timeout: %w", err)
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 0 || c.LLM.HistoryTurns < 0 {
		return errors.New("llm.max_tokens and llm.history_turns must be >= 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max_body_bytes must be > 0")
	}
	if c.Guardrails.MinConfidence < 0 || c.Guardrails.MinConfidence > 1 {
		return errors.New("guardrails.min_confidence must be between 0 and 1")
	}
	return nil
}
