package main

import (
	"errors"
	"time"

	"github.com/theimaginaryfoundation/deep-dive/analysis"
	"github.com/theimaginaryfoundation/deep-dive/analysis/provider"
)

type Config struct {
	PastePath  string
	ImagePaths []string
	FramesPath string

	OCREndpoint string
	OCRKey      string
	OCRParallel int

	ConversationID string
	SpeakersDB     string
	ColorMapping   string

	ContextPath      string
	UserName         string
	OtherName        string
	OtherPronoun     string
	Archetype        string
	ConfidenceRemark string
	RedFlags         []string
	Mode             string

	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int

	OutPath string
	Pretty  bool
	Verbose bool
}

func (c Config) Validate() error {
	inputs := 0
	if c.PastePath != "" {
		inputs++
	}
	if len(c.ImagePaths) > 0 {
		inputs++
	}
	if c.FramesPath != "" {
		inputs++
	}
	if inputs == 0 {
		return errors.New("missing input: pass one of -paste, -images or -frames")
	}
	if inputs > 1 {
		return errors.New("-paste, -images and -frames are mutually exclusive")
	}
	if len(c.ImagePaths) > 0 && c.OCREndpoint == "" {
		return errors.New("-images requires -ocr-endpoint (or OCR_ENDPOINT)")
	}
	if c.ConversationID != "" && !analysis.ValidConversationID(c.ConversationID) {
		return errors.New("-id may only contain letters, digits, '-' and '_'")
	}
	if c.SpeakersDB != "" && c.ConversationID == "" {
		return errors.New("-speakers-db requires -id")
	}
	if c.Mode != "" && c.Mode != string(analysis.ModeFull) && c.Mode != string(analysis.ModeLite) {
		return errors.New("mode must be full or lite")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return errors.New("max-tokens must be >= 0")
	}
	if c.OCRParallel < 0 {
		return errors.New("ocr-parallel must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Mode:        string(analysis.ModeFull),
		Timeout:     provider.DefaultTimeout,
		Temperature: 0.7,
		MaxTokens:   1500,
		OCRParallel: 4,
	}
}
