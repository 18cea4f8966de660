package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/deep-dive/analysis"
	"github.com/theimaginaryfoundation/deep-dive/analysis/fileutils"
	"github.com/theimaginaryfoundation/deep-dive/analysis/ocr"
	"github.com/theimaginaryfoundation/deep-dive/analysis/provider"
	"github.com/theimaginaryfoundation/deep-dive/analysis/sqlitestore"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	creds := credentials(cfg.APIKey, os.Getenv)
	if len(creds) == 0 {
		fmt.Fprintln(os.Stderr, "missing ANTHROPIC_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	actx, err := analysisContext(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	payload, err := buildPayload(ctx, cfg, logger)
	var perr *analysis.Error
	if errors.As(err, &perr) {
		// Normalization rejections are part of the outcome contract.
		if werr := writeOutcome(cfg.OutPath, analysis.ToOutcome(nil, err), cfg.Pretty, os.Stdout); werr != nil {
			fmt.Fprintln(os.Stderr, werr.Error())
		}
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	fb := &analysis.Fallback{
		Base: analysis.Pipeline{
			Guardrails:  analysis.DefaultGuardrails(),
			Logger:      logger,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
		Options:     modelOptions(cfg.Model, creds),
		Credentials: creds,
		Timeout:     cfg.Timeout,
	}
	res, err := fb.DeepDive(ctx, &payload, actx)
	if err != nil {
		logger.Info("deep dive failed", zap.String("payload_id", payload.ID), zap.String("kind", string(analysis.KindOf(err))), zap.Error(err))
	}
	out := analysis.ToOutcome(res, err)

	if err := writeOutcome(cfg.OutPath, out, cfg.Pretty, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if !out.OK {
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	var images, redFlags string
	fs.StringVar(&cfg.PastePath, "paste", "", "Path to a pasted transcript text file ('-' reads stdin)")
	fs.StringVar(&images, "images", "", "Comma-separated screenshot paths to send through OCR, in order")
	fs.StringVar(&cfg.FramesPath, "frames", "", "Path to a JSON array of already-recognized frames [{text, confidence}]")
	fs.StringVar(&cfg.OCREndpoint, "ocr-endpoint", os.Getenv("OCR_ENDPOINT"), "OCR service URL (default: OCR_ENDPOINT env var)")
	fs.StringVar(&cfg.OCRKey, "ocr-key", "", "OCR service key (overrides OCR_API_KEY env var)")
	fs.IntVar(&cfg.OCRParallel, "ocr-parallel", cfg.OCRParallel, "Max concurrent OCR requests (0 = one per image)")
	fs.StringVar(&cfg.ConversationID, "id", "", "Conversation id (default: random UUID)")
	fs.StringVar(&cfg.SpeakersDB, "speakers-db", "", "Optional SQLite speaker-map cache; a saved map for -id overrides -colors")
	fs.StringVar(&cfg.ColorMapping, "colors", "", `Speaker colour mapping, e.g. "blue=Sam, grey=Alex"`)
	fs.StringVar(&cfg.ContextPath, "context", "", "Optional YAML file with the analysis context (flags override its fields)")
	fs.StringVar(&cfg.UserName, "user", "", "The user's display name")
	fs.StringVar(&cfg.OtherName, "other", "", "The other person's display name")
	fs.StringVar(&cfg.OtherPronoun, "pronoun", "", "The other person's pronouns, e.g. she/her (default: they/them)")
	fs.StringVar(&cfg.Archetype, "archetype", "", "Archetype label from the upstream classification pass")
	fs.StringVar(&cfg.ConfidenceRemark, "confidence-remark", "", "Free-text confidence remark from the upstream pass")
	fs.StringVar(&redFlags, "red-flags", "", "Comma-separated red flags already noted upstream")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Analysis mode: full or lite (lite omits the next-move script)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "Provider API key; its shape selects the provider (overrides env vars)")
	fs.StringVar(&cfg.Model, "model", "", "Model override for the selected provider")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Hard per-call generation timeout")
	fs.Float64Var(&cfg.Temperature, "temperature", cfg.Temperature, "Sampling temperature")
	fs.IntVar(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "Max output tokens")
	fs.StringVar(&cfg.OutPath, "out", "", "Write the outcome JSON here instead of stdout")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the outcome JSON")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Debug logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.ImagePaths = splitList(images)
	cfg.RedFlags = splitList(redFlags)
	if cfg.OCRKey == "" {
		cfg.OCRKey = os.Getenv("OCR_API_KEY")
	}
	if cfg.PastePath != "" && cfg.PastePath != "-" {
		cfg.PastePath = filepath.Clean(cfg.PastePath)
	}
	if cfg.FramesPath != "" {
		cfg.FramesPath = filepath.Clean(cfg.FramesPath)
	}
	if cfg.OutPath != "" {
		cfg.OutPath = filepath.Clean(cfg.OutPath)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

var credentialEnv = []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"}

// credentials lists the explicit key first, then env keys in provider priority order.
func credentials(explicit string, getenv func(string) string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
	}
	add(explicit)
	for _, name := range credentialEnv {
		add(getenv(name))
	}
	return out
}

// modelOptions applies -model to the provider the first credential selects.
func modelOptions(model string, creds []string) provider.Options {
	opts := provider.Options{}
	if strings.TrimSpace(model) == "" || len(creds) == 0 {
		return opts
	}
	if rule, ok := provider.Detect(provider.DefaultRules, creds[0]); ok {
		opts.Models = map[string]string{rule.Name: model}
	}
	return opts
}

func analysisContext(cfg Config) (analysis.AnalysisContext, error) {
	var actx analysis.AnalysisContext
	if cfg.ContextPath != "" {
		b, err := os.ReadFile(cfg.ContextPath)
		if err != nil {
			return actx, fmt.Errorf("read -context: %w", err)
		}
		if err := yaml.Unmarshal(b, &actx); err != nil {
			return actx, fmt.Errorf("parse -context: %w", err)
		}
	}
	override := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	override(&actx.UserName, cfg.UserName)
	override(&actx.OtherName, cfg.OtherName)
	override(&actx.OtherPronoun, cfg.OtherPronoun)
	override(&actx.Archetype, cfg.Archetype)
	override(&actx.ConfidenceRemark, cfg.ConfidenceRemark)
	if len(cfg.RedFlags) > 0 {
		actx.RedFlags = cfg.RedFlags
	}
	if actx.RedFlagCount == 0 {
		actx.RedFlagCount = len(actx.RedFlags)
	}
	// -mode defaults to full, so only a non-default value overrides the file.
	if cfg.Mode != "" && (actx.Mode == "" || cfg.Mode != string(analysis.ModeFull)) {
		actx.Mode = analysis.Mode(cfg.Mode)
	}
	return actx, nil
}

func buildPayload(ctx context.Context, cfg Config, logger *zap.Logger) (analysis.ConversationPayload, error) {
	hints := analysis.SpeakerHints{
		UserName:     cfg.UserName,
		OtherName:    cfg.OtherName,
		ColorMapping: cfg.ColorMapping,
	}
	if cfg.SpeakersDB != "" {
		override, err := loadOverride(ctx, cfg.SpeakersDB, cfg.ConversationID, logger)
		if err != nil {
			return analysis.ConversationPayload{}, err
		}
		hints.Override = override
	}

	n := analysis.Normalizer{Logger: logger, MaxParallel: cfg.OCRParallel}
	if cfg.ConversationID != "" {
		id := cfg.ConversationID
		n.NewID = func() string { return id }
	}

	switch {
	case cfg.PastePath != "":
		text, err := readInput(cfg.PastePath, os.Stdin)
		if err != nil {
			return analysis.ConversationPayload{}, err
		}
		return n.NormalizePaste(text, hints)
	case cfg.FramesPath != "":
		frames, err := readFrames(cfg.FramesPath)
		if err != nil {
			return analysis.ConversationPayload{}, err
		}
		return n.NormalizeFrames(frames, hints)
	default:
		images, err := readImages(cfg.ImagePaths)
		if err != nil {
			return analysis.ConversationPayload{}, err
		}
		n.OCR = ocr.New(cfg.OCREndpoint, cfg.OCRKey)
		return n.NormalizeOCR(ctx, images, hints)
	}
}

func loadOverride(ctx context.Context, dbPath, id string, logger *zap.Logger) (analysis.SpeakerMap, error) {
	store, err := sqlitestore.Open(dbPath, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	m, err := store.Load(ctx, id)
	if errors.Is(err, analysis.ErrSpeakersNotFound) {
		return nil, nil
	}
	return m, err
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read -paste: %w", err)
	}
	return string(b), nil
}

func readFrames(path string) ([]analysis.OCRResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read -frames: %w", err)
	}
	var frames []analysis.OCRResult
	if err := json.Unmarshal(b, &frames); err != nil {
		return nil, fmt.Errorf("parse -frames: %w", err)
	}
	return frames, nil
}

func readImages(paths []string) ([]analysis.Image, error) {
	images := make([]analysis.Image, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", p, err)
		}
		images = append(images, analysis.Image{Name: filepath.Base(p), MIMEType: mimeForExt(p), Data: b})
	}
	return images, nil
}

func mimeForExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	}
	return ""
}

func writeOutcome(path string, out analysis.Outcome, pretty bool, stdout io.Writer) error {
	if path != "" {
		return fileutils.WriteJSONFileAtomic(path, out, pretty)
	}
	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
