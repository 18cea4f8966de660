package analysis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Image is one screenshot handed to the OCR collaborator.
type Image struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data"`
}

// OCRResult is what the OCR collaborator returns per image. Both fields are untrusted.
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer is the external OCR collaborator.
type Recognizer interface {
	Recognize(ctx context.Context, img Image) (OCRResult, error)
}

// Normalizer turns raw input into a ConversationPayload.
type Normalizer struct {
	OCR    Recognizer
	Logger *zap.Logger

	// MaxParallel bounds concurrent OCR calls (0 means one per image).
	MaxParallel int

	// NewID overrides payload id generation in tests.
	NewID func() string
}

func (n Normalizer) id() string {
	if n.NewID != nil {
		return n.NewID()
	}
	return uuid.NewString()
}

func (n Normalizer) logger() *zap.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return zap.NewNop()
}

// NormalizePaste builds a paste payload. Speaker lines are attributed later by the flattener.
func NormalizePaste(text string, hints SpeakerHints) (ConversationPayload, error) {
	return Normalizer{}.NormalizePaste(text, hints)
}

func (n Normalizer) NormalizePaste(text string, hints SpeakerHints) (ConversationPayload, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return ConversationPayload{}, ErrEmptyTranscript
	}
	speakers := BuildSpeakerMap(hints)
	if len(speakers.Names()) < 2 {
		for _, label := range DetectLabels(raw, 2) {
			if !speakers.HasName(label) {
				speakers[strings.ToLower(label)] = label
			}
		}
	}
	return ConversationPayload{
		ID:            n.id(),
		Source:        SourcePaste,
		RawText:       raw,
		ProcessedText: collapseWhitespace(raw),
		Speakers:      speakers,
	}, nil
}

// NormalizeOCR runs every image through the OCR collaborator and joins the frames in input order.
func (n Normalizer) NormalizeOCR(ctx context.Context, images []Image, hints SpeakerHints) (ConversationPayload, error) {
	if n.OCR == nil {
		return ConversationPayload{}, errors.New("NormalizeOCR: OCR collaborator is nil")
	}
	if len(images) == 0 {
		return ConversationPayload{}, ErrEmptyTranscript
	}

	results := make([]OCRResult, len(images))
	g, gctx := errgroup.WithContext(ctx)
	if n.MaxParallel > 0 {
		g.SetLimit(n.MaxParallel)
	}
	for i, img := range images {
		g.Go(func() error {
			res, err := n.OCR.Recognize(gctx, img)
			if err != nil {
				return fmt.Errorf("NormalizeOCR: frame %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ConversationPayload{}, err
	}

	p, err := n.assembleOCR(results, hints)
	if err != nil {
		return ConversationPayload{}, err
	}
	n.logger().Debug("normalized ocr payload",
		zap.String("payload_id", p.ID),
		zap.Int("frames", p.OCRMeta.FrameCount),
		zap.Float64("confidence", p.OCRMeta.Confidence),
		zap.Strings("colors", p.OCRMeta.DetectedColors),
	)
	return p, nil
}

// NormalizeFrames builds an OCR payload from frames that were already recognized.
func (n Normalizer) NormalizeFrames(frames []OCRResult, hints SpeakerHints) (ConversationPayload, error) {
	return n.assembleOCR(frames, hints)
}

func (n Normalizer) assembleOCR(frames []OCRResult, hints SpeakerHints) (ConversationPayload, error) {
	var b strings.Builder
	details := make([]FrameDetail, 0, len(frames))
	var sum float64
	for i, f := range frames {
		text := MarkTimestamps(strings.TrimSpace(f.Text))
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		start := b.Len()
		b.WriteString(text)
		details = append(details, FrameDetail{Index: i, Confidence: clamp01(f.Confidence), Start: start, End: b.Len()})
		sum += clamp01(f.Confidence)
	}
	raw := strings.TrimSpace(b.String())
	if raw == "" {
		return ConversationPayload{}, ErrEmptyTranscript
	}

	speakers := BuildSpeakerMap(hints)
	colors := DistinctColors(speakers, raw)
	meta := &OCRMeta{
		FrameCount:     len(frames),
		DetectedColors: colors,
		Confidence:     sum / float64(len(frames)),
		Frames:         details,
	}

	// Auto-naming from hints is not trusted until colours can tell the bubbles apart.
	hinted := strings.TrimSpace(hints.UserName) != "" || strings.TrimSpace(hints.OtherName) != ""
	needsConfirm := len(colors) < 2 && hinted && len(hints.Override) == 0

	return ConversationPayload{
		ID:                         n.id(),
		Source:                     SourceOCR,
		RawText:                    raw,
		ProcessedText:              collapseWhitespace(raw),
		Speakers:                   speakers,
		OCRMeta:                    meta,
		RequiresManualConfirmation: needsConfirm,
	}, nil
}

// ConfirmManualEdit returns a copy of p with a human's corrections applied and the confirmation flag cleared.
// An empty editedText keeps the current text.
func ConfirmManualEdit(p ConversationPayload, editedText string, speakers SpeakerMap) (ConversationPayload, error) {
	out := p
	if t := strings.TrimSpace(editedText); t != "" {
		if p.Source == SourceOCR {
			t = MarkTimestamps(t)
		}
		out.RawText = t
		out.ProcessedText = collapseWhitespace(t)
	}
	if strings.TrimSpace(out.RawText) == "" {
		return ConversationPayload{}, ErrEmptyTranscript
	}
	if len(speakers) > 0 {
		out.Speakers = BuildSpeakerMap(SpeakerHints{Override: speakers})
	} else {
		out.Speakers = p.Speakers.Clone()
	}
	if p.OCRMeta != nil {
		meta := *p.OCRMeta
		meta.ManuallyEdited = true
		meta.DetectedColors = DistinctColors(out.Speakers, out.RawText)
		out.OCRMeta = &meta
	}
	out.RequiresManualConfirmation = false
	return out, nil
}

var labelLine = regexp.MustCompile(`^\s*((?:` + tsOpen + `[^` + tsClose + `]*` + tsClose + `\s*)*)(\p{L}[\p{L}\p{N}.'_-]{0,24}(?: [\p{L}\p{N}.'_-]{1,24}){0,2})\s*:\s*(.*)$`)

// DetectLabels returns up to max of the most frequent "Label:" prefixes in text.
func DetectLabels(text string, max int) []string {
	counts := map[string]int{}
	first := map[string]int{}
	display := map[string]string{}
	for i, line := range strings.Split(text, "\n") {
		m := labelLine.FindStringSubmatch(line)
		if m == nil || strings.TrimSpace(m[3]) == "" {
			continue
		}
		label := strings.TrimSpace(m[2])
		key := strings.ToLower(label)
		if _, ok := first[key]; !ok {
			first[key] = i
			display[key] = label
		}
		counts[key]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return first[keys[i]] < first[keys[j]]
	})
	if max > 0 && len(keys) > max {
		keys = keys[:max]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = display[k]
	}
	return out
}

var (
	spaceRun = regexp.MustCompile(`[ \t\f\v]+`)
	breakRun = regexp.MustCompile(`\n{3,}`)
)

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = breakRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
