package analysis

// Source selects the downstream parsing strategy for a payload.
type Source string

const (
	SourceOCR   Source = "ocr"
	SourcePaste Source = "paste"
)

func (s Source) Valid() bool {
	return s == SourceOCR || s == SourcePaste
}

// ConversationPayload is the canonical unit passed through the pipeline.
type ConversationPayload struct {
	ID     string `json:"id"`
	Source Source `json:"source"`

	// RawText is the untouched paste, or the joined OCR frames with timestamp markers.
	// It is the only grounding source.
	RawText string `json:"raw_text"`

	// ProcessedText is a whitespace-collapsed copy used for on-screen highlighting only.
	ProcessedText string `json:"processed_text,omitempty"`

	Speakers SpeakerMap `json:"speakers"`
	OCRMeta  *OCRMeta   `json:"ocr_meta,omitempty"`

	RequiresManualConfirmation bool `json:"requires_manual_confirmation,omitempty"`
}

// OCRMeta is present only when Source is SourceOCR.
type OCRMeta struct {
	FrameCount     int           `json:"frame_count"`
	DetectedColors []string      `json:"detected_colors"`
	Confidence     float64       `json:"confidence"`
	Frames         []FrameDetail `json:"frames,omitempty"`

	// ManuallyEdited is set once a human has confirmed or corrected the OCR text.
	ManuallyEdited bool `json:"manually_edited,omitempty"`
}

// FrameDetail is the per-image span of RawText.
type FrameDetail struct {
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// Mode selects how much the model is asked to produce.
type Mode string

const (
	ModeFull Mode = "full"
	ModeLite Mode = "lite"
)

// AnalysisContext is trusted configuration computed upstream. It is never derived from model output.
type AnalysisContext struct {
	UserName         string   `json:"user_name" yaml:"user_name"`
	OtherName        string   `json:"other_name" yaml:"other_name"`
	OtherPronoun     string   `json:"other_pronoun" yaml:"other_pronoun"`
	Archetype        string   `json:"archetype" yaml:"archetype"`
	ConfidenceRemark string   `json:"confidence_remark,omitempty" yaml:"confidence_remark"`
	RedFlags         []string `json:"red_flags,omitempty" yaml:"red_flags"`
	RedFlagCount     int      `json:"red_flag_count" yaml:"red_flag_count"`
	Mode             Mode     `json:"mode,omitempty" yaml:"mode"`
}

// Verdict is a short situation label plus a one-line subtext.
type Verdict struct {
	Label   string `json:"label"`
	Subtext string `json:"subtext"`
}

// Receipt is one piece of quoted evidence. Quote is always verifiable against the transcript.
type Receipt struct {
	Quote   string `json:"quote"`
	Pattern string `json:"pattern"`
	Cost    string `json:"cost"`
}

// Metrics.RedFlags always equals len(DeepDiveResult.Receipts).
type Metrics struct {
	WastingTime     int `json:"wastingTime"`
	ActuallyIntoYou int `json:"actuallyIntoYou"`
	RedFlags        int `json:"redFlags"`
}

// DeepDiveResult is the validated artifact handed back to the caller. It is never mutated after return.
type DeepDiveResult struct {
	Verdict        Verdict   `json:"verdict"`
	Receipts       []Receipt `json:"receipts"`
	Metrics        Metrics   `json:"metrics"`
	Tags           []string  `json:"tags"`
	SealLine       string    `json:"sealLine"`
	NextMoveScript *string   `json:"nextMoveScript"`
}

// Outcome is the caller-facing result contract. A non-OK outcome is final.
type Outcome struct {
	OK        bool            `json:"ok"`
	Result    *DeepDiveResult `json:"result,omitempty"`
	ErrorKind string          `json:"errorKind,omitempty"`
	Message   string          `json:"message,omitempty"`
}
