package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/deep-dive/analysis"
	"github.com/theimaginaryfoundation/deep-dive/analysis/provider"
)

// Analyzer is satisfied by *analysis.Pipeline and *analysis.Fallback.
type Analyzer interface {
	DeepDive(ctx context.Context, payload *analysis.ConversationPayload, actx analysis.AnalysisContext) (*analysis.DeepDiveResult, error)
	ChatTurn(ctx context.Context, req analysis.ChatRequest) (*analysis.ChatReply, error)
}

type ServerConfig struct {
	Addr         string
	MaxBodyBytes int64
	Analyzer     Analyzer
	Normalizer   analysis.Normalizer
	Speakers     analysis.SpeakerStore
	Logger       *zap.Logger
	StartTime    time.Time
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/deep-dive", deepDiveHandler(cfg))
		r.Post("/chat", chatHandler(cfg))
		r.Get("/conversations/{id}/speakers", getSpeakersHandler(cfg))
		r.Put("/conversations/{id}/speakers", putSpeakersHandler(cfg))
	})

	return r
}

type HealthResponse struct {
	Status  string `json:"status"`
	UptimeS int64  `json:"uptime_s"`
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

// DeepDiveRequest carries exactly one of Text, Frames or Images.
type DeepDiveRequest struct {
	ConversationID string                   `json:"conversation_id,omitempty"`
	Text           string                   `json:"text,omitempty"`
	Frames         []analysis.OCRResult     `json:"frames,omitempty"`
	Images         []analysis.Image         `json:"images,omitempty"`
	ColorMapping   string                   `json:"color_mapping,omitempty"`
	Speakers       analysis.SpeakerMap      `json:"speakers,omitempty"`
	Context        analysis.AnalysisContext `json:"context"`

	// EditedText and ConfirmEdit apply a user's review of OCR output before validation.
	EditedText  string `json:"edited_text,omitempty"`
	ConfirmEdit bool   `json:"confirm_edit,omitempty"`
}

func (req DeepDiveRequest) inputs() int {
	n := 0
	if strings.TrimSpace(req.Text) != "" {
		n++
	}
	if len(req.Frames) > 0 {
		n++
	}
	if len(req.Images) > 0 {
		n++
	}
	return n
}

func deepDiveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req DeepDiveRequest
		if !decodeBody(w, r, cfg.MaxBodyBytes, &req) {
			return
		}
		if req.inputs() != 1 {
			writeOutcome(w, nil, &analysis.Error{Kind: analysis.KindInvalidPayload, Message: "provide exactly one of text, frames or images"})
			return
		}
		if req.ConversationID != "" && !analysis.ValidConversationID(req.ConversationID) {
			writeOutcome(w, nil, &analysis.Error{Kind: analysis.KindInvalidPayload, Message: "conversation_id may only contain letters, digits, '-' and '_'"})
			return
		}

		hints := analysis.SpeakerHints{
			UserName:     req.Context.UserName,
			OtherName:    req.Context.OtherName,
			ColorMapping: req.ColorMapping,
			Override:     req.Speakers,
		}
		if len(hints.Override) == 0 && req.ConversationID != "" && cfg.Speakers != nil {
			saved, err := cfg.Speakers.Load(ctx, req.ConversationID)
			switch {
			case err == nil:
				hints.Override = saved
			case !errors.Is(err, analysis.ErrSpeakersNotFound):
				cfg.Logger.Warn("speaker cache load failed", zap.String("request_id", requestID(ctx)), zap.Error(err))
			}
		}

		n := cfg.Normalizer
		if req.ConversationID != "" {
			id := req.ConversationID
			n.NewID = func() string { return id }
		}
		var payload analysis.ConversationPayload
		var err error
		switch {
		case strings.TrimSpace(req.Text) != "":
			payload, err = n.NormalizePaste(req.Text, hints)
		case len(req.Frames) > 0:
			payload, err = n.NormalizeFrames(req.Frames, hints)
		default:
			if n.OCR == nil {
				WriteError(w, http.StatusNotImplemented, "image input needs an OCR endpoint", "OCR_UNAVAILABLE")
				return
			}
			payload, err = n.NormalizeOCR(ctx, req.Images, hints)
			if err != nil && analysis.KindOf(err) == analysis.KindInternal {
				cfg.Logger.Warn("ocr failed", zap.String("request_id", requestID(ctx)), zap.Error(err))
				WriteError(w, http.StatusBadGateway, "text recognition failed", "OCR_FAILED")
				return
			}
		}
		if err == nil && req.ConfirmEdit {
			payload, err = analysis.ConfirmManualEdit(payload, req.EditedText, req.Speakers)
		}
		if err != nil {
			writeOutcome(w, nil, err)
			return
		}

		res, err := cfg.Analyzer.DeepDive(ctx, &payload, req.Context)
		if err != nil {
			cfg.Logger.Info("deep dive rejected",
				zap.String("request_id", requestID(ctx)),
				zap.String("payload_id", payload.ID),
				zap.String("kind", string(analysis.KindOf(err))),
				zap.Error(err))
		}
		writeOutcome(w, res, err)
	}
}

func chatHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analysis.ChatRequest
		if !decodeBody(w, r, cfg.MaxBodyBytes, &req) {
			return
		}
		reply, err := cfg.Analyzer.ChatTurn(r.Context(), req)
		if err != nil {
			kind := analysis.KindOf(err)
			cfg.Logger.Info("chat turn failed", zap.String("request_id", requestID(r.Context())), zap.String("kind", string(kind)), zap.Error(err))
			out := analysis.ToOutcome(nil, err)
			WriteError(w, statusFor(kind, err), out.Message, out.ErrorKind)
			return
		}
		WriteJSON(w, http.StatusOK, reply)
	}
}

type SpeakersRequest struct {
	Speakers analysis.SpeakerMap `json:"speakers"`
}

type SpeakersResponse struct {
	ConversationID string              `json:"conversation_id"`
	Speakers       analysis.SpeakerMap `json:"speakers"`
}

func getSpeakersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !speakerStoreReady(w, cfg, id) {
			return
		}
		m, err := cfg.Speakers.Load(r.Context(), id)
		if errors.Is(err, analysis.ErrSpeakersNotFound) {
			WriteError(w, http.StatusNotFound, "no saved speakers for this conversation", "NOT_FOUND")
			return
		}
		if err != nil {
			cfg.Logger.Error("speaker cache load failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
			WriteError(w, http.StatusInternalServerError, "failed to load speakers", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, SpeakersResponse{ConversationID: id, Speakers: m})
	}
}

func putSpeakersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !speakerStoreReady(w, cfg, id) {
			return
		}
		var req SpeakersRequest
		if !decodeBody(w, r, cfg.MaxBodyBytes, &req) {
			return
		}
		m := analysis.BuildSpeakerMap(analysis.SpeakerHints{Override: req.Speakers})
		if len(m) < 2 || len(m.Names()) < 2 {
			WriteError(w, http.StatusBadRequest, "speakers must name at least two distinct people", string(analysis.KindInsufficientSpeakers))
			return
		}
		if err := cfg.Speakers.Save(r.Context(), id, m); err != nil {
			cfg.Logger.Error("speaker cache save failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
			WriteError(w, http.StatusInternalServerError, "failed to save speakers", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, SpeakersResponse{ConversationID: id, Speakers: m})
	}
}

func speakerStoreReady(w http.ResponseWriter, cfg ServerConfig, id string) bool {
	if cfg.Speakers == nil {
		WriteError(w, http.StatusNotImplemented, "speaker cache is not configured", "NOT_CONFIGURED")
		return false
	}
	if !analysis.ValidConversationID(id) {
		WriteError(w, http.StatusBadRequest, "invalid conversation id", string(analysis.KindInvalidPayload))
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "request body too large", "TOO_LARGE")
			return false
		}
		WriteError(w, http.StatusBadRequest, "invalid JSON body", "BAD_REQUEST")
		return false
	}
	return true
}

func writeOutcome(w http.ResponseWriter, res *analysis.DeepDiveResult, err error) {
	out := analysis.ToOutcome(res, err)
	if out.OK {
		WriteJSON(w, http.StatusOK, out)
		return
	}
	WriteJSON(w, statusFor(analysis.KindOf(err), err), out)
}

// statusFor maps a failure kind onto an HTTP status. Guardrail and grounding rejections are the caller's input.
func statusFor(kind analysis.Kind, err error) int {
	switch {
	case kind.IsGuardrail(), kind == analysis.KindInsufficientEvidence, kind == analysis.KindNoGroundedEvidence:
		return http.StatusUnprocessableEntity
	case kind == analysis.KindGenerationTimeout:
		return http.StatusGatewayTimeout
	case kind == analysis.KindGenerationFailed:
		if err != nil && provider.IsTransient(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case kind == analysis.KindMalformedResponse:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
