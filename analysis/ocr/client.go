// Package ocr is an HTTP client for an external text-recognition service.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/deep-dive/analysis"
)

const maxErrorBody = 512

// Client posts one image per request to Endpoint and reads back the recognized text.
type Client struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

var _ analysis.Recognizer = (*Client)(nil)

func New(endpoint, apiKey string) *Client {
	return &Client{
		Endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: 60 * time.Second},
	}
}

type request struct {
	ImageB64 string `json:"image_b64"`
	MIMEType string `json:"mime_type,omitempty"`
}

type response struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

func (c *Client) Recognize(ctx context.Context, img analysis.Image) (analysis.OCRResult, error) {
	if c.Endpoint == "" {
		return analysis.OCRResult{}, fmt.Errorf("ocr: endpoint is empty")
	}
	if len(img.Data) == 0 {
		return analysis.OCRResult{}, fmt.Errorf("ocr: image %q is empty", img.Name)
	}
	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	buf, err := json.Marshal(request{ImageB64: base64.StdEncoding.EncodeToString(img.Data), MIMEType: mime})
	if err != nil {
		return analysis.OCRResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return analysis.OCRResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return analysis.OCRResult{}, fmt.Errorf("ocr: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return analysis.OCRResult{}, fmt.Errorf("ocr: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return analysis.OCRResult{}, fmt.Errorf("ocr: service error: %s (%s)", resp.Status, msg)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return analysis.OCRResult{}, fmt.Errorf("ocr: decode response: %w", err)
	}
	if parsed.Confidence == nil {
		return analysis.OCRResult{}, fmt.Errorf("ocr: response for %q has no confidence", img.Name)
	}
	return analysis.OCRResult{Text: parsed.Text, Confidence: *parsed.Confidence}, nil
}
