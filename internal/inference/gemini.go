package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dermascan/dermascan/internal/config"
	"github.com/dermascan/dermascan/internal/model"
)

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMIMEType string  `json:"responseMimeType"`
		Temperature      float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Gemini calls the Google Generative Language generateContent endpoint.
type Gemini struct {
	client *resty.Client
	model  string
	logger *slog.Logger
}

// NewGemini returns a Gemini classifier.
func NewGemini(cfg config.InferenceConfig, logger *slog.Logger) *Gemini {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey)

	return &Gemini{client: client, model: cfg.Model, logger: logger}
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Analyze sends the image inline with the analysis prompt.
func (g *Gemini) Analyze(ctx context.Context, img Image) (*model.Diagnosis, error) {
	var req geminiRequest
	req.Contents = []geminiContent{{
		Role: "user",
		Parts: []geminiPart{
			{Text: analysisPrompt},
			{InlineData: &geminiInlineData{
				MIMEType: img.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			}},
		},
	}}
	req.GenerationConfig.ResponseMIMEType = "application/json"
	req.GenerationConfig.Temperature = 0.2

	start := time.Now()
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/models/" + url.PathEscape(g.model) + ":generateContent")
	if err != nil {
		return nil, transportError(ctx, err)
	}

	g.logger.Debug("model call completed",
		"provider", config.ProviderGemini,
		"model", g.model,
		"status", resp.StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.IsError() {
		return nil, statusError(resp.StatusCode(), resp.Body())
	}

	var out geminiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if out.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: blocked: %s", ErrUnsupportedImage, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrUpstream)
	}

	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, fmt.Errorf("%w: empty candidate (finish reason %q)", ErrUpstream, out.Candidates[0].FinishReason)
	}

	return parseReply(text.String())
}
