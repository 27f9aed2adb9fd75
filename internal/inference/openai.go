package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dermascan/dermascan/internal/config"
	"github.com/dermascan/dermascan/internal/model"
)

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// OpenAI calls an OpenAI-compatible chat completions endpoint. This also
// covers locally served models (Ollama, llama.cpp server).
type OpenAI struct {
	client *resty.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI returns an OpenAI-compatible classifier.
func NewOpenAI(cfg config.InferenceConfig, logger *slog.Logger) *OpenAI {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &OpenAI{client: client, model: cfg.Model, logger: logger}
}

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.model }

// Analyze sends the image as a data URL content part.
func (o *OpenAI) Analyze(ctx context.Context, img Image) (*model.Diagnosis, error) {
	dataURL := "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)

	req := chatRequest{
		Model: o.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContentPart{
				{Type: "text", Text: analysisPrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
			},
		}},
		Temperature: 0.2,
	}
	req.ResponseFormat.Type = "json_object"

	start := time.Now()
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/chat/completions")
	if err != nil {
		return nil, transportError(ctx, err)
	}

	o.logger.Debug("model call completed",
		"provider", config.ProviderOpenAI,
		"model", o.model,
		"status", resp.StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.IsError() {
		return nil, statusError(resp.StatusCode(), resp.Body())
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrUpstream)
	}

	return parseReply(out.Choices[0].Message.Content)
}
