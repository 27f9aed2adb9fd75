// Package inference turns a skin image into a structured diagnosis by calling
// an external multimodal model.
package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"unicode/utf8"

	"github.com/dermascan/dermascan/internal/config"
	"github.com/dermascan/dermascan/internal/model"
)

// ErrInference is the parent of every failure produced by this package.
var ErrInference = errors.New("inference failed")

var (
	// ErrUpstream covers transport failures, non-2xx statuses and empty replies.
	ErrUpstream = fmt.Errorf("%w: model service error", ErrInference)
	// ErrMalformedReply is returned when the reply lacks a required field.
	ErrMalformedReply = fmt.Errorf("%w: malformed model reply", ErrInference)
	// ErrTimeout is returned when the model does not answer in time.
	ErrTimeout = fmt.Errorf("%w: model timed out", ErrInference)
	// ErrUnsupportedImage is returned when the model refuses the image.
	ErrUnsupportedImage = fmt.Errorf("%w: image rejected by model", ErrInference)
)

// Image is the payload sent to the model.
type Image struct {
	Data     []byte
	MIMEType string
}

// Classifier produces a diagnosis for one image.
type Classifier interface {
	Analyze(ctx context.Context, img Image) (*model.Diagnosis, error)
	// Model names the model answering requests.
	Model() string
}

// New builds the classifier selected by cfg.Provider.
func New(cfg config.InferenceConfig, logger *slog.Logger) (Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var c Classifier
	switch cfg.Provider {
	case config.ProviderGemini:
		c = NewGemini(cfg, logger)
	case config.ProviderOpenAI:
		c = NewOpenAI(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
	return WithRetry(c, cfg.MaxRetries, logger), nil
}

// transportError classifies a failed round trip.
func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &retryableError{fmt.Errorf("%w: %v", ErrUpstream, err)}
}

// statusError classifies a non-2xx reply.
func statusError(status int, body []byte) error {
	msg := truncate(string(body), 256)
	switch {
	case status == 400 && invalidKey(body):
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, status, msg)
	case status == 400 || status == 415 || status == 422:
		return fmt.Errorf("%w: status %d: %s", ErrUnsupportedImage, status, msg)
	case status == 408 || status == 504:
		return fmt.Errorf("%w: status %d", ErrTimeout, status)
	case status == 429 || status == 500 || status == 502 || status == 503:
		return &retryableError{fmt.Errorf("%w: status %d: %s", ErrUpstream, status, msg)}
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, status, msg)
	}
}

// invalidKey reports whether a 400 body is a credential rejection. Gemini
// answers a bad key with 400 INVALID_ARGUMENT and reason API_KEY_INVALID.
func invalidKey(body []byte) bool {
	b := bytes.ToLower(body)
	return bytes.Contains(b, []byte("api_key_invalid")) || bytes.Contains(b, []byte("api key not valid"))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
