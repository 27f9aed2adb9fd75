// Package imaging validates uploaded images before they are sent for analysis.
package imaging

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the default upload ceiling (5 MiB).
const DefaultMaxBytes = 5 << 20

var (
	// ErrEmpty is returned for a zero-length upload.
	ErrEmpty = errors.New("image is empty")
	// ErrTooLarge is returned when the upload exceeds the configured limit.
	ErrTooLarge = errors.New("image exceeds size limit")
	// ErrUnsupportedFormat is returned for content that is not PNG, JPEG or WEBP.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

var allowed = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// Image is an upload whose content type has been sniffed and accepted.
type Image struct {
	Name     string
	Data     []byte
	MIMEType string
}

// Ext returns the canonical file extension for the image's format.
func (i Image) Ext() string {
	return allowed[i.MIMEType]
}

// Validator checks uploads against a size ceiling and the accepted formats.
type Validator struct {
	maxBytes int64
}

// NewValidator returns a Validator. A non-positive maxBytes uses DefaultMaxBytes.
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{maxBytes: maxBytes}
}

// MaxBytes returns the configured ceiling.
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Validate sniffs data and returns an accepted Image. The declared name is only
// kept for display; the format is decided by content.
func (v *Validator) Validate(name string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmpty
	}
	if int64(len(data)) > v.maxBytes {
		return Image{}, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), v.maxBytes)
	}

	mt := mimetype.Detect(data)
	mime := mt.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if _, ok := allowed[mime]; !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}

	return Image{
		Name:     cleanName(name),
		Data:     data,
		MIMEType: mime,
	}, nil
}

// AcceptedExtensions lists file extensions offered by upload forms.
func AcceptedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".webp"}
}

// maxNameBytes caps a stored file name.
const maxNameBytes = 255

func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	if len(name) > maxNameBytes {
		n := maxNameBytes
		for n > 0 && !utf8.RuneStart(name[n]) {
			n--
		}
		name = name[:n]
	}
	return name
}
