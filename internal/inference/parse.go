package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dermascan/dermascan/internal/model"
)

// stringList accepts either a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*l = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type reply struct {
	Disease     string     `json:"disease"`
	Confidence  *float64   `json:"confidence"`
	Description string     `json:"description"`
	Symptoms    stringList `json:"symptoms"`
	Treatments  stringList `json:"treatments"`
	MedicalCare stringList `json:"medical_care"`
}

// parseReply decodes the model's text into a Diagnosis. Nothing is defaulted:
// a missing disease, confidence or treatment list is ErrMalformedReply.
func parseReply(text string) (*model.Diagnosis, error) {
	body := stripFences(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}

	var r reply
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedReply)
	}

	disease := strings.TrimSpace(r.Disease)
	if disease == "" {
		return nil, fmt.Errorf("%w: missing disease", ErrMalformedReply)
	}
	if r.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", ErrMalformedReply)
	}
	c := *r.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedReply, c)
	}
	treatments := compact(r.Treatments)
	if len(treatments) == 0 {
		return nil, fmt.Errorf("%w: missing treatments", ErrMalformedReply)
	}

	return &model.Diagnosis{
		Disease:     disease,
		Confidence:  c,
		Description: strings.TrimSpace(r.Description),
		Symptoms:    compact(r.Symptoms),
		Treatments:  treatments,
		MedicalCare: compact(r.MedicalCare),
		Disclaimer:  model.Disclaimer,
	}, nil
}

// stripFences removes a surrounding ``` or ```json block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
