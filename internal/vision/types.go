// Package vision analyses uniform details in footage crops using hosted
// vision models. Providers return a fixed-schema analysis; malformed or
// partially missing fields degrade to zero-confidence values rather than
// failing the whole record.
package vision

import (
	"context"
	"encoding/json"
)

// FieldScore is one analysed uniform field with its confidence and the
// visual indicators the model based it on.
type FieldScore struct {
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators,omitempty"`
}

// UnmarshalJSON accepts either the full object form or a bare string
// (treated as a zero-confidence value). Anything else degrades to the
// zero value instead of erroring the whole analysis.
func (f *FieldScore) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Value = s
		f.Confidence = 0
		f.Indicators = nil
		return nil
	}

	type fieldScore FieldScore
	var obj fieldScore
	if err := json.Unmarshal(data, &obj); err != nil {
		*f = FieldScore{}
		return nil
	}

	*f = FieldScore(obj)
	if f.Confidence < 0 {
		f.Confidence = 0
	}
	if f.Confidence > 1 {
		f.Confidence = 1
	}
	return nil
}

// UniformAnalysis is the fixed-schema result of analysing one officer crop.
type UniformAnalysis struct {
	Force          FieldScore `json:"force"`
	Unit           FieldScore `json:"unit"`
	Rank           FieldScore `json:"rank"`
	UniformType    FieldScore `json:"uniform_type"`
	Equipment      []string   `json:"equipment,omitempty"`
	ShoulderNumber FieldScore `json:"shoulder_number"`
}

// ParseAnalysis decodes a provider response tolerantly. A completely
// unparseable payload is an error; individual bad fields are not.
func ParseAnalysis(data []byte) (*UniformAnalysis, error) {
	var analysis UniformAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// Provider defines the interface for vision analysis backends.
type Provider interface {
	Name() string
	AnalyzeUniform(ctx context.Context, imageData []byte) (*UniformAnalysis, error)
}
