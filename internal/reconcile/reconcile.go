// Package reconcile merges the outputs of independent detectors (OCR text,
// rule-based badge inference and vision-model analysis) into one
// confidence-annotated record per sighting. The precedence policy lives
// here and only here; consumers read the reconciled record instead of
// re-deriving it from the raw detector outputs.
package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/copwatch-uk/copwatch/internal/vision"
)

// Source identifies which detector a reconciled field value came from.
type Source string

const (
	SourceManual Source = "manual"
	SourceVision Source = "vision"
	SourceRule   Source = "rule"
	SourceOCR    Source = "ocr"
	SourceNone   Source = "none"
)

// DefaultVisionThreshold is the field confidence above which a vision result
// wins over the rule-based inference.
const DefaultVisionThreshold = 0.6

// FieldResult is one reconciled field with its provenance.
type FieldResult struct {
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Record is the reconciled view of one sighting.
type Record struct {
	Force          FieldResult `json:"force"`
	Unit           FieldResult `json:"unit"`
	Rank           FieldResult `json:"rank"`
	Name           FieldResult `json:"name"`
	Badge          FieldResult `json:"badge"`
	ShoulderNumber FieldResult `json:"shoulder_number"`

	// Indicators is the human-readable explanation of each choice, including
	// explicit notes when detectors disagreed.
	Indicators []string `json:"indicators,omitempty"`

	// Confidence is the composite score across populated fields.
	Confidence float64 `json:"confidence"`
}

// Overrides carries any manual operator values present on the underlying
// officer record. They win over every automated source.
type Overrides struct {
	Badge string
	Force string
	Rank  string
	Name  string
}

// Input gathers the detector outputs for one sighting. Any of the sources
// may be absent.
type Input struct {
	OCRBadge     string
	OCRBadgeConf float64
	OCRName      string
	OCRNameConf  float64

	Vision *vision.UniformAnalysis

	Overrides Overrides
}

// Reconciler applies the source-priority policy.
type Reconciler struct {
	visionThreshold float64
}

// NewReconciler creates a reconciler. A non-positive threshold falls back to
// the default.
func NewReconciler(visionThreshold float64) *Reconciler {
	if visionThreshold <= 0 {
		visionThreshold = DefaultVisionThreshold
	}
	return &Reconciler{visionThreshold: visionThreshold}
}

// Reconcile produces one record for a sighting. Rule-based inference is
// derived from the OCR badge text; the precedence per field is
// manual > vision (at or above the threshold) > rule > low-confidence vision.
func (r *Reconciler) Reconcile(input Input) *Record {
	record := &Record{}
	rules := InferFromBadge(input.OCRBadge)
	record.Indicators = append(record.Indicators, rules.Indicators...)

	visionField := func(pick func(*vision.UniformAnalysis) vision.FieldScore) vision.FieldScore {
		if input.Vision == nil {
			return vision.FieldScore{}
		}
		f := pick(input.Vision)
		record.Indicators = append(record.Indicators, f.Indicators...)
		return f
	}

	record.Force = r.resolve("force", input.Overrides.Force,
		visionField(func(a *vision.UniformAnalysis) vision.FieldScore { return a.Force }),
		rules.Force, rules.ForceConfidence, record)
	record.Rank = r.resolve("rank", input.Overrides.Rank,
		visionField(func(a *vision.UniformAnalysis) vision.FieldScore { return a.Rank }),
		rules.Rank, rules.RankConfidence, record)
	record.Unit = r.resolve("unit", "",
		visionField(func(a *vision.UniformAnalysis) vision.FieldScore { return a.Unit }),
		"", 0, record)
	record.ShoulderNumber = r.resolve("shoulder number", "",
		visionField(func(a *vision.UniformAnalysis) vision.FieldScore { return a.ShoulderNumber }),
		"", 0, record)

	record.Badge = r.resolveText("badge", input.Overrides.Badge, input.OCRBadge, input.OCRBadgeConf, record)
	record.Name = r.resolveText("name", input.Overrides.Name, input.OCRName, input.OCRNameConf, record)

	record.Confidence = composite(record)
	return record
}

// resolve applies the precedence policy to one field with vision and rule
// opinions. Conflicts between the two are recorded, never silently dropped.
func (r *Reconciler) resolve(field, override string, visionScore vision.FieldScore, ruleValue string, ruleConf float64, record *Record) FieldResult {
	if override != "" {
		record.Indicators = append(record.Indicators,
			fmt.Sprintf("%s: manual override %q", field, override))
		return FieldResult{Value: override, Confidence: 1.0, Source: SourceManual}
	}

	hasVision := visionScore.Value != ""
	hasRule := ruleValue != "" && ruleConf > 0

	if hasVision && hasRule && visionScore.Value != ruleValue {
		record.Indicators = append(record.Indicators,
			fmt.Sprintf("%s: vision says %q (%.2f) but badge rules say %q (%.2f)",
				field, visionScore.Value, visionScore.Confidence, ruleValue, ruleConf))
	}

	switch {
	case hasVision && visionScore.Confidence >= r.visionThreshold:
		return FieldResult{Value: visionScore.Value, Confidence: visionScore.Confidence, Source: SourceVision}
	case hasRule:
		return FieldResult{Value: ruleValue, Confidence: ruleConf, Source: SourceRule}
	case hasVision:
		return FieldResult{Value: visionScore.Value, Confidence: visionScore.Confidence, Source: SourceVision}
	default:
		return FieldResult{Source: SourceNone}
	}
}

// resolveText applies the precedence policy to a field whose only automated
// source is OCR text.
func (r *Reconciler) resolveText(field, override, text string, confidence float64, record *Record) FieldResult {
	if override != "" {
		record.Indicators = append(record.Indicators,
			fmt.Sprintf("%s: manual override %q", field, override))
		return FieldResult{Value: override, Confidence: 1.0, Source: SourceManual}
	}
	if text == "" {
		return FieldResult{Source: SourceNone}
	}
	return FieldResult{Value: text, Confidence: confidence, Source: SourceOCR}
}

// composite averages the confidences of populated fields.
func composite(record *Record) float64 {
	fields := []FieldResult{
		record.Force, record.Unit, record.Rank,
		record.Name, record.Badge, record.ShoulderNumber,
	}
	var sum float64
	var n int
	for _, f := range fields {
		if f.Source == SourceNone {
			continue
		}
		sum += f.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Breakdown serializes the record for storage alongside the appearance so
// the derivation of the composite score stays auditable.
func (r *Record) Breakdown() (json.RawMessage, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling reconciliation breakdown: %w", err)
	}
	return data, nil
}
