// Package registry orchestrates identity resolution for detected faces:
// matching against known officers, creating new identities, attaching the
// reconciled detection record and committing officer plus appearance as a
// unit.
package registry

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/facematch"
	"github.com/copwatch-uk/copwatch/internal/reconcile"
	"github.com/copwatch-uk/copwatch/internal/vision"
)

// State tracks a sighting through the processing pipeline.
type State string

const (
	StateDetected   State = "detected"
	StateEmbedded   State = "embedded"
	StateMatched    State = "matched"
	StateCreated    State = "created"
	StateReconciled State = "reconciled"
	StatePersisted  State = "persisted"
)

// ErrMissingBoundingBox rejects sightings without a face bounding box; a
// sighting that was never detected cannot be processed.
var ErrMissingBoundingBox = errors.New("sighting has no bounding box")

// highConfidenceFloor is the reconciled-field confidence required to
// overwrite an already-populated officer field.
const highConfidenceFloor = 0.6

// Sighting is one detected face in one frame of one media item, together
// with the raw outputs of the independent detectors.
type Sighting struct {
	MediaItemID int64
	FrameNumber int
	FrameTime   float64

	BBox     []float64
	DetScore float64

	// Embedding may be empty when the embedding backend is unavailable; the
	// face then becomes a new, unlinked officer.
	Embedding      []float32
	EmbeddingModel string

	OCRBadge     string
	OCRBadgeConf float64
	OCRName      string
	OCRNameConf  float64

	Vision *vision.UniformAnalysis
}

// Outcome reports what happened to one sighting.
type Outcome struct {
	State         State
	Officer       *database.Officer
	Appearance    *database.OfficerAppearance
	Created       bool    // true when a new officer identity was created
	MatchDistance float64 // distance to the matched officer, 0 when created
}

// Store is the persistence surface the registry needs: officer reads and
// writes plus the atomic sighting commit.
type Store interface {
	database.OfficerWriter
	database.SightingWriter
}

// Registry resolves sightings into officer identities.
type Registry struct {
	store      Store
	matcher    *facematch.Matcher
	reconciler *reconcile.Reconciler

	// onOfficerEmbedded, when set, is called after a new officer with an
	// embedding is persisted. Used to keep an in-memory index fresh.
	onOfficerEmbedded func(officerID int64, embedding []float32)
}

// New creates a registry over the given store, matcher and reconciler.
func New(store Store, matcher *facematch.Matcher, reconciler *reconcile.Reconciler) *Registry {
	return &Registry{store: store, matcher: matcher, reconciler: reconciler}
}

// OnOfficerEmbedded registers a hook invoked after a newly created officer
// with an embedding is persisted.
func (r *Registry) OnOfficerEmbedded(fn func(officerID int64, embedding []float32)) {
	r.onOfficerEmbedded = fn
}

// Process runs one sighting through the state machine:
// Detected -> Embedded -> Matched|Created -> Reconciled -> Persisted.
// A face without an embedding skips Embedded and always creates a new
// officer, since it cannot be matched.
func (r *Registry) Process(ctx context.Context, s *Sighting) (*Outcome, error) {
	if len(s.BBox) == 0 {
		return nil, ErrMissingBoundingBox
	}

	outcome := &Outcome{State: StateDetected}

	var officer *database.Officer
	if len(s.Embedding) > 0 {
		outcome.State = StateEmbedded

		match, err := r.matcher.Match(ctx, s.Embedding)
		if err != nil {
			return nil, fmt.Errorf("matching sighting: %w", err)
		}

		if match.Matched {
			officer, err = r.store.Get(ctx, match.OfficerID)
			if err != nil {
				return nil, fmt.Errorf("loading matched officer %d: %w", match.OfficerID, err)
			}
			outcome.State = StateMatched
			outcome.MatchDistance = match.Distance
		} else {
			officer = &database.Officer{
				Embedding:      s.Embedding,
				EmbeddingModel: s.EmbeddingModel,
				EmbeddingDim:   len(s.Embedding),
			}
			outcome.State = StateCreated
			outcome.Created = true
		}
	} else {
		// Unmatchable: new identity with no embedding-based linkage.
		officer = &database.Officer{}
		outcome.State = StateCreated
		outcome.Created = true
	}

	input := reconcile.Input{
		OCRBadge:     s.OCRBadge,
		OCRBadgeConf: s.OCRBadgeConf,
		OCRName:      s.OCRName,
		OCRNameConf:  s.OCRNameConf,
		Vision:       s.Vision,
		Overrides: reconcile.Overrides{
			Badge: officer.BadgeOverride,
			Force: officer.ForceOverride,
			Rank:  officer.RankOverride,
			Name:  officer.NameOverride,
		},
	}
	record := r.reconciler.Reconcile(input)

	// Detected columns only ever hold automated values; overrides win at
	// read time through the Effective accessors. A second pass without the
	// overrides yields the automated winners for the detected fields.
	input.Overrides = reconcile.Overrides{}
	applyRecord(officer, r.reconciler.Reconcile(input))
	outcome.State = StateReconciled

	breakdown, err := record.Breakdown()
	if err != nil {
		return nil, err
	}

	appearance := &database.OfficerAppearance{
		MediaItemID:  s.MediaItemID,
		FrameNumber:  s.FrameNumber,
		FrameTime:    s.FrameTime,
		BBox:         s.BBox,
		DetScore:     s.DetScore,
		OCRBadge:     s.OCRBadge,
		OCRBadgeConf: s.OCRBadgeConf,
		OCRName:      s.OCRName,
		OCRNameConf:  s.OCRNameConf,
		Confidence:   record.Confidence,
		Breakdown:    breakdown,
	}

	if err := r.store.SaveSighting(ctx, officer, appearance); err != nil {
		return nil, fmt.Errorf("persisting sighting: %w", err)
	}
	outcome.State = StatePersisted
	outcome.Officer = officer
	outcome.Appearance = appearance

	if outcome.Created && officer.HasEmbedding() && r.onOfficerEmbedded != nil {
		r.onOfficerEmbedded(officer.ID, officer.Embedding)
	}

	log.WithFields(log.Fields{
		"officer_id": officer.ID,
		"media_id":   s.MediaItemID,
		"frame":      s.FrameNumber,
		"created":    outcome.Created,
		"confidence": record.Confidence,
	}).Debug("Sighting persisted")

	return outcome, nil
}

// applyRecord folds the reconciled record into the officer. A field is only
// overwritten when it is empty or the new detection clears the
// high-confidence floor; manual overrides are stored separately and are
// never touched here.
func applyRecord(officer *database.Officer, record *reconcile.Record) {
	updateField(&officer.Force, record.Force)
	updateField(&officer.Rank, record.Rank)
	updateField(&officer.Name, record.Name)
	updateField(&officer.BadgeNumber, record.Badge)
	updateField(&officer.ShoulderNumber, record.ShoulderNumber)
}

func updateField(target *string, result reconcile.FieldResult) {
	if result.Source == reconcile.SourceNone || result.Value == "" {
		return
	}
	if *target == "" || result.Confidence >= highConfidenceFloor {
		*target = result.Value
	}
}
