// Package monitor is the discrepancy-detection and alerting engine: per-key
// detection, historical reuse analysis, and the batch cycle that guarantees
// exactly one alert per distinct disagreement state.
package monitor

import (
	"context"
	"fmt"

	"github.com/edgeandnode/graph-ixi/pkg/poi"
)

// SubmissionReader is the read side of the fingerprint store.
type SubmissionReader interface {
	CurrentSet(ctx context.Context, key poi.Key) (*poi.FingerprintSet, error)
	HistoricalOccurrences(ctx context.Context, identity poi.Identity) ([]poi.Submission, error)
}

// Ledger records which exact disagreement identity has been alerted per key.
type Ledger interface {
	HasNotified(ctx context.Context, key poi.Key, identity poi.Identity) (bool, error)
	RecordNotified(ctx context.Context, key poi.Key, identity poi.Identity, message string) error
}

type Verdict int

const (
	// NoDisagreement: no submissions yet, or all indexers agree.
	NoDisagreement Verdict = iota
	// AlreadyNotified: this exact disagreement state has been alerted.
	AlreadyNotified
	// Disagreement: two or more distinct fingerprints, not yet alerted.
	Disagreement
)

func (v Verdict) String() string {
	switch v {
	case NoDisagreement:
		return "no_disagreement"
	case AlreadyNotified:
		return "already_notified"
	case Disagreement:
		return "disagreement"
	}
	return "unknown"
}

// Detection carries the verdict plus, for a disagreement, the full submission
// set (downstream formatting needs indexer lists, not just the identity).
type Detection struct {
	Verdict  Verdict
	Set      *poi.FingerprintSet
	Identity poi.Identity
}

// Detector decides agreement vs. disagreement for one key. Purely a read.
type Detector struct {
	Submissions SubmissionReader
	Ledger      Ledger
}

// Detect computes the key's disagreement identity and checks the ledger gate
// before anything else, so already-alerted states cost no reuse analysis.
func (d *Detector) Detect(ctx context.Context, key poi.Key) (Detection, error) {
	set, err := d.Submissions.CurrentSet(ctx, key)
	if err != nil {
		return Detection{}, fmt.Errorf("detect %s: %w", key, err)
	}
	identity := set.Identity()

	notified, err := d.Ledger.HasNotified(ctx, key, identity)
	if err != nil {
		return Detection{}, fmt.Errorf("detect %s: %w", key, err)
	}
	if notified {
		return Detection{Verdict: AlreadyNotified, Set: set, Identity: identity}, nil
	}

	if set.Distinct() <= 1 {
		return Detection{Verdict: NoDisagreement, Set: set, Identity: identity}, nil
	}
	return Detection{Verdict: Disagreement, Set: set, Identity: identity}, nil
}
