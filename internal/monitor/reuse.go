package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/edgeandnode/graph-ixi/pkg/poi"
)

// ReuseAnalyzer cross-references a disagreement's fingerprints against the
// whole submission history. A fingerprint seen on other keys or at other
// times suggests a fabricated or stale attestation.
type ReuseAnalyzer struct {
	Submissions SubmissionReader
	Log         *slog.Logger
}

// Analyze returns provenance lines per fingerprint hex, most recent prior use
// first. Fingerprints with a single occurrence are omitted. Best-effort: on
// store failure it logs and returns an empty map so the disagreement report
// still goes out without reuse annotations.
func (a *ReuseAnalyzer) Analyze(ctx context.Context, identity poi.Identity) map[string][]string {
	reuse := make(map[string][]string)
	if identity.Empty() {
		return reuse
	}

	occurrences, err := a.Submissions.HistoricalOccurrences(ctx, identity)
	if err != nil {
		a.Log.Error("check poi reuse", "err", err)
		return map[string][]string{}
	}

	byHex := make(map[string][]poi.Submission)
	for _, sub := range occurrences {
		h := sub.Fingerprint.Hex()
		byHex[h] = append(byHex[h], sub)
	}

	for h, subs := range byHex {
		if len(subs) <= 1 {
			continue
		}
		sort.SliceStable(subs, func(i, j int) bool {
			return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
		})
		current := subs[0]
		for _, prev := range subs[1:] {
			days := int(current.SubmittedAt.Sub(prev.SubmittedAt).Hours() / 24)
			reuse[h] = append(reuse[h], fmt.Sprintf(
				"Previously used %d days ago:\n• Network: %s\n• Deployment: %s\n• Block: %d\n• Indexer: %s",
				days, prev.Network, prev.Key.Deployment, prev.Key.Block, prev.Indexer))
		}
	}
	return reuse
}
