package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgeandnode/graph-ixi/internal/alert"
	"github.com/edgeandnode/graph-ixi/internal/store"
	"github.com/edgeandnode/graph-ixi/pkg/poi"
)

// ErrCycleInProgress means another cycle currently holds the run guard.
// Cycles never overlap: the dedup check-then-record sequence is not safe
// under concurrent runs.
var ErrCycleInProgress = errors.New("a monitor cycle is already running")

// Notifier delivers one rendered alert. False means "not delivered, do not
// record"; ordinary transport failure is not an error.
type Notifier interface {
	Send(ctx context.Context, message string) bool
}

// KeySource supplies the candidate keys for one cycle.
type KeySource interface {
	CandidateKeys(ctx context.Context) ([]poi.Key, error)
}

// RetentionLedger extends Ledger with the retention sweep the orchestrator
// runs once per cycle.
type RetentionLedger interface {
	Ledger
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

type KeyStatus string

const (
	KeyNoDisagreement  KeyStatus = "no_disagreement"
	KeyAlreadyNotified KeyStatus = "already_notified"
	KeyAlerted         KeyStatus = "alerted"
	KeyDeliveryFailed  KeyStatus = "delivery_failed"
	KeyFailed          KeyStatus = "failed"
)

// KeyResult is the explicit per-key outcome: failures are values in the batch
// report, not suppressed exceptions.
type KeyResult struct {
	Deployment string    `json:"deployment"`
	Block      int64     `json:"block"`
	Status     KeyStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// CycleReport summarizes one RunCycle invocation.
type CycleReport struct {
	CycleID    string      `json:"cycle_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Results    []KeyResult `json:"results"`
	Alerted    int         `json:"alerted"`
	Failed     int         `json:"failed"`
	Purged     int64       `json:"purged"`
	PurgeError string      `json:"purge_error,omitempty"`
}

// Monitor is the batch orchestrator: discovery, per-key detection with
// failure isolation, delivery-gated ledger writes, and retention cleanup.
type Monitor struct {
	Discovery   KeySource
	Detector    *Detector
	Reuse       *ReuseAnalyzer
	Notifier    Notifier
	Ledger      RetentionLedger
	Log         *slog.Logger
	Retention   time.Duration
	StepTimeout time.Duration

	runMu    sync.Mutex
	reportMu sync.Mutex
	last     *CycleReport
}

// LastReport returns the most recent completed cycle report, if any.
func (m *Monitor) LastReport() (CycleReport, bool) {
	m.reportMu.Lock()
	defer m.reportMu.Unlock()
	if m.last == nil {
		return CycleReport{}, false
	}
	return *m.last, true
}

// RunCycle processes every candidate key sequentially, isolating per-key
// failures, then purges aged ledger records exactly once. It returns an error
// only for cycle-level conditions: an overlapping cycle, unreachable
// discovery, cancellation, or a ledger invariant violation.
func (m *Monitor) RunCycle(ctx context.Context) (CycleReport, error) {
	if !m.runMu.TryLock() {
		return CycleReport{}, ErrCycleInProgress
	}
	defer m.runMu.Unlock()

	report := CycleReport{
		CycleID:   "cycle_" + uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := m.Log.With("cycle_id", report.CycleID)

	keys, err := m.discoverKeys(ctx)
	if err != nil {
		// Nothing to do without candidates; the scheduler retries next tick.
		return report, err
	}
	log.Info("cycle started", "candidates", len(keys))

	for _, key := range keys {
		if ctx.Err() != nil {
			// Cooperative shutdown: finish the in-flight key, stop before the
			// next one. Delivered-but-unrecorded work is retried next cycle.
			log.Info("cycle cancelled", "processed", len(report.Results))
			return report, ctx.Err()
		}
		result, fatal := m.processKey(ctx, log, key)
		report.Results = append(report.Results, result)
		switch result.Status {
		case KeyAlerted:
			report.Alerted++
		case KeyFailed:
			report.Failed++
		}
		if fatal != nil {
			log.Error("cycle stopped", "err", fatal)
			return report, fatal
		}
	}

	purged, err := m.purge(ctx)
	report.Purged = purged
	if err != nil {
		report.PurgeError = err.Error()
		log.Error("retention cleanup", "err", err)
	}

	report.FinishedAt = time.Now().UTC()
	log.Info("cycle finished",
		"keys", len(report.Results), "alerted", report.Alerted,
		"failed", report.Failed, "purged", report.Purged)

	m.reportMu.Lock()
	m.last = &report
	m.reportMu.Unlock()
	return report, nil
}

// processKey runs one key through the detect/reuse/format/deliver/record
// steps. Per-key errors come back inside the KeyResult; the second return is
// non-nil only for invariant violations that must stop the whole cycle.
func (m *Monitor) processKey(ctx context.Context, log *slog.Logger, key poi.Key) (KeyResult, error) {
	result := KeyResult{Deployment: key.Deployment, Block: key.Block}

	stepCtx, cancel := m.stepContext(ctx)
	detection, err := m.Detector.Detect(stepCtx, key)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrAmbiguousIdentity) {
			result.Status = KeyFailed
			result.Error = err.Error()
			return result, err
		}
		log.Error("detect", "deployment", key.Deployment, "block", key.Block, "err", err)
		result.Status = KeyFailed
		result.Error = err.Error()
		return result, nil
	}

	switch detection.Verdict {
	case NoDisagreement:
		result.Status = KeyNoDisagreement
		return result, nil
	case AlreadyNotified:
		result.Status = KeyAlreadyNotified
		return result, nil
	}

	stepCtx, cancel = m.stepContext(ctx)
	reuse := m.Reuse.Analyze(stepCtx, detection.Identity)
	cancel()

	message := alert.FormatDiscrepancy(key, detection.Set, reuse)

	stepCtx, cancel = m.stepContext(ctx)
	delivered := m.Notifier.Send(stepCtx, message)
	cancel()
	if !delivered {
		// No ledger write without delivery; the same identity is retried
		// next cycle.
		result.Status = KeyDeliveryFailed
		return result, nil
	}

	stepCtx, cancel = m.stepContext(ctx)
	err = m.Ledger.RecordNotified(stepCtx, key, detection.Identity, message)
	cancel()
	if err != nil {
		log.Error("record notification", "deployment", key.Deployment, "block", key.Block, "err", err)
		result.Status = KeyFailed
		result.Error = err.Error()
		return result, nil
	}

	log.Info("discrepancy alerted",
		"deployment", key.Deployment, "block", key.Block,
		"distinct_pois", detection.Identity.Size())
	result.Status = KeyAlerted
	return result, nil
}

func (m *Monitor) discoverKeys(ctx context.Context) ([]poi.Key, error) {
	stepCtx, cancel := m.stepContext(ctx)
	defer cancel()
	keys, err := m.Discovery.CandidateKeys(stepCtx)
	if err != nil {
		return nil, err
	}
	// Discovery promises deduplicated keys; re-dedup defensively.
	seen := make(map[poi.Key]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}

func (m *Monitor) purge(ctx context.Context) (int64, error) {
	stepCtx, cancel := m.stepContext(ctx)
	defer cancel()
	return m.Ledger.PurgeOlderThan(stepCtx, m.Retention)
}

func (m *Monitor) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.StepTimeout)
}
