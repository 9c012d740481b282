package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"turbo-umbrella/internal/domain"
)

const performanceFile = "performance.json"

// Tracker aggregates realized results across the process lifetime and
// persists them so restarts keep the running totals.
type Tracker struct {
	mu   sync.Mutex
	dir  string
	snap domain.PerformanceSnapshot
	now  func() time.Time
}

// NewTracker loads the previous snapshot from dir when one exists.
func NewTracker(dir string) (*Tracker, error) {
	t := &Tracker{dir: dir, now: time.Now}

	data, err := os.ReadFile(filepath.Join(dir, performanceFile))
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read performance snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &t.snap); err != nil {
		return nil, fmt.Errorf("parse performance snapshot: %w", err)
	}
	return t, nil
}

// Record folds one closed trade's realized PnL into the running totals.
// Opening legs carry no realized PnL and are ignored.
func (t *Tracker) Record(result domain.TradeResult) {
	if result.RealizedPnL == nil {
		return
	}
	pnl := *result.RealizedPnL

	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.TotalRealizedPnL += pnl
	t.snap.TotalTrades++
	if pnl >= 0 {
		t.snap.WinningTrades++
	} else {
		t.snap.LosingTrades++
	}
	if t.snap.BestTrade == nil || pnl > *t.snap.BestTrade {
		v := pnl
		t.snap.BestTrade = &v
	}
	if t.snap.WorstTrade == nil || pnl < *t.snap.WorstTrade {
		v := pnl
		t.snap.WorstTrade = &v
	}
	if t.snap.TotalRealizedPnL > t.snap.EquityPeak {
		t.snap.EquityPeak = t.snap.TotalRealizedPnL
	}
	if dd := t.snap.EquityPeak - t.snap.TotalRealizedPnL; dd > t.snap.MaxDrawdown {
		t.snap.MaxDrawdown = dd
	}
	now := t.now()
	t.snap.LastUpdate = &now
}

// Snapshot returns a copy of the current totals.
func (t *Tracker) Snapshot() domain.PerformanceSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Persist writes the totals to disk through a temp file rename.
func (t *Tracker) Persist() error {
	t.mu.Lock()
	data, err := json.MarshalIndent(t.snap, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal performance snapshot: %w", err)
	}

	target := filepath.Join(t.dir, performanceFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write performance snapshot: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace performance snapshot: %w", err)
	}
	return nil
}
