// Package journal persists the bot's decision trail as append-only JSONL
// files, one object per line. The files survive restarts and stay readable
// with standard line tools even if the database is down.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"turbo-umbrella/internal/domain"
)

const (
	decisionsFile = "decisions.jsonl"
	tradesFile    = "trades.jsonl"
)

type Journal struct {
	mu  sync.Mutex
	dir string
}

// New creates the journal directory if needed.
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &Journal{dir: dir}, nil
}

// AppendDecision records one risk verdict.
func (j *Journal) AppendDecision(record domain.DecisionRecord) error {
	return j.appendLine(decisionsFile, record)
}

// AppendTrade records one executed leg.
func (j *Journal) AppendTrade(result domain.TradeResult) error {
	return j.appendLine(tradesFile, result)
}

func (j *Journal) appendLine(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append journal %s: %w", name, err)
	}
	return nil
}
