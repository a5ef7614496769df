package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/gateward/gateward/internal/logging"
)

// ProgressRecord is one line of a run's progress log.
type ProgressRecord struct {
	RunID           string         `json:"runId"`
	Phase           string         `json:"phase"`
	PercentComplete *int           `json:"percentComplete,omitempty"`
	Level           string         `json:"level,omitempty"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	UpdatedAt       int64          `json:"updatedAt"` // epoch ms
}

// ProgressWriter appends records to <dir>/<runId>.jsonl. Writes to the
// same file are serialized through a per-file queue; callers never block
// on the disk.
type ProgressWriter struct {
	dir string

	mu     sync.Mutex
	queues map[string]chan ProgressRecord
	wg     sync.WaitGroup
}

const progressQueueCap = 64

func NewProgressWriter(stateDir string) *ProgressWriter {
	return &ProgressWriter{
		dir:    filepath.Join(stateDir, "progress"),
		queues: make(map[string]chan ProgressRecord),
	}
}

// Append enqueues a record for the run's log file. The write happens on
// the file's queue goroutine; a full queue drops the record with a
// warning rather than stalling the reporting tool.
func (w *ProgressWriter) Append(rec ProgressRecord) {
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = time.Now().UnixMilli()
	}

	w.mu.Lock()
	q, ok := w.queues[rec.RunID]
	if !ok {
		q = make(chan ProgressRecord, progressQueueCap)
		w.queues[rec.RunID] = q
		w.wg.Add(1)
		go w.drain(rec.RunID, q)
	}
	w.mu.Unlock()

	select {
	case q <- rec:
	default:
		L_warn("progress queue full for run %s, dropping record", rec.RunID)
	}
}

// Path returns the log file for a run id.
func (w *ProgressWriter) Path(runID string) string {
	return filepath.Join(w.dir, runID+".jsonl")
}

// Close stops the queues and waits for pending writes to land.
func (w *ProgressWriter) Close() {
	w.mu.Lock()
	for _, q := range w.queues {
		close(q)
	}
	w.queues = make(map[string]chan ProgressRecord)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *ProgressWriter) drain(runID string, q chan ProgressRecord) {
	defer w.wg.Done()
	for rec := range q {
		if err := w.appendOne(rec); err != nil {
			L_warn("failed to write progress for run %s: %v", runID, err)
		}
	}
}

func (w *ProgressWriter) appendOne(rec ProgressRecord) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create progress dir: %w", err)
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(rec.RunID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// ReadAll returns every record logged for a run, oldest first.
func (w *ProgressWriter) ReadAll(runID string) ([]ProgressRecord, error) {
	data, err := os.ReadFile(w.Path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []ProgressRecord
	for _, line := range splitLines(data) {
		var rec ProgressRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
