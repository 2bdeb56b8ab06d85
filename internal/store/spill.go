package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

// spillRecord is one line of the dead-letter spill file: a batch that
// permanently failed to write to the repository.
type spillRecord struct {
	Results []*domain.Result `json:"results"`
	Jobs    []*domain.Job    `json:"jobs"`
}

// Spill is a single-writer, single-reader append-only file of batches the
// repository rejected permanently. It is replayed once, at reconnect, by
// the same process that writes to it (§5: serialized, no concurrent access).
type Spill struct {
	mu   sync.Mutex
	path string
}

// NewSpill records the spill file path; the file itself is created by the
// first Write.
func NewSpill(path string) *Spill {
	return &Spill{path: path}
}

// Write appends one failed batch to the spill file.
func (s *Spill) Write(results []*domain.Result, jobs []*domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("store: open spill file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(spillRecord{Results: results, Jobs: jobs})
	if err != nil {
		return fmt.Errorf("store: marshal spill record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("store: write spill record: %w", err)
	}
	return nil
}

// Replay reads every record in the spill file and hands it to apply in
// order. On success it truncates the file so already-replayed records are
// not retried next time. Results carry their own UUID, so a replay landing
// on an already-written row is a no-op under the repository's primary key
// constraint rather than a duplicate.
func (s *Spill) Replay(apply func(results []*domain.Result, jobs []*domain.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: open spill file for replay: %w", err)
	}

	var records []spillRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec spillRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // corrupt line; skip rather than abort the whole replay
		}
		records = append(records, rec)
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("store: scan spill file: %w", err)
	}

	for _, rec := range records {
		if err := apply(rec.Results, rec.Jobs); err != nil {
			return err
		}
	}

	return os.Truncate(s.path, 0)
}
