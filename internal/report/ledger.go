package report

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// LedgerSuffix is appended to the reference file path to name its ledger.
const LedgerSuffix = ".rangecheck-progress"

// Ledger is an append-only file of block indices that already passed.
// Every record is synced so a crashed run loses at most the block in flight.
type Ledger struct {
	path string

	mu   sync.Mutex
	done map[int]bool
	f    *os.File
}

// OpenLedger loads the ledger at path, creating it if needed.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		done: loadLedger(path),
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l.f = f
	return l, nil
}

func loadLedger(path string) map[int]bool {
	done := make(map[int]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return done
	}
	for _, line := range strings.Split(string(data), "\n") {
		if idx, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
			done[idx] = true
		}
	}
	return done
}

// Len returns the number of recorded blocks.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.done)
}

// Done implements verifier.Ledger.
func (l *Ledger) Done(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done[index]
}

// Record implements verifier.Ledger.
func (l *Ledger) Record(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done[index] {
		return nil
	}
	if _, err := fmt.Fprintf(l.f, "%d\n", index); err != nil {
		return err
	}
	if err := l.f.Sync(); err != nil {
		return err
	}
	l.done[index] = true
	return nil
}

// Close closes the ledger file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Remove closes and deletes the ledger. Called after a fully passing run.
func (l *Ledger) Remove() error {
	l.Close()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
