package recorder

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/saworbit/pathkeeper/internal/metrics"
	"github.com/saworbit/pathkeeper/pkg/cas"
)

// JournalEntry is a raw filesystem event as reported by the watcher. Path is
// absolute and may still contain 8.3 components. Canonical, when set, is the
// long form resolved while the file still existed.
type JournalEntry struct {
	Timestamp int64  `json:"ts"` // Nanoseconds
	Path      string `json:"path"`
	Canonical string `json:"canonical,omitempty"`
	Op        string `json:"op"` // "write", "create"
	Data      []byte `json:"data"`
}

// Journal appends raw events to pebble under a time-ordered prefix.
type Journal struct {
	db  *pebble.DB
	now func() time.Time
}

// NewJournal creates a journal writer bound to db.
func NewJournal(db *pebble.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// LogEvent appends one event. An empty op is stored as "write".
func (j *Journal) LogEvent(op, path string, data []byte) error {
	return j.LogCanonicalEvent(op, path, "", data)
}

// LogCanonicalEvent appends one event together with the canonical spelling of
// path. An empty canonical leaves resolution to the processor.
func (j *Journal) LogCanonicalEvent(op, path, canonical string, data []byte) error {
	if j.db == nil {
		return fmt.Errorf("pebble database is not initialized")
	}
	if op == "" {
		op = "write"
	}

	entry := JournalEntry{
		Timestamp: j.now().UnixNano(),
		Path:      path,
		Canonical: canonical,
		Op:        op,
		Data:      data,
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	suffix, err := randomSuffix()
	if err != nil {
		return fmt.Errorf("generate journal key: %w", err)
	}
	key := []byte(fmt.Sprintf("%s%020d:%s", cas.PrefixLog, entry.Timestamp, suffix))

	if err := j.db.Set(key, payload, pebble.NoSync); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}

	metrics.ObserveJournalEvent(op)
	return nil
}

func randomSuffix() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
