package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/saworbit/pathkeeper/internal/metrics"
	"github.com/saworbit/pathkeeper/pkg/cas"
)

// ErrOutsideRoot marks events whose canonical path is not below the canonical
// watch root.
var ErrOutsideRoot = errors.New("path is outside the recorded root")

// errUndecodable marks journal entries that can never be processed.
var errUndecodable = errors.New("undecodable journal entry")

// PrefixDeadLetter holds journal entries that could not be decoded, under
// their original log key suffix.
const PrefixDeadLetter = "log-dead:"

// Canonicalizer turns a path into its canonical long form.
// *shortpath.Expander satisfies it.
type Canonicalizer interface {
	Expand(path string) (string, error)
}

// MetadataRecord links a canonical path, relative to the canonical root, to a
// CAS object at a point in time.
type MetadataRecord struct {
	Path      string `json:"path"`
	RawPath   string `json:"raw_path"`
	Timestamp int64  `json:"ts"`
	CID       string `json:"cid"`
	Size      int    `json:"size"`
	Op        string `json:"op"`
}

// Processor drains journal entries into CAS and canonical metadata.
type Processor struct {
	db      *pebble.DB
	store   *cas.Store
	canon   Canonicalizer
	root    string
	poll    time.Duration
	logger  *zap.Logger
	tracked map[string]struct{}
}

// NewProcessor canonicalizes root once; every event is stored relative to it.
func NewProcessor(db *pebble.DB, store *cas.Store, canon Canonicalizer, root string, poll time.Duration, logger *zap.Logger) (*Processor, error) {
	if db == nil || store == nil || canon == nil {
		return nil, fmt.Errorf("processor requires db, store and canonicalizer")
	}
	canonRoot, err := canon.Expand(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalize root: %w", err)
	}
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		db:      db,
		store:   store,
		canon:   canon,
		root:    canonRoot,
		poll:    poll,
		logger:  logger.With(zap.String("component", "processor")),
		tracked: make(map[string]struct{}),
	}, nil
}

// Root returns the canonical root events are stored under.
func (p *Processor) Root() string {
	return p.root
}

// Start runs the processor in the background. The returned func stops it and
// waits for the loop to exit, after which Drain may be called directly.
func (p *Processor) Start() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.loop(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Processor) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := p.Drain()
		if err != nil {
			p.logger.Warn("journal drain failed", zap.Error(err))
		}

		if n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.poll):
			}
		}
	}
}

// Drain processes every journal entry currently present and returns how many
// were consumed. Entries that fail are logged and left in place for the next
// pass, except for events outside the root, which are dropped, and entries
// that cannot be decoded, which move to PrefixDeadLetter.
func (p *Processor) Drain() (int, error) {
	iter, err := newPrefixIter(p.db, cas.PrefixLog)
	if err != nil {
		return 0, fmt.Errorf("iterator init: %w", err)
	}

	processed := 0
	for iter.First(); iter.Valid(); iter.Next() {
		logKey := append([]byte(nil), iter.Key()...)
		payload := append([]byte(nil), iter.Value()...)

		err := p.processEntry(payload)
		switch {
		case errors.Is(err, errUndecodable):
			if err := p.deadLetter(logKey, payload); err != nil {
				p.logger.Error("failed to move journal entry to dead letters", zap.String("key", string(logKey)), zap.Error(err))
				continue
			}
			p.logger.Warn("moved undecodable journal entry to dead letters", zap.String("key", string(logKey)), zap.Error(err))
			continue
		case errors.Is(err, ErrOutsideRoot):
			p.logger.Warn("dropping event outside root", zap.String("key", string(logKey)), zap.Error(err))
		case err != nil:
			p.logger.Error("failed to handle journal entry", zap.String("key", string(logKey)), zap.Error(err))
			continue
		}

		if err := p.db.Delete(logKey, pebble.Sync); err != nil {
			p.logger.Error("failed to delete journal entry", zap.String("key", string(logKey)), zap.Error(err))
			continue
		}
		processed++
	}

	if err := iter.Error(); err != nil {
		iter.Close()
		return processed, err
	}
	return processed, iter.Close()
}

// deadLetter moves a journal entry out of the log prefix in one batch.
func (p *Processor) deadLetter(logKey, payload []byte) error {
	deadKey := append([]byte(PrefixDeadLetter), bytes.TrimPrefix(logKey, []byte(cas.PrefixLog))...)

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(deadKey, payload, nil); err != nil {
		return err
	}
	if err := batch.Delete(logKey, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (p *Processor) processEntry(payload []byte) error {
	var entry JournalEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	if entry.Op == "" {
		entry.Op = "write"
	}

	rel, err := p.relativeCanonical(entry)
	if err != nil {
		return err
	}

	cid, written, err := p.store.Put(entry.Data)
	if err != nil {
		return fmt.Errorf("store CAS object: %w", err)
	}
	metrics.ObserveStoreSavings(int64(len(entry.Data)), int64(written))

	meta := MetadataRecord{
		Path:      rel,
		RawPath:   entry.Path,
		Timestamp: entry.Timestamp,
		CID:       cid,
		Size:      len(entry.Data),
		Op:        entry.Op,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := p.db.Set(MetaKey(rel, entry.Timestamp), metaBytes, pebble.Sync); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	p.tracked[rel] = struct{}{}
	metrics.SetFilesTracked(len(p.tracked))
	return nil
}

// relativeCanonical makes the canonical path of entry relative to the
// canonical root, so that short and long spellings of one file yield the same
// key. Entries journaled without a canonical path are expanded here, which
// only helps while the file still exists.
func (p *Processor) relativeCanonical(entry JournalEntry) (string, error) {
	canonical := entry.Canonical
	if canonical == "" {
		expanded, err := p.canon.Expand(entry.Path)
		if err != nil {
			return "", fmt.Errorf("canonicalize %s: %w", entry.Path, err)
		}
		canonical = expanded
	}

	rel, err := filepath.Rel(p.root, canonical)
	if err != nil {
		return "", fmt.Errorf("%s: %w", canonical, ErrOutsideRoot)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", canonical, ErrOutsideRoot)
	}
	return filepath.ToSlash(rel), nil
}

// MetaKey is the pebble key of a metadata record.
func MetaKey(relPath string, ts int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", cas.PrefixMeta, relPath, ts))
}

// LoadMetadataAt returns, per canonical path, the newest record not later
// than target. Records under sessionKey are skipped.
func LoadMetadataAt(db *pebble.DB, target time.Time, logger *zap.Logger) (map[string]MetadataRecord, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	iter, err := newPrefixIter(db, cas.PrefixMeta)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	records := make(map[string]MetadataRecord)
	cutoff := target.UnixNano()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		if key == SessionKey {
			continue
		}

		var meta MetadataRecord
		if err := json.Unmarshal(iter.Value(), &meta); err != nil {
			logger.Warn("skip corrupt metadata", zap.String("key", key), zap.Error(err))
			continue
		}

		if meta.Timestamp > cutoff {
			continue
		}

		if prev, ok := records[meta.Path]; !ok || meta.Timestamp > prev.Timestamp {
			records[meta.Path] = meta
		}
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}
	return records, nil
}

func newPrefixIter(db *pebble.DB, prefix string) (*pebble.Iterator, error) {
	upper := append([]byte(prefix), 0xff)
	return db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
}
