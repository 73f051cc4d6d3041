package recorder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/saworbit/pathkeeper/pkg/cas"
)

// SessionKey stores the start of the first recording session.
const SessionKey = cas.PrefixMeta + "session:start"

// RecordSessionStart stores start unless a session start is already present.
func RecordSessionStart(db *pebble.DB, start time.Time) error {
	if db == nil {
		return fmt.Errorf("pebble database is not initialized")
	}

	_, closer, err := db.Get([]byte(SessionKey))
	if err == nil {
		closer.Close()
		return nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("read session start: %w", err)
	}

	val := []byte(fmt.Sprintf("%020d", start.UnixNano()))
	if err := db.Set([]byte(SessionKey), val, pebble.Sync); err != nil {
		return fmt.Errorf("write session start: %w", err)
	}
	return nil
}

// LoadSessionStart returns the recorded session start, or the zero time.
func LoadSessionStart(db *pebble.DB) time.Time {
	val, closer, err := db.Get([]byte(SessionKey))
	if err != nil {
		return time.Time{}
	}
	defer closer.Close()

	ts, err := strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, ts)
}
