// Command mixed-spellings writes one file through its long path and then
// through its 8.3 alias. Run it under `pathkeeper record` to see both writes
// land on a single canonical key.
package main

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/saworbit/pathkeeper/internal/logging"
)

func main() {
	log := logging.L()
	defer func() { _ = logging.Sync() }()

	dir := "Build Output Directory"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatal("create directory", zap.Error(err))
	}
	long := filepath.Join(dir, "Status Report.log")

	log.Info("writing through the long path", zap.String("path", long))
	if err := os.WriteFile(long, []byte("INIT: System OK"), 0o644); err != nil {
		log.Fatal("write", zap.Error(err))
	}

	time.Sleep(time.Second)

	short, err := shortName(long)
	if err != nil {
		log.Warn("no short alias available, reusing the long path", zap.Error(err))
		short = long
	}
	log.Info("writing through the short alias", zap.String("path", short))
	if err := os.WriteFile(short, []byte("ERROR: Connection Lost"), 0o644); err != nil {
		log.Fatal("write", zap.Error(err))
	}
}
