package bench

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/saworbit/pathkeeper/pkg/cas"
	"github.com/saworbit/pathkeeper/pkg/recorder"
	"github.com/saworbit/pathkeeper/pkg/shortpath"
)

// benchmarkEventPipeline journals b.N events and drains them through the
// processor, reporting end-to-end throughput. distinct controls how many
// different contents are written, so a small value exercises CAS dedup.
func benchmarkEventPipeline(b *testing.B, distinct int, shortNames bool) {
	dir := b.TempDir()
	db, err := pebble.Open(filepath.Join(dir, "state"), &pebble.Options{})
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	store, err := cas.NewStore(db, "sha256")
	if err != nil {
		b.Fatal(err)
	}
	root := filepath.Join(dir, "watch")
	expander := shortpath.New(shortpath.WithShortNames(shortNames))
	proc, err := recorder.NewProcessor(db, store, expander, root, time.Millisecond, nil)
	if err != nil {
		b.Fatal(err)
	}
	journal := recorder.NewJournal(db)

	b.ReportAllocs()
	b.ResetTimer()
	start := time.Now()
	for i := 0; i < b.N; i++ {
		path := filepath.Join(root, fmt.Sprintf("file-%d.txt", i%16))
		data := []byte(fmt.Sprintf("content %d", i%distinct))
		if err := journal.LogEvent("write", path, data); err != nil {
			b.Fatal(err)
		}
	}
	if _, err := proc.Drain(); err != nil {
		b.Fatal(err)
	}
	elapsed := time.Since(start)
	if elapsed == 0 {
		elapsed = time.Nanosecond
	}
	b.ReportMetric(float64(b.N)/elapsed.Seconds(), "events/sec")
}

func BenchmarkPipelineUniqueContent(b *testing.B) {
	benchmarkEventPipeline(b, 1<<30, false)
}

func BenchmarkPipelineDedupContent(b *testing.B) {
	benchmarkEventPipeline(b, 4, false)
}

// Paths carry no '~', so this measures the fast path of the expander.
func BenchmarkPipelineShortNameCheck(b *testing.B) {
	benchmarkEventPipeline(b, 4, true)
}
