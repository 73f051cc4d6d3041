//go:build !windows

package shortpath

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

type fakeFS struct {
	ids     map[string]Identity
	idErr   map[string]error
	dirs    map[string][]string
	listErr map[string]error
	calls   []string
}

func (f *fakeFS) Identity(path string) (Identity, error) {
	f.calls = append(f.calls, "identity "+path)
	if err, ok := f.idErr[path]; ok {
		return Identity{}, err
	}
	id, ok := f.ids[path]
	if !ok {
		return Identity{}, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrNotExist}
	}
	return id, nil
}

func (f *fakeFS) ReadDirNames(dir string) ([]string, error) {
	f.calls = append(f.calls, "list "+dir)
	if err, ok := f.listErr[dir]; ok {
		return nil, err
	}
	names, ok := f.dirs[dir]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrNotExist}
	}
	return names, nil
}

type recordingTracer struct {
	lines []string
}

func (r *recordingTracer) Trace(line string) { r.lines = append(r.lines, line) }

func (r *recordingTracer) contains(sub string) bool {
	for _, l := range r.lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

type recordingObserver struct {
	outcomes []Outcome
	routes   []Route
}

func (r *recordingObserver) ObserveComponent(o Outcome) { r.outcomes = append(r.outcomes, o) }
func (r *recordingObserver) ObserveExpand(route Route, _ time.Time) {
	r.routes = append(r.routes, route)
}

// programFiles models C:\Program Files\Sub Directory with the aliases
// PROGRA~1 and SUBDIR~1, rooted at / for the host path rules.
func programFiles() *fakeFS {
	return &fakeFS{
		ids: map[string]Identity{
			"/PROGRA~1":                      {Device: 1, Serial: 10},
			"/Program Files":                 {Device: 1, Serial: 10},
			"/Windows":                       {Device: 1, Serial: 11},
			"/Program Files/SUBDIR~1":        {Device: 1, Serial: 20},
			"/Program Files/Sub Directory":   {Device: 1, Serial: 20},
			"/Program Files/Other Directory": {Device: 1, Serial: 21},
		},
		dirs: map[string][]string{
			"/":              {"Windows", "Program Files"},
			"/Program Files": {"Other Directory", "Sub Directory"},
		},
	}
}

func newTestExpander(fsys FS, opts ...Option) *Expander {
	return New(append([]Option{WithFS(fsys), WithShortNames(true)}, opts...)...)
}

func mustExpand(t *testing.T, e *Expander, path string) string {
	t.Helper()
	got, err := e.Expand(path)
	if err != nil {
		t.Fatalf("Expand(%q) error: %v", path, err)
	}
	return got
}

func TestExpandRoundTrip(t *testing.T) {
	fsys := &fakeFS{
		ids: map[string]Identity{
			"/data/LONGNA~1": {Device: 3, Serial: 42},
			"/data/aaa":      {Device: 3, Serial: 7},
			"/data/LongName": {Device: 3, Serial: 42},
		},
		dirs: map[string][]string{"/data": {"aaa", "LongName"}},
	}

	got := mustExpand(t, newTestExpander(fsys), "/data/LONGNA~1")
	if got != "/data/LongName" {
		t.Fatalf("Expand() = %q, want %q", got, "/data/LongName")
	}
}

func TestExpandNested(t *testing.T) {
	fsys := programFiles()

	got := mustExpand(t, newTestExpander(fsys), "/PROGRA~1/SUBDIR~1/tool.exe")
	if want := "/Program Files/Sub Directory/tool.exe"; got != want {
		t.Fatalf("Expand() = %q, want %q", got, want)
	}

	for _, c := range fsys.calls {
		if strings.HasPrefix(c, "list /PROGRA~1") {
			t.Fatalf("scanned the short form of an ancestor: %q", c)
		}
	}
	if !reflect.DeepEqual(fsys.calls[:4], []string{
		"identity /PROGRA~1",
		"list /",
		"identity /Windows",
		"identity /Program Files",
	}) {
		t.Fatalf("root component not resolved first, calls: %v", fsys.calls)
	}
}

func TestExpandDepthOrdering(t *testing.T) {
	fsys := &fakeFS{
		ids: map[string]Identity{
			"/top/MIDDLE~1":   {Device: 1, Serial: 7},
			"/top/Middle Dir": {Device: 1, Serial: 7},
		},
		dirs: map[string][]string{"/top": {"Middle Dir"}},
	}

	got := mustExpand(t, newTestExpander(fsys), "/top/MIDDLE~1/leaf")
	if want := "/top/Middle Dir/leaf"; got != want {
		t.Fatalf("Expand() = %q, want %q", got, want)
	}

	want := []string{
		"identity /top/MIDDLE~1",
		"list /top",
		"identity /top/Middle Dir",
	}
	if !reflect.DeepEqual(fsys.calls, want) {
		t.Fatalf("calls = %v, want %v", fsys.calls, want)
	}
}

func TestExpandPlatformNoop(t *testing.T) {
	fsys := programFiles()
	e := New(WithFS(fsys), WithShortNames(false))

	got := mustExpand(t, e, "/PROGRA~1/../PROGRA~1/./SUBDIR~1")
	if want := "/PROGRA~1/SUBDIR~1"; got != want {
		t.Fatalf("Expand() = %q, want %q", got, want)
	}
	if len(fsys.calls) != 0 {
		t.Fatalf("expected no filesystem access, got %v", fsys.calls)
	}
}

func TestExpandFastPath(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "absolute", in: "/Program Files/Sub Directory", want: "/Program Files/Sub Directory"},
		{name: "dot segments", in: "/a/./b/../c", want: "/a/c"},
		{name: "relative", in: "rel/dir", want: filepath.Join(wd, "rel/dir")},
		{name: "root", in: "/", want: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if strings.Contains(tt.want, "~") {
				t.Skip("working directory contains a short marker")
			}
			fsys := programFiles()
			obs := &recordingObserver{}
			got := mustExpand(t, newTestExpander(fsys, WithObserver(obs)), tt.in)
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if len(fsys.calls) != 0 {
				t.Errorf("expected zero probes, got %v", fsys.calls)
			}
			if !reflect.DeepEqual(obs.routes, []Route{RouteFastPath}) {
				t.Errorf("routes = %v, want fast path", obs.routes)
			}
		})
	}
}

func TestExpandListFailureKeepsComponent(t *testing.T) {
	fsys := programFiles()
	fsys.listErr = map[string]error{"/Program Files": fs.ErrPermission}

	got := mustExpand(t, newTestExpander(fsys), "/PROGRA~1/SUBDIR~1/tool.exe")
	if want := "/Program Files/SUBDIR~1/tool.exe"; got != want {
		t.Fatalf("Expand() = %q, want %q", got, want)
	}
}

func TestExpandNoMatchKeepsComponent(t *testing.T) {
	fsys := &fakeFS{
		ids: map[string]Identity{
			"/data/NOTREA~1": {Device: 3, Serial: 99},
			"/data/sibling":  {Device: 3, Serial: 1},
		},
		dirs: map[string][]string{"/data": {"sibling"}},
	}

	got := mustExpand(t, newTestExpander(fsys), "/data/NOTREA~1")
	if got != "/data/NOTREA~1" {
		t.Fatalf("Expand() = %q, want the component unchanged", got)
	}
}

func TestExpandComponentOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		fs          *fakeFS
		want        string
		wantOutcome Outcome
		wantErr     error
	}{
		{
			name: "match",
			fs: &fakeFS{
				ids:  map[string]Identity{"/d/LONG~1": {1, 5}, "/d/Long": {1, 5}},
				dirs: map[string][]string{"/d": {"Long"}},
			},
			want:        "Long",
			wantOutcome: Matched,
		},
		{
			name:        "candidate missing",
			fs:          &fakeFS{dirs: map[string][]string{"/d": {"Long"}}},
			want:        "LONG~1",
			wantOutcome: NoIdentity,
			wantErr:     fs.ErrNotExist,
		},
		{
			name: "zero serial",
			fs: &fakeFS{
				ids:  map[string]Identity{"/d/LONG~1": {1, 0}, "/d/Long": {1, 0}},
				dirs: map[string][]string{"/d": {"Long"}},
			},
			want:        "LONG~1",
			wantOutcome: NoIdentity,
			wantErr:     ErrNoIdentity,
		},
		{
			name: "zero device",
			fs: &fakeFS{
				ids:  map[string]Identity{"/d/LONG~1": {0, 5}, "/d/Long": {0, 5}},
				dirs: map[string][]string{"/d": {"Long"}},
			},
			want:        "LONG~1",
			wantOutcome: NoIdentity,
			wantErr:     ErrNoIdentity,
		},
		{
			name: "listing denied",
			fs: &fakeFS{
				ids:     map[string]Identity{"/d/LONG~1": {1, 5}},
				listErr: map[string]error{"/d": fs.ErrPermission},
			},
			want:        "LONG~1",
			wantOutcome: ListFailed,
			wantErr:     fs.ErrPermission,
		},
		{
			name: "unreadable child is skipped",
			fs: &fakeFS{
				ids:   map[string]Identity{"/d/LONG~1": {1, 5}, "/d/Long": {1, 5}},
				idErr: map[string]error{"/d/locked": fs.ErrPermission},
				dirs:  map[string][]string{"/d": {"locked", "Long"}},
			},
			want:        "Long",
			wantOutcome: Matched,
		},
		{
			name: "child without identity is skipped",
			fs: &fakeFS{
				ids:  map[string]Identity{"/d/LONG~1": {1, 5}, "/d/zero": {0, 0}, "/d/Long": {1, 5}},
				dirs: map[string][]string{"/d": {"zero", "Long"}},
			},
			want:        "Long",
			wantOutcome: Matched,
		},
		{
			name: "no match",
			fs: &fakeFS{
				ids:  map[string]Identity{"/d/LONG~1": {1, 5}, "/d/Other": {1, 6}},
				dirs: map[string][]string{"/d": {"Other"}},
			},
			want:        "LONG~1",
			wantOutcome: NoMatch,
		},
		{
			name: "same serial on another device",
			fs: &fakeFS{
				ids:  map[string]Identity{"/d/LONG~1": {1, 5}, "/d/Other": {2, 5}},
				dirs: map[string][]string{"/d": {"Other"}},
			},
			want:        "LONG~1",
			wantOutcome: NoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestExpander(tt.fs).ExpandComponent("/d", "LONG~1")
			if res.Name != tt.want {
				t.Errorf("Name = %q, want %q", res.Name, tt.want)
			}
			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v", res.Outcome, tt.wantOutcome)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
			if tt.wantErr == nil && res.Err != nil {
				t.Errorf("unexpected Err = %v", res.Err)
			}
		})
	}
}

func TestExpandComponentFirstMatchWins(t *testing.T) {
	ids := map[string]Identity{
		"/d/DUPLIC~1": {Device: 4, Serial: 8},
		"/d/First":    {Device: 4, Serial: 8},
		"/d/Second":   {Device: 4, Serial: 8},
	}

	for _, order := range [][]string{{"First", "Second"}, {"Second", "First"}} {
		fsys := &fakeFS{ids: ids, dirs: map[string][]string{"/d": order}}
		res := newTestExpander(fsys).ExpandComponent("/d", "DUPLIC~1")
		if res.Name != order[0] {
			t.Errorf("listing %v: got %q, want %q", order, res.Name, order[0])
		}
		if n := len(fsys.calls); n != 3 {
			t.Errorf("listing %v: scan did not stop at first match, calls: %v", order, fsys.calls)
		}
	}
}

func TestExpandIdempotent(t *testing.T) {
	inputs := []string{
		"/PROGRA~1/SUBDIR~1/tool.exe",
		"/PROGRA~1/MISSIN~1/tool.exe",
		"/Windows/System32",
		"/PROGRA~1/./SUBDIR~1/../SUBDIR~1",
	}
	for _, in := range inputs {
		e := newTestExpander(programFiles())
		once := mustExpand(t, e, in)
		twice := mustExpand(t, e, once)
		if once != twice {
			t.Errorf("Expand not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestExpandRootComponent(t *testing.T) {
	if got := newTestExpander(programFiles()).expandRecursive("/"); got != "/" {
		t.Fatalf("expandRecursive(/) = %q", got)
	}
}

func TestExpandTracesSteps(t *testing.T) {
	tracer := &recordingTracer{}
	mustExpand(t, newTestExpander(programFiles(), WithTracer(tracer)), "/PROGRA~1/MISSIN~1")

	for _, want := range []string{
		"expanding short paths in /PROGRA~1/MISSIN~1",
		"dev/inode: 1/10",
		"found a match: Program Files",
		"no identity for MISSIN~1",
	} {
		if !tracer.contains(want) {
			t.Errorf("trace missing %q, got:\n%s", want, strings.Join(tracer.lines, "\n"))
		}
	}
}

func TestExpandObservesOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	mustExpand(t, newTestExpander(programFiles(), WithObserver(obs)), "/PROGRA~1/MISSIN~1/plain")

	wantOutcomes := []Outcome{Matched, NoIdentity, Skipped}
	if !reflect.DeepEqual(obs.outcomes, wantOutcomes) {
		t.Errorf("outcomes = %v, want %v", obs.outcomes, wantOutcomes)
	}
	if !reflect.DeepEqual(obs.routes, []Route{RouteWalked}) {
		t.Errorf("routes = %v, want walked", obs.routes)
	}
}

func TestNilOptionsFallBackToNop(t *testing.T) {
	e := New(WithFS(programFiles()), WithShortNames(true), WithTracer(nil), WithObserver(nil))
	if got := mustExpand(t, e, "/PROGRA~1"); got != "/Program Files" {
		t.Fatalf("Expand() = %q", got)
	}
}

func BenchmarkExpandWalked(b *testing.B) {
	e := newTestExpander(programFiles())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Expand("/PROGRA~1/SUBDIR~1/tool.exe"); err != nil {
			b.Fatal(err)
		}
	}
}
