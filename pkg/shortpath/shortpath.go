// Package shortpath expands Windows 8.3 short path components (PROGRA~1) into
// their long names by matching filesystem identities inside the already
// expanded parent directory.
package shortpath

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/saworbit/pathkeeper/internal/platform"
)

// shortMarker is the character every generated 8.3 alias carries. Paths
// without it are assumed to contain only long names.
const shortMarker = "~"

// Identity is the (device, serial) pair of a filesystem entry, read without
// following a final symlink. A zero field means the platform did not supply
// real identity information.
type Identity struct {
	Device uint64
	Serial uint64
}

// Valid reports whether the identity can be compared against another.
func (id Identity) Valid() bool {
	return id.Device != 0 && id.Serial != 0
}

func (id Identity) String() string {
	return fmt.Sprintf("%d/%d", id.Device, id.Serial)
}

// FS is the pair of platform primitives the expander depends on.
type FS interface {
	// Identity returns the identity of path without following symlinks.
	Identity(path string) (Identity, error)
	// ReadDirNames lists the children of dir in native enumeration order.
	ReadDirNames(dir string) ([]string, error)
}

// Tracer receives one human-readable line per expansion step.
type Tracer interface {
	Trace(line string)
}

// TracerFunc adapts a plain function to Tracer.
type TracerFunc func(line string)

// Trace calls f(line).
func (f TracerFunc) Trace(line string) { f(line) }

type nopTracer struct{}

func (nopTracer) Trace(string) {}

// Outcome classifies how a single component was handled.
type Outcome int

const (
	// Skipped components carry no short marker and were never looked up.
	Skipped Outcome = iota
	// Matched components were replaced by the sibling sharing their identity.
	Matched
	// NoMatch means the directory was scanned without finding the identity.
	NoMatch
	// NoIdentity means the candidate itself had no usable identity.
	NoIdentity
	// ListFailed means the parent directory could not be enumerated.
	ListFailed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Matched:
		return "matched"
	case NoMatch:
		return "no_match"
	case NoIdentity:
		return "no_identity"
	case ListFailed:
		return "list_failed"
	default:
		return "unknown"
	}
}

// ComponentResult is the result of expanding one component. Name is always a
// usable component: the long name on Matched, the input otherwise.
type ComponentResult struct {
	Name    string
	Outcome Outcome
	Err     error
}

// Route records which branch of the entry gate handled a path.
type Route int

const (
	// RoutePlatformNoop: the platform has no 8.3 names, the path was only made absolute.
	RoutePlatformNoop Route = iota
	// RouteFastPath: the path had no '~' and was returned without any lookup.
	RouteFastPath
	// RouteWalked: the path was expanded component by component.
	RouteWalked
)

func (r Route) String() string {
	switch r {
	case RoutePlatformNoop:
		return "platform_noop"
	case RouteFastPath:
		return "fast_path"
	case RouteWalked:
		return "walked"
	default:
		return "unknown"
	}
}

// Observer is notified of every component outcome and every completed
// expansion. It must not block.
type Observer interface {
	ObserveComponent(Outcome)
	ObserveExpand(route Route, start time.Time)
}

type nopObserver struct{}

func (nopObserver) ObserveComponent(Outcome)       {}
func (nopObserver) ObserveExpand(Route, time.Time) {}

// Expander holds immutable configuration only and is safe for concurrent use.
type Expander struct {
	fs         FS
	tracer     Tracer
	observer   Observer
	shortNames bool
}

// Option configures an Expander.
type Option func(*Expander)

// WithFS replaces the operating system primitives.
func WithFS(fs FS) Option {
	return func(e *Expander) { e.fs = fs }
}

// WithTracer sets the diagnostic sink.
func WithTracer(t Tracer) Option {
	return func(e *Expander) { e.tracer = t }
}

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option {
	return func(e *Expander) { e.observer = o }
}

// WithShortNames overrides whether the platform is treated as one that hands
// out 8.3 names. Defaults to platform.ShortNames.
func WithShortNames(enabled bool) Option {
	return func(e *Expander) { e.shortNames = enabled }
}

// New returns an Expander backed by the operating system unless overridden.
func New(opts ...Option) *Expander {
	e := &Expander{
		fs:         OSFS{},
		tracer:     nopTracer{},
		observer:   nopObserver{},
		shortNames: platform.ShortNames,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = nopTracer{}
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	return e
}

var defaultExpander = New()

// ExpandShortPaths expands path with the operating system primitives and no
// tracing. See Expander.Expand.
func ExpandShortPaths(path string) (string, error) {
	return defaultExpander.Expand(path)
}

// Expand returns the absolute, cleaned form of path with every determinable
// 8.3 component replaced by its long name. Only the failure to make path
// absolute is returned as an error; components that cannot be expanded are
// left as they are.
//
// Paths containing no '~' are never inspected. Short names without '~' exist
// in principle but are not expanded.
func (e *Expander) Expand(path string) (string, error) {
	start := time.Now()

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	if !e.shortNames {
		e.observer.ObserveExpand(RoutePlatformNoop, start)
		return abs, nil
	}

	e.tracef("expanding short paths in %s", abs)
	if !strings.Contains(abs, shortMarker) {
		e.trace("no short components, leaving path as is")
		e.observer.ObserveExpand(RouteFastPath, start)
		return abs, nil
	}

	expanded := e.expandRecursive(abs)
	e.observer.ObserveExpand(RouteWalked, start)
	return expanded, nil
}

// expandRecursive expands the parent of path before its last component, so
// that every directory scan happens inside an already expanded directory.
func (e *Expander) expandRecursive(path string) string {
	parent := filepath.Dir(path)
	if parent == path {
		return path
	}
	base := filepath.Base(path)

	dir := e.expandRecursive(parent)
	e.tracef("dir: %s", dir)
	e.tracef("base: %s", base)

	if !strings.Contains(base, shortMarker) {
		e.trace("component is not a short name")
		e.observer.ObserveComponent(Skipped)
		return filepath.Join(dir, base)
	}

	res := e.ExpandComponent(dir, base)
	return filepath.Join(dir, res.Name)
}

// ExpandComponent looks for the entry of dir sharing the identity of
// dir/short. The first match in enumeration order wins. It never fails; every
// outcome other than Matched returns short unchanged.
func (e *Expander) ExpandComponent(dir, short string) ComponentResult {
	res := e.expandComponent(dir, short)
	e.observer.ObserveComponent(res.Outcome)
	return res
}

func (e *Expander) expandComponent(dir, short string) ComponentResult {
	e.tracef("expanding short path component %s", short)

	target, err := e.probe(filepath.Join(dir, short))
	if err != nil {
		e.tracef("no identity for %s: %v", short, err)
		return ComponentResult{Name: short, Outcome: NoIdentity, Err: err}
	}
	e.tracef("dev/inode: %s", target)

	children, err := e.fs.ReadDirNames(dir)
	if err != nil {
		e.tracef("error reading directory %s: %v", dir, err)
		return ComponentResult{Name: short, Outcome: ListFailed, Err: err}
	}

	for _, child := range children {
		e.tracef("considering child %s", child)
		id, err := e.probe(filepath.Join(dir, child))
		if err != nil {
			e.tracef("skipping child %s: %v", child, err)
			continue
		}
		e.tracef("child dev/inode: %s", id)
		if id == target {
			e.tracef("found a match: %s", child)
			return ComponentResult{Name: child, Outcome: Matched}
		}
	}

	e.trace("no match found, keeping original component")
	return ComponentResult{Name: short, Outcome: NoMatch}
}

// probe returns the identity of path, or an error when the lookup failed or
// produced a zero identity.
func (e *Expander) probe(path string) (Identity, error) {
	id, err := e.fs.Identity(path)
	if err != nil {
		return Identity{}, err
	}
	if !id.Valid() {
		return Identity{}, fmt.Errorf("%s: %w", path, ErrNoIdentity)
	}
	return id, nil
}

func (e *Expander) trace(line string) {
	e.tracer.Trace(line)
}

func (e *Expander) tracef(format string, args ...any) {
	if _, ok := e.tracer.(nopTracer); ok {
		return
	}
	e.tracer.Trace(fmt.Sprintf(format, args...))
}
