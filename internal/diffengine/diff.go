// Package diffengine produces and applies path-addressed diffs between two
// arbitrary structured values built from map[string]interface{}, []interface{}
// and scalars (the shape every JSON-like value in this system takes once
// deserialized). There is no generic deep-diff library in the retrieval
// pack, so this is new code; it follows the recursive-traversal idiom of
// graph/dag.go and the multi-type dispatch style of db/repository/composite.go.
package diffengine

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/memento-graph/memento/internal/graphmodel"
)

// Options tunes diff generation and comparison.
type Options struct {
	MaxDepth          int
	IgnoreProperties  map[string]bool
	CustomComparators map[string]func(a, b interface{}) bool
}

// DefaultOptions matches spec §4.2's documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxDepth: 10,
		IgnoreProperties: map[string]bool{
			"__timestamp": true,
			"__version":   true,
			"__metadata":  true,
		},
	}
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return 10
	}
	return o.MaxDepth
}

func (o Options) ignored(key string) bool {
	return o.IgnoreProperties != nil && o.IgnoreProperties[key]
}

// GenerateObjectDiff produces the ordered set of DiffEntry values that turn a
// into b. Traversal is depth-first: map keys are visited in sorted order and
// each key's subtree is fully diffed before the next key; siblings are not
// all compared before recursion begins. The result is then stably sorted by
// operation priority.
func GenerateObjectDiff(a, b interface{}, opts Options) []graphmodel.DiffEntry {
	var out []graphmodel.DiffEntry
	diffValue("", a, b, opts, 0, &out)
	sortEntries(out)
	return out
}

func diffValue(path string, a, b interface{}, opts Options, depth int, out *[]graphmodel.DiffEntry) {
	if depth > opts.maxDepth() {
		return
	}

	if cmp, ok := customComparator(a, b, opts); ok {
		if !cmp {
			*out = append(*out, graphmodel.DiffEntry{Path: path, Operation: graphmodel.DiffUpdate, OldValue: a, NewValue: b})
		}
		return
	}

	aPresent := a != nil
	bPresent := b != nil

	if !aPresent && !bPresent {
		return
	}
	if !aPresent && bPresent {
		*out = append(*out, graphmodel.DiffEntry{Path: path, Operation: graphmodel.DiffCreate, NewValue: b})
		return
	}
	if aPresent && !bPresent {
		*out = append(*out, graphmodel.DiffEntry{Path: path, Operation: graphmodel.DiffDelete, OldValue: a})
		return
	}

	aMap, aIsMap := asMap(a)
	bMap, bIsMap := asMap(b)
	if aIsMap && bIsMap {
		diffMaps(path, aMap, bMap, opts, depth, out)
		return
	}

	aArr, aIsArr := asSlice(a)
	bArr, bIsArr := asSlice(b)
	if aIsArr && bIsArr {
		diffSlices(path, aArr, bArr, opts, depth, out)
		return
	}

	// Different root shapes at the same path, or two scalars: single update.
	if !valuesEqual(a, b, opts) {
		*out = append(*out, graphmodel.DiffEntry{Path: path, Operation: graphmodel.DiffUpdate, OldValue: a, NewValue: b})
	}
}

func diffMaps(path string, a, b map[string]interface{}, opts Options, depth int, out *[]graphmodel.DiffEntry) {
	keys := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		if !opts.ignored(k) {
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		childPath := joinPath(path, k)
		diffValue(childPath, a[k], b[k], opts, depth+1, out)
	}
}

func diffSlices(path string, a, b []interface{}, opts Options, depth int, out *[]graphmodel.DiffEntry) {
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	for i := 0; i < max; i++ {
		childPath := fmt.Sprintf("%s[%d]", path, i)
		var av, bv interface{}
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		diffValue(childPath, av, bv, opts, depth+1, out)
	}
}

func customComparator(a, b interface{}, opts Options) (equal bool, applied bool) {
	if len(opts.CustomComparators) == 0 {
		return false, false
	}
	name := constructorName(a)
	if name == "" {
		name = constructorName(b)
	}
	if cmp, ok := opts.CustomComparators[name]; ok {
		return cmp(a, b), true
	}
	if cmp, ok := opts.CustomComparators["*"]; ok {
		return cmp(a, b), true
	}
	return false, false
}

func constructorName(v interface{}) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	return t.String()
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

// sortEntries orders by operation priority (delete, update, move, create) so
// that a caller applying them in slice order already gets the right priority;
// entries with equal priority preserve their relative discovery order.
func sortEntries(entries []graphmodel.DiffEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Operation < entries[j].Operation
	})
}

// DeepEquals reports whether a and b are equal under the same rules diffing
// uses: ignored properties are skipped, date-like values compare by epoch ms,
// and collections compare order-sensitively.
func DeepEquals(a, b interface{}, opts Options) bool {
	entries := GenerateObjectDiff(a, b, opts)
	return len(entries) == 0
}

func valuesEqual(a, b interface{}, opts Options) bool {
	if at, aok := asTimestamp(a); aok {
		if bt, bok := asTimestamp(b); bok {
			return at == bt
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.UnixMilli() == bt.UnixMilli()
		}
	}
	return reflect.DeepEqual(a, b)
}

// asTimestamp recognizes the canonical {__type: "Date", data: <epoch ms>}
// tagged form used by internal/snapshotstore's serialization.
func asTimestamp(v interface{}) (int64, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return 0, false
	}
	if m["__type"] != "Date" {
		return 0, false
	}
	switch d := m["data"].(type) {
	case int64:
		return d, true
	case float64:
		return int64(d), true
	}
	return 0, false
}

// Complexity classifies a diff's size per spec §4.2.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Summary is the result of SummarizeDiff.
type Summary struct {
	Complexity Complexity
	RootPaths  []string
	Count      int
}

// SummarizeDiff classifies a diff's complexity and extracts the root path of
// every change (the first path segment before any '.' or '[').
func SummarizeDiff(entries []graphmodel.DiffEntry) Summary {
	s := Summary{Count: len(entries)}
	switch {
	case len(entries) <= 20:
		s.Complexity = ComplexityLow
	case len(entries) <= 100:
		s.Complexity = ComplexityMedium
	default:
		s.Complexity = ComplexityHigh
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		root := rootSegment(e.Path)
		if !seen[root] {
			seen[root] = true
			s.RootPaths = append(s.RootPaths, root)
		}
	}
	sort.Strings(s.RootPaths)
	return s
}

func rootSegment(path string) string {
	if path == "" {
		return ""
	}
	if idx := strings.IndexAny(path, ".["); idx >= 0 {
		return path[:idx]
	}
	return path
}

// parseSegment describes one step of a parsed path: either a map key or an
// array index.
type parseSegment struct {
	key     string
	index   int
	isIndex bool
}

func parsePath(path string) []parseSegment {
	if path == "" {
		return nil
	}
	var segments []parseSegment
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, parseSegment{key: current.String()})
			current.Reset()
		}
	}
	i := 0
	for i < len(path) {
		c := path[i]
		switch {
		case c == '.':
			flush()
			i++
		case c == '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				// malformed; treat remainder as a literal key
				current.WriteString(path[i:])
				i = len(path)
				continue
			}
			idxStr := path[i+1 : i+end]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				segments = append(segments, parseSegment{key: idxStr})
			} else {
				segments = append(segments, parseSegment{index: idx, isIndex: true})
			}
			i += end + 1
		default:
			current.WriteByte(c)
			i++
		}
	}
	flush()
	return segments
}
