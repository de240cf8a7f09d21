// Package identity computes canonical relationship identifiers. It is a
// pure function layer with no I/O, following the construction style of
// semantic.SemanticThing and the ActionRepository interface in graph/dag.go:
// callers pass data in, get a deterministic value back, nothing is looked up
// from hidden global state.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/memento-graph/memento/internal/graphmodel"
)

const (
	prefixStructural = "time-rel_"
	prefixSession    = "rel_session_"
	prefixPerformance = "rel_perf_"
	prefixDefault    = "rel_"
)

// CanonicalRelationshipID computes the deterministic ID for rel per spec §3.
// It never fails: unexpected shapes fall back to a deterministic RAW: form
// rather than returning an error, per the §4.1 contract.
func CanonicalRelationshipID(rel *graphmodel.Relationship) string {
	if rel == nil {
		return hashWith(prefixDefault, "RAW:<nil>")
	}

	switch rel.Family() {
	case graphmodel.FamilySession:
		seq := normalizeSequence(rel.SequenceNumber)
		base := join(rel.SessionID, fmt.Sprintf("%d", seq), rel.Type)
		return hashWith(prefixSession, base)

	case graphmodel.FamilyPerformance:
		base := join(rel.FromEntityID, rel.ToEntityID, rel.Type, rel.MetricID, rel.Environment, rel.Scenario)
		return hashWith(prefixPerformance, base)

	case graphmodel.FamilyStructural:
		base := join(rel.FromEntityID, canonicalTargetKey(rel), rel.Type)
		return hashWith(prefixStructural, withQualifiers(base, rel.Qualifiers))

	default: // code, documentation, testing and anything else
		base := join(rel.FromEntityID, canonicalTargetKey(rel), rel.Type)
		return hashWith(prefixDefault, withQualifiers(base, rel.Qualifiers))
	}
}

// normalizeSequence coerces a non-integer or negative sequence number to 0.
// Go's type system already rules out non-integer input; this only guards
// against negative values, as spec §4.1 requires.
func normalizeSequence(seq int) int {
	if seq < 0 {
		return 0
	}
	return seq
}

// canonicalTargetKey resolves a relationship's target to one of the forms in
// spec §3, preferring a structured ToRef over parsing the raw ToEntityID.
func canonicalTargetKey(rel *graphmodel.Relationship) string {
	if rel.ToRef != nil {
		switch rel.ToRef.Kind {
		case graphmodel.TargetFS:
			return fmt.Sprintf("FS:%s:%s", rel.ToRef.File, rel.ToRef.Symbol)
		case graphmodel.TargetExt:
			return fmt.Sprintf("EXT:%s", rel.ToRef.Name)
		case graphmodel.TargetKind:
			return fmt.Sprintf("KIND:%s:%s", rel.ToRef.File, rel.ToRef.Name)
		case graphmodel.TargetImp:
			return fmt.Sprintf("IMP:%s:%s", rel.ToRef.Module, rel.ToRef.Name)
		case graphmodel.TargetEnt:
			return fmt.Sprintf("ENT:%s", rel.ToRef.ID)
		case graphmodel.TargetRaw:
			return fmt.Sprintf("RAW:%s", rel.ToRef.Raw)
		}
	}
	if rel.ToEntityID == "" {
		return "RAW:"
	}
	return fmt.Sprintf("ENT:%s", rel.ToEntityID)
}

// withQualifiers appends sorted, deduplicated qualifier values to base so
// that two logically equal edges hash identically regardless of the input
// ordering of their qualifier lists (spec §4.1).
func withQualifiers(base string, qualifiers map[string][]string) string {
	if len(qualifiers) == 0 {
		return base
	}
	keys := make([]string, 0, len(qualifiers))
	for k := range qualifiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(base)
	for _, k := range keys {
		values := append([]string(nil), qualifiers[k]...)
		sort.Strings(values)
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strings.Join(values, ","))
	}
	return b.String()
}

func join(parts ...string) string {
	return strings.Join(parts, "|")
}

func hashWith(prefix, base string) string {
	sum := sha1.Sum([]byte(base))
	return prefix + hex.EncodeToString(sum[:])
}
