package diffengine

import (
	"github.com/memento-graph/memento/internal/graphmodel"
)

// ApplyDiff applies entries to a deep clone of source in priority order
// (delete, update, move, create) and returns the new value; source itself is
// never mutated.
func ApplyDiff(source interface{}, entries []graphmodel.DiffEntry) interface{} {
	result := deepClone(source)

	ordered := append([]graphmodel.DiffEntry(nil), entries...)
	sortEntries(ordered)

	for _, e := range ordered {
		result = applyEntry(result, e)
	}
	return result
}

func applyEntry(root interface{}, e graphmodel.DiffEntry) interface{} {
	segments := parsePath(e.Path)
	if len(segments) == 0 {
		switch e.Operation {
		case graphmodel.DiffDelete:
			return nil
		default:
			return e.NewValue
		}
	}

	switch e.Operation {
	case graphmodel.DiffDelete:
		deleteAt(root, segments)
		return root
	case graphmodel.DiffCreate, graphmodel.DiffUpdate, graphmodel.DiffMove:
		return setAt(root, segments, e.NewValue)
	default:
		return root
	}
}

// setAt auto-vivifies missing intermediate containers and returns the
// (possibly replaced) root.
func setAt(root interface{}, segments []parseSegment, value interface{}) interface{} {
	if root == nil {
		root = containerFor(segments[0])
	}
	return navigateAndSet(root, segments, value)
}

func containerFor(seg parseSegment) interface{} {
	if seg.isIndex {
		return []interface{}{}
	}
	return map[string]interface{}{}
}

// navigateAndSet returns the (possibly reallocated) node after writing value
// at the path described by segments, so that array growth from append
// propagates back through the caller into the parent container.
func navigateAndSet(node interface{}, segments []parseSegment, value interface{}) interface{} {
	seg := segments[0]
	last := len(segments) == 1

	if seg.isIndex {
		arr, ok := node.([]interface{})
		if !ok || seg.index < 0 {
			return node // type mismatch or negative index: no-op per spec §4.2
		}
		for len(arr) <= seg.index {
			arr = append(arr, nil)
		}
		if last {
			arr[seg.index] = value
		} else {
			child := arr[seg.index]
			if child == nil {
				child = containerFor(segments[1])
			}
			arr[seg.index] = navigateAndSet(child, segments[1:], value)
		}
		return arr
	}

	m, ok := node.(map[string]interface{})
	if !ok {
		return node
	}
	if last {
		m[seg.key] = value
		return m
	}
	child, exists := m[seg.key]
	if !exists || child == nil {
		child = containerFor(segments[1])
	}
	m[seg.key] = navigateAndSet(child, segments[1:], value)
	return m
}

// deleteAt is a no-op when the path doesn't exist, per spec §4.2.
func deleteAt(root interface{}, segments []parseSegment) {
	if root == nil {
		return
	}
	seg := segments[0]
	last := len(segments) == 1

	if seg.isIndex {
		arr, ok := root.([]interface{})
		if !ok || seg.index < 0 || seg.index >= len(arr) {
			return
		}
		if last {
			arr[seg.index] = nil
			return
		}
		deleteAt(arr[seg.index], segments[1:])
		return
	}

	m, ok := root.(map[string]interface{})
	if !ok {
		return
	}
	child, exists := m[seg.key]
	if !exists {
		return
	}
	if last {
		delete(m, seg.key)
		return
	}
	deleteAt(child, segments[1:])
}

func deepClone(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = deepClone(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepClone(val)
		}
		return out
	default:
		return v
	}
}
