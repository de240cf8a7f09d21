package diffengine

// GetAtPath reads the value addressed by path out of v, using the same path
// grammar ApplyDiff writes with. It returns false if any segment along the
// way is absent or of the wrong shape.
func GetAtPath(v interface{}, path string) (interface{}, bool) {
	segments := parsePath(path)
	if len(segments) == 0 {
		return v, v != nil
	}
	return getAt(v, segments)
}

func getAt(node interface{}, segments []parseSegment) (interface{}, bool) {
	seg := segments[0]
	last := len(segments) == 1

	if seg.isIndex {
		arr, ok := node.([]interface{})
		if !ok || seg.index < 0 || seg.index >= len(arr) {
			return nil, false
		}
		if last {
			return arr[seg.index], arr[seg.index] != nil
		}
		return getAt(arr[seg.index], segments[1:])
	}

	m, ok := node.(map[string]interface{})
	if !ok {
		return nil, false
	}
	child, exists := m[seg.key]
	if !exists {
		return nil, false
	}
	if last {
		return child, true
	}
	return getAt(child, segments[1:])
}
