// Package snapshotstore holds checksum-validated snapshots of graph state,
// keyed by rollback-point ID, enforcing a size ceiling and maintaining a
// reverse index for cascade deletes. Grounded on db/bolt/bolt.go for the
// optional on-disk persistence backend and on the tagged-envelope
// serialization idiom of semantic/multipart.go and db/couchdb_jsonld.go.
package snapshotstore

import (
	"encoding/json"
	"time"
)

// Canonical serialization tags non-JSON-native types so they round-trip
// through JSON without losing identity (sets, timestamps). Serialize never
// emits the "Map" tag; Deserialize still accepts it.
const (
	tagMap  = "Map"
	tagSet  = "Set"
	tagDate = "Date"
)

type taggedValue struct {
	Type string      `json:"__type"`
	Data interface{} `json:"data"`
}

// orderedMap holds keys in insertion order. Serialize does not use it: Go
// maps are written as plain JSON objects.
type orderedMap struct {
	keys   []string
	values map[string]interface{}
}

// Set marks a value as belonging to the canonical "Set" container: a slice
// with de-duplicated, order-preserved membership.
type Set []interface{}

// Serialize produces the canonical tagged JSON form of v. Set values are
// tagged "Set" and time.Time values are tagged "Date" with millisecond epoch
// data. map[string]interface{} values are not tagged: they are written as
// plain JSON objects (encoding/json sorts their keys).
func Serialize(v interface{}) ([]byte, error) {
	tagged := tag(v)
	return json.Marshal(tagged)
}

func tag(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return taggedValue{Type: tagDate, Data: t.UnixMilli()}
	case *time.Time:
		if t == nil {
			return nil
		}
		return taggedValue{Type: tagDate, Data: t.UnixMilli()}
	case Set:
		items := make([]interface{}, len(t))
		for i, item := range t {
			items[i] = tag(item)
		}
		return taggedValue{Type: tagSet, Data: items}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = tag(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = tag(val)
		}
		return out
	default:
		return v
	}
}

// Deserialize restores a value produced by Serialize, re-materializing
// tagged containers back into their Go-native shapes.
func Deserialize(data []byte) (interface{}, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return untag(raw), nil
}

func untag(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if typeName, ok := t["__type"].(string); ok {
			data := t["data"]
			switch typeName {
			case tagDate:
				if ms, ok := data.(float64); ok {
					return time.UnixMilli(int64(ms)).UTC()
				}
			case tagSet:
				if arr, ok := data.([]interface{}); ok {
					out := make(Set, len(arr))
					for i, item := range arr {
						out[i] = untag(item)
					}
					return out
				}
			case tagMap:
				if arr, ok := data.([]interface{}); ok {
					out := make(map[string]interface{}, len(arr))
					for _, pairRaw := range arr {
						if pair, ok := pairRaw.(map[string]interface{}); ok {
							if k, ok := pair["key"].(string); ok {
								out[k] = untag(pair["value"])
							}
						}
					}
					return out
				}
			}
		}
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = untag(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = untag(val)
		}
		return out
	default:
		return v
	}
}
