package store

import (
	"encoding/json"
	"fmt"
)

// Match reports whether a decoded document satisfies every filter.
// Values are compared by their string form; the fields filtered in this
// service (code, customerUid, restaurantId) are all strings.
func Match(doc map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		got, ok := doc[f.Field]
		if !ok {
			return false, nil
		}
		switch f.Op {
		case "==":
			if fmt.Sprint(got) != fmt.Sprint(f.Value) {
				return false, nil
			}
		case "in":
			vals, ok := f.Value.([]string)
			if !ok {
				return false, fmt.Errorf("%w: in wants []string", ErrBadFilter)
			}
			found := false
			for _, v := range vals {
				if fmt.Sprint(got) == v {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: %q", ErrBadFilter, f.Op)
		}
	}
	return true, nil
}

// MergeID rewrites the payload with the document id under "id".
func MergeID(data []byte, id string) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	m["id"] = id
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

// Decode unmarshals a document into a typed entity.
func Decode[T any](doc Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", doc.ID, err)
	}
	return v, nil
}

// DecodeAll unmarshals a full snapshot.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := Decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
