package canonical

import "strings"

// Record is a client record in the canonical nested shape, e.g.
// {"company": {"name": "Acme"}, "mrr": 1500}. Fields are addressed by
// dot path ("company.name"); flat paths ("mrr") address top-level keys.
type Record map[string]any

func (r Record) Get(path string) (any, bool) {
	if r == nil {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current any = map[string]any(r)
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok := node[segment]
		if !ok || value == nil {
			return nil, false
		}
		current = value
	}
	return current, true
}

// Set writes value at the dot path, creating intermediate objects on demand.
func (r Record) Set(path string, value any) {
	segments := strings.Split(path, ".")
	node := map[string]any(r)
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

func (r Record) Has(path string) bool {
	_, ok := r.Get(path)
	return ok
}

func (r Record) Clone() Record {
	return Record(cloneMap(map[string]any(r)))
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		if nested, ok := value.(map[string]any); ok {
			dst[key] = cloneMap(nested)
			continue
		}
		dst[key] = value
	}
	return dst
}
