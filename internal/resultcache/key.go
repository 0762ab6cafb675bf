package resultcache

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// dangerousKeys are stripped from a context map before it contributes to a
// cache key — the same prototype-safety gate evalexpr applies to PROPERTY
// paths: canonicalization strips __proto__/constructor/prototype keys and
// sorts the rest.
var dangerousKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// Key computes the deterministic cache key for (flagName, canonicalized
// ctx): sort keys, concatenate, FNV-1a.
func Key(flagName string, ctx map[string]any) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(flagName))
	_, _ = h.Write([]byte{'|'})
	writeCanonical(h, ctx)
	return fmt.Sprintf("%s:%016x", flagName, h.Sum64())
}

func writeCanonical(h interface{ Write([]byte) (int, error) }, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			if _, skip := dangerousKeys[k]; skip {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = h.Write([]byte(k))
			_, _ = h.Write([]byte{'='})
			writeCanonical(h, t[k])
			_, _ = h.Write([]byte{';'})
		}
	case []any:
		for _, item := range t {
			writeCanonical(h, item)
			_, _ = h.Write([]byte{','})
		}
	default:
		_, _ = h.Write([]byte(fmt.Sprintf("%v", t)))
	}
}
