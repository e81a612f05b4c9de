package settings

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
)

// Separator joins the levels of a flattened settings key.
const Separator = "__"

// NestedChainMap is an ordered list of nested mappings, highest priority
// first. It never merges its layers: sub-mappings are exposed as new chain
// maps over the corresponding sub-maps of every layer.
type NestedChainMap struct {
	maps []map[string]any
	// mu is shared with the owning SearchSettings so branch views observe
	// layer refreshes safely. Nil for free-standing chain maps.
	mu *sync.RWMutex
}

// NewNestedChainMap wraps layers, highest priority first. The maps are
// referenced, not copied.
func NewNestedChainMap(layers ...map[string]any) *NestedChainMap {
	return &NestedChainMap{maps: layers}
}

func (m *NestedChainMap) rlock() func() {
	if m.mu == nil {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

// Layers returns the wrapped maps in priority order.
func (m *NestedChainMap) Layers() []map[string]any {
	return m.maps
}

// Get is the combined accessor. A key present at this level returns its
// value, or a branch view when the winning value is a mapping. Otherwise
// a flattened key ("a__b__c") is resolved through GetLeaf, or through
// successive branches when it names a sub-mapping.
func (m *NestedChainMap) Get(key string) (any, error) {
	unlock := m.rlock()
	defer unlock()
	return m.get(key)
}

func (m *NestedChainMap) get(key string) (any, error) {
	if v, ok := m.lookup(key); ok {
		return v, nil
	}
	if !strings.Contains(key, Separator) {
		return nil, exterrors.SettingNotFound(key)
	}

	if v, ok := m.leaf(key); ok {
		return v, nil
	}

	parts := strings.Split(key, Separator)
	cur := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur.branch(part)
		if !ok {
			return nil, exterrors.SettingNotFound(key)
		}
		cur = next
	}
	if v, ok := cur.lookup(parts[len(parts)-1]); ok {
		return v, nil
	}
	return nil, exterrors.SettingNotFound(key)
}

// lookup resolves key at this level only.
func (m *NestedChainMap) lookup(key string) (any, bool) {
	for _, layer := range m.maps {
		v, ok := layer[key]
		if !ok {
			continue
		}
		if _, isMap := v.(map[string]any); isMap {
			b, _ := m.branch(key)
			return b, true
		}
		return v, true
	}
	return nil, false
}

// GetBranch returns a chain map over the sub-maps stored under key in
// every layer that holds a mapping there. The branch is a view: it does
// not copy and sees in-place layer refreshes.
func (m *NestedChainMap) GetBranch(key string) (*NestedChainMap, error) {
	unlock := m.rlock()
	defer unlock()

	if b, ok := m.branch(key); ok {
		return b, nil
	}
	if strings.Contains(key, Separator) {
		cur := m
		for _, part := range strings.Split(key, Separator) {
			next, ok := cur.branch(part)
			if !ok {
				return nil, exterrors.SettingNotFound(key)
			}
			cur = next
		}
		return cur, nil
	}
	return nil, exterrors.SettingNotFound(key)
}

func (m *NestedChainMap) branch(key string) (*NestedChainMap, bool) {
	var subs []map[string]any
	for _, layer := range m.maps {
		if sub, ok := layer[key].(map[string]any); ok {
			subs = append(subs, sub)
		}
	}
	if len(subs) == 0 {
		return nil, false
	}
	return &NestedChainMap{maps: subs, mu: m.mu}, true
}

// GetLeaf resolves a flattened path. The first layer, by priority, holding
// a concrete non-mapping value at the full path wins.
func (m *NestedChainMap) GetLeaf(path string) (any, error) {
	unlock := m.rlock()
	defer unlock()

	if v, ok := m.leaf(path); ok {
		return v, nil
	}
	return nil, exterrors.SettingNotFound(path)
}

func (m *NestedChainMap) leaf(path string) (any, bool) {
	parts := strings.Split(path, Separator)
	for _, layer := range m.maps {
		if v, ok := descend(layer, parts); ok {
			if _, isMap := v.(map[string]any); !isMap {
				return v, true
			}
		}
	}
	return nil, false
}

func descend(layer map[string]any, parts []string) (any, bool) {
	var cur any = layer
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// AllKeys returns the sorted union of flattened leaf keys across all layers.
func (m *NestedChainMap) AllKeys() []string {
	unlock := m.rlock()
	defer unlock()
	return m.allKeys()
}

func (m *NestedChainMap) allKeys() []string {
	seen := make(map[string]struct{})
	for _, layer := range m.maps {
		flattenInto(seen, "", layer)
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flattenInto(seen map[string]struct{}, prefix string, layer map[string]any) {
	for k, v := range layer {
		key := k
		if prefix != "" {
			key = prefix + Separator + k
		}
		if sub, ok := v.(map[string]any); ok {
			flattenInto(seen, key, sub)
			continue
		}
		seen[key] = struct{}{}
	}
}

// ToDict returns a detached nested copy of the resolved settings. Leaves
// of higher layers win over lower ones.
func (m *NestedChainMap) ToDict() map[string]any {
	unlock := m.rlock()
	defer unlock()

	out := make(map[string]any)
	for i := len(m.maps) - 1; i >= 0; i-- {
		mergeInto(out, m.maps[i])
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			existing, ok := dst[k].(map[string]any)
			if !ok {
				existing = make(map[string]any)
				dst[k] = existing
			}
			mergeInto(existing, sub)
			continue
		}
		dst[k] = copyValue(v)
	}
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []any:
		return append([]any(nil), t...)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Flatten returns the resolved value of every leaf keyed by flattened path.
func (m *NestedChainMap) Flatten() map[string]any {
	unlock := m.rlock()
	defer unlock()

	out := make(map[string]any)
	for _, k := range m.allKeys() {
		if v, ok := m.leaf(k); ok {
			out[k] = v
		}
	}
	return out
}

// Float resolves key as a number. Strings are parsed, so overrides from
// the environment or the Setting table ("99.0") are accepted.
func (m *NestedChainMap) Float(key string) (float64, error) {
	v, err := m.Get(key)
	if err != nil {
		return 0, err
	}
	return toFloat(key, v)
}

func toFloat(key string, v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, invalid(key, v)
		}
		return f, nil
	default:
		return 0, invalid(key, v)
	}
}

// String resolves key as a string.
func (m *NestedChainMap) String(key string) (string, error) {
	v, err := m.Get(key)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64, int, int64, bool:
		return fmt.Sprint(t), nil
	default:
		return "", invalid(key, v)
	}
}

// Strings resolves key as a list of strings. A string value is read as a
// comma-separated list.
func (m *NestedChainMap) Strings(key string) ([]string, error) {
	v, err := m.Get(key)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, invalid(key, v)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, invalid(key, v)
	}
}

// Bool resolves key as a boolean.
func (m *NestedChainMap) Bool(key string) (bool, error) {
	v, err := m.Get(key)
	if err != nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, invalid(key, v)
		}
		return b, nil
	default:
		return false, invalid(key, v)
	}
}

func invalid(key string, v any) error {
	return exterrors.New(exterrors.ErrCodeSettingInvalid,
		fmt.Sprintf("setting %q has unusable value %v (%T)", key, v, v), nil)
}
