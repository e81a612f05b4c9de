package indexed

import (
	"fmt"
	"reflect"
	"sync"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

// Registry is the ordered set of indexed models.
type Registry struct {
	mu      sync.RWMutex
	models  []*Model
	byLabel map[string]*Model
}

// NewRegistry returns a registry holding models.
func NewRegistry(models ...*Model) (*Registry, error) {
	r := &Registry{byLabel: make(map[string]*Model)}
	if err := r.Register(models...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds models. Labels must be unique.
func (r *Registry) Register(models ...*Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range models {
		if m == nil || m.AppLabel == "" || m.Name == "" {
			return exterrors.ValidationError("model needs an app label and a name", nil)
		}
		label := m.Label()
		if _, dup := r.byLabel[label]; dup {
			return exterrors.ValidationError(fmt.Sprintf("model %s registered twice", label), nil)
		}
		r.byLabel[label] = m
		r.models = append(r.models, m)
	}
	return nil
}

// Models returns the registered models in registration order.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Model(nil), r.models...)
}

// Get returns the model registered under label ("app.model").
func (r *Registry) Get(label string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byLabel[label]; ok {
		return m, nil
	}
	return nil, exterrors.UnknownModel(label)
}

// Subclasses returns the registered direct subtypes of m.
func (r *Registry) Subclasses(m *Model) []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Model
	for _, candidate := range r.models {
		if candidate.Parent == m {
			out = append(out, candidate)
		}
	}
	return out
}

// Descendants returns every registered subtype of m, at any depth.
func (r *Registry) Descendants(m *Model) []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Model
	for _, candidate := range r.models {
		if candidate.IsSubclassOf(m) {
			out = append(out, candidate)
		}
	}
	return out
}

// UniqueFields returns the mappings m declares that its parent does not
// have in the same form: new fields and redeclared fields whose metadata
// differs.
func (r *Registry) UniqueFields(m *Model) []Mapping {
	own := m.Mappings()
	if m.Parent == nil {
		return own
	}

	parent := make(map[string]Mapping)
	for _, pm := range m.Parent.Mappings() {
		parent[pm.Name] = pm
	}

	var out []Mapping
	for _, mm := range own {
		pm, ok := parent[mm.Name]
		if ok && sameMapping(pm, mm) {
			continue
		}
		out = append(out, mm)
	}
	return out
}

// HasUniqueFields reports whether m, or any of its subtypes, declares
// fields beyond its parent's.
func (r *Registry) HasUniqueFields(m *Model) bool {
	if m.Parent != nil && len(r.UniqueFields(m)) > 0 {
		return true
	}
	for _, sub := range r.Subclasses(m) {
		if r.HasUniqueFields(sub) {
			return true
		}
	}
	return false
}

func sameMapping(a, b Mapping) bool {
	return reflect.DeepEqual(stripOwners(a), stripOwners(b))
}

func stripOwners(m Mapping) Mapping {
	m.DefinedOn = nil
	if len(m.Related) > 0 {
		related := make([]Mapping, len(m.Related))
		for i, c := range m.Related {
			related[i] = stripOwners(c)
		}
		m.Related = related
	}
	return m
}

// FieldBoosts lists the declared boost of every searchable field of every
// model, keyed "app.model.field". Related children are keyed
// "app.model.relation.child". Subtypes get their own keys, inherited or not.
func (r *Registry) FieldBoosts() []settings.FieldBoost {
	var out []settings.FieldBoost
	for _, m := range r.Models() {
		for _, mm := range m.Mappings() {
			out = appendBoosts(out, m.Label()+"."+mm.Name, mm)
		}
	}
	return out
}

func appendBoosts(out []settings.FieldBoost, label string, m Mapping) []settings.FieldBoost {
	if m.Search != nil || len(m.Autocomplete) > 0 {
		out = append(out, settings.FieldBoost{Label: label, Boost: m.Boost})
	}
	for _, child := range m.Related {
		out = appendBoosts(out, label+"."+child.Name, child)
	}
	return out
}

var _ settings.FieldBoostSource = (*Registry)(nil)
