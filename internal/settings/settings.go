package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/store"
)

// Layer names, highest priority first.
const (
	LayerDB       = "db_vars"
	LayerEnv      = "env_vars"
	LayerFields   = "fields"
	LayerDjango   = "django_settings"
	LayerDefaults = "defaults"
)

// FieldBoost is one declared field boost. Label is "app.model.field".
type FieldBoost struct {
	Label string
	Boost float64
}

// FieldBoostSource enumerates the boosts declared on indexed fields.
type FieldBoostSource interface {
	FieldBoosts() []FieldBoost
}

// DBSource lists persisted Setting rows.
type DBSource interface {
	ListSettings(ctx context.Context) ([]store.Setting, error)
}

// SearchSettings is the five-layer settings chain. Construct it once per
// process; refresh layers through the Initialise* methods or RefreshLayer.
type SearchSettings struct {
	*NestedChainMap

	mu       sync.RWMutex
	dbVars   map[string]any
	envVars  map[string]any
	fields   map[string]any
	django   map[string]any
	defaults map[string]any

	djangoSeed  map[string]any
	fieldSource FieldBoostSource
	dbSource    DBSource
	lookupEnv   func(string) (string, bool)

	hookMu sync.RWMutex
	hooks  []func(layer string)
}

// Option configures a SearchSettings.
type Option func(*SearchSettings)

// WithFieldSource sets the source used when refreshing the fields layer.
func WithFieldSource(src FieldBoostSource) Option {
	return func(s *SearchSettings) { s.fieldSource = src }
}

// WithDBSource sets the source used when refreshing the db_vars layer.
func WithDBSource(src DBSource) Option {
	return func(s *SearchSettings) { s.dbSource = src }
}

// WithDjangoSettings seeds the django_settings layer.
func WithDjangoSettings(tree map[string]any) Option {
	return func(s *SearchSettings) { s.installDjango(tree) }
}

// WithLookupEnv replaces os.LookupEnv for the env layer.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(s *SearchSettings) { s.lookupEnv = fn }
}

// New returns settings holding only the defaults layer plus whatever the
// options seed. Layers stay empty until initialised.
func New(opts ...Option) *SearchSettings {
	s := &SearchSettings{
		dbVars:    map[string]any{},
		envVars:   map[string]any{},
		fields:    map[string]any{},
		django:    map[string]any{},
		defaults:  Defaults(),
		lookupEnv: os.LookupEnv,
	}
	s.NestedChainMap = &NestedChainMap{
		maps: []map[string]any{s.dbVars, s.envVars, s.fields, s.django, s.defaults},
		mu:   &s.mu,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DBVars returns the live db_vars layer. The map identity never changes.
func (s *SearchSettings) DBVars() map[string]any { return s.dbVars }

// EnvVars returns the live env_vars layer.
func (s *SearchSettings) EnvVars() map[string]any { return s.envVars }

// FieldVars returns the live fields layer.
func (s *SearchSettings) FieldVars() map[string]any { return s.fields }

// DjangoSettings returns the live django_settings layer.
func (s *SearchSettings) DjangoSettings() map[string]any { return s.django }

// OnChange registers fn to run after any layer is refreshed.
func (s *SearchSettings) OnChange(fn func(layer string)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// StoreHooks is the write-notification surface of a setting store.
type StoreHooks interface {
	OnSave(fn func(store.Setting))
	OnDelete(fn func(key string))
}

// WatchStore re-reads the db_vars layer after every write made through
// st. Writes from other processes are not seen.
func (s *SearchSettings) WatchStore(st StoreHooks) {
	refresh := func() {
		if err := s.InitialiseDBDict(context.Background(), nil); err != nil {
			slog.Warn("settings_db_layer_refresh_failed", slog.String("error", err.Error()))
		}
	}
	st.OnSave(func(store.Setting) { refresh() })
	st.OnDelete(func(string) { refresh() })
}

func (s *SearchSettings) changed(layer string) {
	slog.Debug("settings_layer_refreshed", slog.String("layer", layer))

	s.hookMu.RLock()
	hooks := append([]func(string){}, s.hooks...)
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(layer)
	}
}

// InitialiseFieldDict rebuilds the fields layer from the declared boosts
// of every indexed field: boost_parts.fields."app.model.field".
func (s *SearchSettings) InitialiseFieldDict(src FieldBoostSource) {
	if src == nil {
		src = s.fieldSource
	}
	s.mu.Lock()
	clear(s.fields)
	if src != nil {
		for _, fb := range src.FieldBoosts() {
			setPath(s.fields, []string{"boost_parts", "fields", fb.Label}, fb.Boost)
		}
	}
	s.mu.Unlock()
	s.changed(LayerFields)
}

// InitialiseEnvDict rebuilds the env layer. Every known flattened key k
// is looked up as SEARCH_EXTENDED__k; non-empty values are installed as
// strings.
func (s *SearchSettings) InitialiseEnvDict() {
	s.mu.Lock()
	clear(s.envVars)
	keys := s.NestedChainMap.allKeys()
	for _, key := range keys {
		v, ok := s.lookupEnv(EnvNamespace + Separator + key)
		if !ok || v == "" {
			continue
		}
		setPath(s.envVars, strings.Split(key, Separator), v)
	}
	s.mu.Unlock()
	s.changed(LayerEnv)
}

// InitialiseDBDict rebuilds the db_vars layer from the persisted rows.
// A database that has not been migrated leaves the layer empty; any
// other failure is returned and the previous contents are kept.
func (s *SearchSettings) InitialiseDBDict(ctx context.Context, src DBSource) error {
	if src == nil {
		src = s.dbSource
	}
	if src == nil {
		return exterrors.New(exterrors.ErrCodeStoreUnavailable, "no settings database configured", nil)
	}

	rows, err := src.ListSettings(ctx)
	if err != nil && !errors.Is(err, store.ErrSchemaNotReady) {
		return err
	}
	if err != nil {
		slog.Warn("settings_db_layer_unavailable", slog.String("error", err.Error()))
		rows = nil
	}

	s.mu.Lock()
	clear(s.dbVars)
	for _, row := range rows {
		// NULL rows carry no override.
		if row.Value == nil {
			continue
		}
		setPath(s.dbVars, strings.Split(row.Key, Separator), *row.Value)
	}
	s.mu.Unlock()
	s.changed(LayerDB)
	return nil
}

// InitialiseDjangoSettings replaces the django_settings layer with a deep
// copy of tree.
func (s *SearchSettings) InitialiseDjangoSettings(tree map[string]any) {
	s.mu.Lock()
	s.installDjango(tree)
	s.mu.Unlock()
	s.changed(LayerDjango)
}

func (s *SearchSettings) installDjango(tree map[string]any) {
	s.djangoSeed = tree
	clear(s.django)
	mergeInto(s.django, normalise(tree))
}

// RefreshLayer re-reads one layer from its configured source.
func (s *SearchSettings) RefreshLayer(ctx context.Context, layer string) error {
	switch layer {
	case LayerDB:
		return s.InitialiseDBDict(ctx, nil)
	case LayerEnv:
		s.InitialiseEnvDict()
	case LayerFields:
		s.InitialiseFieldDict(nil)
	case LayerDjango:
		s.InitialiseDjangoSettings(s.djangoSeed)
	case LayerDefaults:
		return exterrors.ValidationError("the defaults layer is constant", nil)
	default:
		return exterrors.ValidationError(fmt.Sprintf("unknown settings layer %q", layer), nil)
	}
	return nil
}

// Initialise refreshes the fields, env and db layers in that order, the
// start-up sequence. The env layer runs after fields so that per-field
// boost keys can be overridden from the environment.
func (s *SearchSettings) Initialise(ctx context.Context) error {
	s.InitialiseFieldDict(nil)
	s.InitialiseEnvDict()
	if s.dbSource == nil {
		return nil
	}
	return s.InitialiseDBDict(ctx, nil)
}

// Resolve implements Provider.
func (s *SearchSettings) Resolve(key string) (any, error) {
	return s.Get(key)
}

// Branch implements Provider.
func (s *SearchSettings) Branch(key string) (*NestedChainMap, error) {
	return s.GetBranch(key)
}

// layerNames lists the layers in chain order, highest priority first.
var layerNames = []string{LayerDB, LayerEnv, LayerFields, LayerDjango, LayerDefaults}

// Source returns the name of the highest-priority layer that holds key.
func (s *SearchSettings) Source(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, layer := range s.maps {
		if _, err := NewNestedChainMap(layer).get(key); err == nil {
			return layerNames[i], nil
		}
	}
	return "", exterrors.SettingNotFound(key)
}

// Snapshot implements Provider.
func (s *SearchSettings) Snapshot() map[string]any {
	return s.ToDict()
}

// setPath installs value at path, creating or replacing intermediate maps.
func setPath(root map[string]any, path []string, value any) {
	cur := root
	for _, p := range path[:len(path)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// normalise converts map[any]any values (as produced by some YAML
// decoders) into map[string]any.
func normalise(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		out[k] = normaliseValue(v)
	}
	return out
}

func normaliseValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalise(t)
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normaliseValue(val)
		}
		return m
	default:
		return v
	}
}
