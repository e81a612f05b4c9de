// Package settings resolves extended search settings from five layers.
//
// In priority order the layers are db_vars (Setting rows), env_vars
// (SEARCH_EXTENDED__* variables), fields (boosts declared on indexed
// fields), django_settings (static application config) and defaults.
// Lookups walk the layers top-down; the first layer holding a key wins.
//
// Layers are refreshed in place. A *NestedChainMap obtained from a
// SearchSettings keeps seeing refreshed values, while maps returned by
// ToDict are detached snapshots and must be regenerated after a refresh.
package settings
