// Package configs embeds the example files written by `extsearch config
// init` and `extsearch config models`.
//
// Configuration precedence (see internal/config Load):
//  1. Defaults (internal/config NewConfig)
//  2. User config (~/.config/extsearch/config.yaml)
//  3. Project config (.extsearch.yaml)
//  4. EXTSEARCH_* environment variables
package configs

import _ "embed"

// ConfigTemplate is the annotated example application config.
//
//go:embed config.example.yaml
var ConfigTemplate string

// ModelsTemplate is an example models file for search.models_file.
//
//go:embed models.example.yaml
var ModelsTemplate string
