// Package logging configures log/slog for extsearch.
//
// Library packages log through slog.Default(). The CLI installs a JSON
// handler writing to ~/.extsearch/logs/extsearch.log (size-rotated) when
// --debug is given; otherwise only warnings reach stderr.
package logging
