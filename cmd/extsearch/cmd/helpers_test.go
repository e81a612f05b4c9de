package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv isolates HOME and XDG_CONFIG_HOME in a temp directory and writes
// a config whose database and bleve index live there. It returns the
// global flags that select that config.
func testEnv(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))

	cfg := fmt.Sprintf(`storage:
  database_path: %s
engine:
  backend: bleve
  bleve_path: %s
server:
  log_level: error
`, filepath.Join(dir, "extsearch.db"), filepath.Join(dir, "index.bleve"))

	path := filepath.Join(dir, "extsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return []string{"--config", path}
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// run is execute for commands that must succeed.
func run(t *testing.T, env []string, args ...string) string {
	t.Helper()
	out, err := execute(t, append(append([]string{}, env...), args...)...)
	require.NoError(t, err, out)
	return out
}

// lastLine returns the last non-empty line of out.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return lines[len(lines)-1]
}

const testDocuments = `[
  {"id": "p1", "model": "people.person", "fields": {
    "full_name": "Jane Doe", "email": "jane@example.com", "job_title": "Policy Analyst",
    "roles": [{"team_name": "Budget Office", "job_title": "Analyst"}]}},
  {"id": "p2", "model": "people.person", "fields": {
    "full_name": "John Smith", "email": "john@example.com", "job_title": "Engineer"}},
  {"id": "t1", "model": "teams.team", "fields": {
    "name": "Budget Office", "abbreviation": "BO", "description": "Spending reviews"}},
  {"id": "n1", "model": "news.newspage", "fields": {
    "title": "Budget announced", "excerpt": "The annual budget is out",
    "news_categories": [{"category": "Finance", "slug": "finance"}]}},
  {"id": "g1", "model": "pages.page", "fields": {
    "title": "Travel policy", "search_text": "How to book travel"}}
]`

// writeDocuments writes testDocuments to a temp file and returns its path.
func writeDocuments(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.json")
	require.NoError(t, os.WriteFile(path, []byte(testDocuments), 0o644))
	return path
}
