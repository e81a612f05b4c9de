package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/search"
)

// indexedEnv returns an environment whose bleve index holds testDocuments.
func indexedEnv(t *testing.T) []string {
	t.Helper()
	env := testEnv(t)
	out := run(t, env, "index", "--file", writeDocuments(t))
	require.Contains(t, out, "Indexed 5 documents")
	return env
}

func searchJSON(t *testing.T, env []string, args ...string) search.SearchResponse {
	t.Helper()
	out := run(t, env, append(append([]string{"search"}, args...), "--json")...)
	var resp search.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(lastLine(out)), &resp))
	return resp
}

func hitIDs(resp search.SearchResponse) []string {
	ids := make([]string, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		ids = append(ids, h.ID)
	}
	return ids
}

func TestSearch_PeopleFacet(t *testing.T) {
	env := indexedEnv(t)

	resp := searchJSON(t, env, "jane", "doe", "--facet", "people")

	assert.Equal(t, "people.person", resp.Model)
	require.NotEmpty(t, resp.Hits)
	assert.Equal(t, "p1", resp.Hits[0].ID)
	assert.NotContains(t, hitIDs(resp), "t1")
}

func TestSearch_AllFacetCoversPageSubtypes(t *testing.T) {
	env := indexedEnv(t)

	resp := searchJSON(t, env, "budget")

	assert.Equal(t, "pages.page", resp.Model)
	assert.Equal(t, []string{"n1"}, hitIDs(resp), "teams and people are not pages")
}

func TestSearch_ModelOverridesFacet(t *testing.T) {
	env := indexedEnv(t)

	resp := searchJSON(t, env, "budget", "--facet", "people", "--model", "teams.team")

	assert.Equal(t, "teams.team", resp.Model)
	assert.Equal(t, []string{"t1"}, hitIDs(resp))
}

func TestSearch_RelatedFields(t *testing.T) {
	env := indexedEnv(t)

	resp := searchJSON(t, env, "budget", "office", "--facet", "people")
	assert.Equal(t, []string{"p1"}, hitIDs(resp), "matches through the roles group")
}

func TestSearch_Autocomplete(t *testing.T) {
	env := indexedEnv(t)

	resp := searchJSON(t, env, "ja", "--facet", "people", "--autocomplete")
	assert.Equal(t, []string{"p1"}, hitIDs(resp))
}

func TestSearch_TextOutput(t *testing.T) {
	env := indexedEnv(t)

	out := run(t, env, "search", "jane", "--facet", "people")
	assert.Contains(t, out, "results for \"jane\" in people.person")
	assert.Regexp(t, `1\.\s+p1\s+\d+\.\d{3}\s+people\.person`, out)

	out = run(t, env, "search", "nobody", "--facet", "people")
	assert.Contains(t, out, "No results")
}

func TestSearch_Errors(t *testing.T) {
	env := indexedEnv(t)

	_, err := execute(t, append(env, "search", "x", "--facet", "robots")...)
	assert.Equal(t, exterrors.ErrCodeInvalidInput, exterrors.GetCode(err))

	_, err = execute(t, append(env, "search", "x", "--offset=-1")...)
	assert.Equal(t, exterrors.ErrCodeInvalidInput, exterrors.GetCode(err))

	_, err = execute(t, append(env, "search", " ", "--facet", "people")...)
	assert.Equal(t, exterrors.ErrCodeQueryEmpty, exterrors.GetCode(err))
}

func TestStats_RecordsSearches(t *testing.T) {
	env := indexedEnv(t)
	searchJSON(t, env, "jane", "--facet", "people")
	searchJSON(t, env, "jane", "smith", "--facet", "people")
	searchJSON(t, env, "nobody", "--facet", "people")
	searchJSON(t, env, "budget", "--facet", "teams")

	var stats StatsOutput
	require.NoError(t, json.Unmarshal([]byte(run(t, env, "stats", "--json")), &stats))

	assert.Equal(t, int64(4), stats.TotalSearches)
	assert.Equal(t, int64(3), stats.ModelCounts["people.person"])
	assert.Equal(t, int64(1), stats.ModelCounts["teams.team"])
	assert.Equal(t, []string{"nobody"}, stats.ZeroResultQueries)
	require.NotEmpty(t, stats.TopTerms)
	assert.Equal(t, "jane", stats.TopTerms[0].Term)
	assert.Equal(t, int64(2), stats.TopTerms[0].Count)

	out := run(t, env, "stats")
	assert.Contains(t, out, "Total Searches: 4")
	assert.Contains(t, out, "people.person: 3")
	assert.Contains(t, out, `- "nobody"`)
}

func TestStats_Empty(t *testing.T) {
	env := testEnv(t)

	out := run(t, env, "stats")
	assert.Contains(t, out, "Total Searches: 0")
	assert.Contains(t, out, "(none recorded yet)")

	_, err := execute(t, append(env, "stats", "--days", "0")...)
	assert.Error(t, err)
}

func TestIndex_Errors(t *testing.T) {
	env := testEnv(t)

	_, err := execute(t, append(env, "index")...)
	assert.Error(t, err, "--file is required")

	_, err = execute(t, append(env, "index", "--file", filepath.Join(t.TempDir(), "missing.json"))...)
	assert.Equal(t, exterrors.ErrCodeFileNotFound, exterrors.GetCode(err))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"id": "x", "model": "people.robot", "fields": {}}]`), 0o644))
	_, err = execute(t, append(env, "index", "--file", bad)...)
	assert.True(t, errors.Is(err, exterrors.ErrUnknownModel))

	require.NoError(t, os.WriteFile(bad, []byte(`[{"model": "people.person"}]`), 0o644))
	_, err = execute(t, append(env, "index", "--file", bad)...)
	assert.Equal(t, exterrors.ErrCodeInvalidInput, exterrors.GetCode(err))

	require.NoError(t, os.WriteFile(bad, []byte(`{not json`), 0o644))
	_, err = execute(t, append(env, "index", "--file", bad)...)
	assert.Equal(t, exterrors.ErrCodeInvalidInput, exterrors.GetCode(err))
}
