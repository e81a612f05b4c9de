// Package workspace declares the indexed models of the Digital Workspace
// intranet: content pages and their news subtype, people and teams.
package workspace

import (
	"github.com/Aman-CERP/extsearch/internal/indexed"
)

// Facet names accepted by searches.
const (
	FacetAll    = "all"
	FacetPages  = "pages"
	FacetNews   = "news"
	FacetPeople = "people"
	FacetTeams  = "teams"
)

// Models returns a fresh set of workspace models, parents first.
func Models() []*indexed.Model {
	page := &indexed.Model{AppLabel: "pages", Name: "Page", Index: indexed.NewIndexManager(
		indexed.NewIndexedField("title",
			indexed.Tokenized(), indexed.Explicit(), indexed.Fuzzy(), indexed.Autocomplete(),
			indexed.WithBoost(5.0)),
		indexed.NewIndexedField("search_headings", indexed.Tokenized(), indexed.Explicit(), indexed.WithBoost(3.0)),
		indexed.NewIndexedField("excerpt", indexed.Tokenized(), indexed.Explicit(), indexed.WithBoost(2.0)),
		indexed.NewIndexedField("search_text", indexed.Tokenized()),
		indexed.NewIndexedField("last_published_at", indexed.Proximity()),
		indexed.NewBaseIndexedField("slug"),
	)}

	news := &indexed.Model{AppLabel: "news", Name: "NewsPage", Parent: page, Index: indexed.NewIndexManager(
		indexed.NewIndexedField("pinned_on_home", indexed.Filter()),
		indexed.NewRelatedIndexedFields("news_categories",
			indexed.NewIndexedField("category", indexed.Tokenized(), indexed.Keyword(), indexed.WithBoost(2.0)),
			indexed.NewBaseIndexedField("slug"),
		),
	)}

	person := &indexed.Model{AppLabel: "people", Name: "Person", Index: indexed.NewIndexManager(
		indexed.NewIndexedField("full_name",
			indexed.Tokenized(), indexed.Explicit(), indexed.Fuzzy(), indexed.Autocomplete(),
			indexed.WithBoost(7.0)),
		indexed.NewIndexedField("email", indexed.Keyword(), indexed.WithBoost(4.0)),
		indexed.NewIndexedField("contact_email", indexed.Keyword(), indexed.WithBoost(4.0)),
		indexed.NewIndexedField("primary_phone_number", indexed.Keyword()),
		indexed.NewIndexedField("job_title", indexed.Tokenized(), indexed.Explicit(), indexed.WithBoost(3.0)),
		indexed.NewIndexedField("search_keywords", indexed.Tokenized(), indexed.WithModelFieldName("key_skills")),
		indexed.NewIndexedField("edited_or_confirmed_at", indexed.Proximity()),
		indexed.NewIndexedField("is_active", indexed.Filter()),
		indexed.NewRelatedIndexedFields("roles",
			indexed.NewIndexedField("team_name", indexed.Tokenized(), indexed.Explicit(), indexed.WithBoost(2.0)),
			indexed.NewIndexedField("job_title", indexed.Tokenized()),
		),
	)}

	team := &indexed.Model{AppLabel: "teams", Name: "Team", Index: indexed.NewIndexManager(
		indexed.NewIndexedField("name",
			indexed.Tokenized(), indexed.Explicit(), indexed.Autocomplete(), indexed.WithBoost(4.0)),
		indexed.NewIndexedField("abbreviation", indexed.Keyword(), indexed.WithBoost(3.0)),
		indexed.NewIndexedField("description", indexed.Tokenized()),
		indexed.NewBaseIndexedField("slug"),
	)}

	return []*indexed.Model{page, news, person, team}
}

// NewRegistry returns a registry of the workspace models.
func NewRegistry() (*indexed.Registry, error) {
	return indexed.NewRegistry(Models()...)
}

// Facets maps each facet to the model label it searches. "all" searches
// the root content model and so every page subtype.
func Facets() map[string]string {
	return map[string]string{
		FacetAll:    "pages.page",
		FacetPages:  "pages.page",
		FacetNews:   "news.newspage",
		FacetPeople: "people.person",
		FacetTeams:  "teams.team",
	}
}
