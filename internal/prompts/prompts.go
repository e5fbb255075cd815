// Package prompts resolves scoring prompt templates by (site, item type,
// prompt name) from a YAML prompt library, and fills the resolved template's
// placeholders from the query context and item description.
//
// Placeholder vocabulary:
//
//	{request.query}     — the user's (decontextualized) question
//	{request.prevQueries} — prior turns, newline-joined
//	{site.itemType}     — the expected item type for the site
//	{item.description}  — the trimmed candidate payload
package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/askweb/askweb-go/internal/query"
)

// Schema describes the JSON response shape a prompt expects from the model,
// as field name → plain-language constraint (e.g. "score" → "integer
// between 0 and 100").
type Schema map[string]string

// Resolver looks up a prompt template for a site and item type.
// Implementations must be safe for concurrent use.
type Resolver interface {
	// Resolve returns the template string and response schema registered
	// under (site, itemType, name). ok is false when no template is
	// registered, in which case the caller falls back to its built-in
	// default.
	Resolve(site, itemType, name string) (template string, schema Schema, ok bool)
}

// libraryEntry is one prompt definition in the YAML library file.
type libraryEntry struct {
	// Name is the prompt's lookup name (e.g. "RankingPrompt").
	Name string `yaml:"name"`
	// Template is the prompt text with placeholders.
	Template string `yaml:"template"`
	// Schema is the expected response shape.
	Schema Schema `yaml:"schema"`
}

// librarySite is the per-site section of the YAML library file.
type librarySite struct {
	// ItemType is the schema.org item type served by this site.
	ItemType string `yaml:"item_type"`
	// Prompts are the site's registered prompt definitions.
	Prompts []libraryEntry `yaml:"prompts"`
}

// libraryFile is the root of the YAML prompt library.
type libraryFile struct {
	// Sites maps a site identifier to its prompt section.
	Sites map[string]librarySite `yaml:"sites"`
}

// Library is a Resolver backed by an in-memory index loaded once at startup.
// The index is read-only after construction, so lookups need no locking.
type Library struct {
	// entries maps "site\x00itemType\x00name" to the registered prompt.
	entries map[string]libraryEntry
}

// newLibrary builds a Library from pre-parsed site sections.
func newLibrary(sites map[string]librarySite) *Library {
	lib := &Library{entries: make(map[string]libraryEntry)}
	for site, section := range sites {
		for _, e := range section.Prompts {
			lib.entries[indexKey(site, section.ItemType, e.Name)] = e
		}
	}
	return lib
}

// LoadLibrary reads a YAML prompt library from path. A missing file is not
// an error — it yields an empty library so every lookup falls back to the
// caller's default prompt.
func LoadLibrary(path string) (*Library, error) {
	if path == "" {
		return newLibrary(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newLibrary(nil), nil
		}
		return nil, fmt.Errorf("prompts: read %s: %w", path, err)
	}

	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("prompts: parse %s: %w", path, err)
	}
	return newLibrary(file.Sites), nil
}

// Resolve implements Resolver.
func (l *Library) Resolve(site, itemType, name string) (string, Schema, bool) {
	e, ok := l.entries[indexKey(site, itemType, name)]
	if !ok {
		return "", nil, false
	}
	return e.Template, e.Schema, true
}

// indexKey joins the lookup dimensions with a separator that cannot appear
// in site or type names.
func indexKey(site, itemType, name string) string {
	return site + "\x00" + itemType + "\x00" + name
}

// Fill substitutes the template's placeholders from the query context and
// the trimmed item description.
func Fill(template string, q *query.Context, itemDescription string) string {
	r := strings.NewReplacer(
		"{request.query}", q.EffectiveQuery(),
		"{request.prevQueries}", strings.Join(q.PrevQueries, "\n"),
		"{site.itemType}", q.ItemType,
		"{item.description}", itemDescription,
	)
	return r.Replace(template)
}
