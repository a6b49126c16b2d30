// The plugin package defines the uniform contract that every
// source-specific adapter ("handler") must expose, along with the
// priority-ordered registry that routes URLs to the handler which
// claims them.
package plugin

import "context"

type (
	// Info describes a handler. Name must be unique within a
	// registry; Priority orders resolution (higher is tried first).
	// Info is immutable after registration.
	Info struct {
		Name        string
		Version     string
		Description string
		Priority    int
	}

	// Metadata is the opaque bag of information a handler extracts
	// about a media resource. By contract it contains at least a
	// 'title' entry, plus duration/resolution/size when the source
	// exposes them.
	Metadata map[string]any

	// Options carries caller-supplied fetch options through to the
	// handler. Handlers ignore keys they do not understand.
	Options map[string]any

	// FetchResult reports the outcome of a Fetch call. When Success
	// is false, Metadata may carry a diagnostic 'error' entry.
	FetchResult struct {
		Success   bool
		LocalPath string
		Metadata  Metadata
	}

	// Handler is a source-specific adapter for one family of URLs.
	//
	// CanHandle is a pure predicate and must be fast - no I/O.
	// ExtractInfo and Fetch may perform network calls and therefore
	// accept a context.
	Handler interface {
		Info() Info
		CanHandle(url string) bool
		ExtractInfo(ctx context.Context, url string) (Metadata, error)
		Fetch(ctx context.Context, url string, destDir string, options Options) (FetchResult, error)
	}
)

// Title returns the metadata 'title' entry if present and a string.
func (m Metadata) Title() string {
	if title, ok := m["title"].(string); ok {
		return title
	}

	return ""
}
