package scraper

// RenderResult is the unified return type for all page renderers.
type RenderResult struct {
	// HTML is the rendered page markup.
	HTML string

	// Title is the page title.
	Title string

	// FinalURL is the URL after following all redirects.
	FinalURL string

	// FetchMethod records how the page was fetched: "http" or "browser".
	FetchMethod string
}
