package client

import "net/url"

// Location abstracts the address bar: where the page is, rewriting its query
// in place, and full navigation. The manager only ever rewrites the query to
// scrub handoff tokens; navigation leaves the current page.
type Location interface {
	// Current returns the page's URL. Callers must not mutate the result.
	Current() *url.URL
	// ReplaceQuery swaps the current URL's query string without navigating.
	ReplaceQuery(values url.Values)
	// Navigate loads target, abandoning the current page.
	Navigate(target string)
}
