package websearch

import (
	"net/url"
	"strings"
)

const (
	stackOverflowHost = "stackoverflow.com"
	redditHost        = "reddit.com"
)

// NormalizeURL reduces a URL to scheme, host and path for de-duplication.
// Query strings, fragments and trailing slashes are dropped, and reddit
// mirrors are folded onto www.reddit.com.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}

	host := strings.ToLower(u.Host)
	switch {
	case host == "old.reddit.com", host == "np.reddit.com", host == "m.reddit.com",
		host == "reddit.com", strings.HasPrefix(host, "r.") && strings.HasSuffix(host, redditHost):
		host = "www.reddit.com"
	case host == "stackprinter.appspot.com":
		host = stackOverflowHost
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	path := strings.TrimRight(u.Path, "/")
	return scheme + "://" + host + path
}

// Dedupe drops results whose normalized URL and lower-cased title were
// already seen. Order is preserved.
func Dedupe(results []Result) []Result {
	type key struct{ url, title string }
	seen := make(map[key]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		k := key{NormalizeURL(r.URL), strings.ToLower(strings.TrimSpace(r.Title))}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func sourceOf(u string) string {
	switch {
	case strings.Contains(u, stackOverflowHost):
		return "stackoverflow"
	case strings.Contains(u, redditHost):
		return "reddit"
	default:
		return "web"
	}
}
