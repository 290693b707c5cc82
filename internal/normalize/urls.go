package normalize

import (
	"net/url"
	"strings"
)

// ResolveURL makes ref absolute against base. It returns "" when the result
// is not an http(s) URL.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	if !refURL.IsAbs() {
		baseURL, err := url.Parse(strings.TrimSpace(base))
		if err != nil || !isHTTP(baseURL) {
			if strings.HasPrefix(ref, "//") {
				refURL.Scheme = "https"
				return refURL.String()
			}
			return ""
		}
		refURL = baseURL.ResolveReference(refURL)
	}

	if !isHTTP(refURL) || refURL.Host == "" {
		return ""
	}
	return refURL.String()
}

// IsHTTPURL reports whether s parses as an absolute http(s) URL.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	return err == nil && isHTTP(u) && u.Host != ""
}

func isHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}
