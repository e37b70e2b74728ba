package httpapi

import (
	"net/http"
	"strings"
)

// mount is where the API sits below the public origin. A zero mount serves
// from the root.
type mount struct {
	path string
	href string
}

func newMount(baseURL, basePath string) mount {
	path := normalizeBasePath(basePath)
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	m := mount{path: path}
	if base != "" || path != "" {
		m.href = base + path + "/"
	}
	return m
}

func normalizeBasePath(value string) string {
	path := strings.Trim(strings.TrimSpace(value), "/")
	if path == "" {
		return ""
	}
	return "/" + path
}

// url returns the public address of a route, relative to the origin when no
// base URL is configured.
func (m mount) url(route string) string {
	if m.href == "" {
		return route
	}
	return m.href + strings.TrimPrefix(route, "/")
}

func (m mount) cookiePath() string {
	return m.path + "/"
}

// wrap serves handler below the mount path and redirects the bare path to
// its slash form.
func (m mount) wrap(handler http.Handler) http.Handler {
	if m.path == "" {
		return handler
	}
	prefix := m.path
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}
