package gitrepo

import (
	"net/url"
	"strings"
)

// FullName extracts "owner/name" from a remote URL in either scp-like
// ("git@github.com:owner/name.git") or URL form.
func FullName(remoteURL string) (string, bool) {
	var path string
	if u, err := url.Parse(remoteURL); err == nil && u.Scheme != "" && u.Host != "" {
		path = u.Path
	} else if at := strings.Index(remoteURL, ":"); at > 0 && !strings.Contains(remoteURL[:at], "/") {
		path = remoteURL[at+1:]
	} else {
		return "", false
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", false
	}
	owner, name := parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || name == "" {
		return "", false
	}
	return owner + "/" + name, true
}
