package challenge

import (
	"regexp"
	"strings"
)

// DefaultChallengeID is used when nothing on the page identifies a challenge.
const DefaultChallengeID = "space-pirate-password-breach"

// PageContext carries everything a page can say about which challenge it
// hosts.
type PageContext struct {
	// ChallengeID is an explicit identifier attached to the page.
	ChallengeID string `json:"challengeId,omitempty"`
	// Path is the page URL path, e.g. /codebook/modules/space-pirate-password-breach.html.
	Path string `json:"path,omitempty"`
	// Meta is the value of the page's challenge-id metadata tag.
	Meta string `json:"meta,omitempty"`
	// Title is the page title.
	Title string `json:"title,omitempty"`
}

var (
	modulePathRe = regexp.MustCompile(`/modules/(.+)\.html`)
	titleIDRe    = regexp.MustCompile(`(\w+-\w+-\w+)`)
)

// ResolveID picks the challenge identifier. The first match wins: explicit
// attribute, URL path, metadata tag, page title, then DefaultChallengeID.
func ResolveID(pc PageContext) string {
	if id := strings.TrimSpace(pc.ChallengeID); id != "" {
		return id
	}
	if m := modulePathRe.FindStringSubmatch(pc.Path); m != nil {
		return m[1]
	}
	if id := strings.TrimSpace(pc.Meta); id != "" {
		return id
	}
	if m := titleIDRe.FindStringSubmatch(pc.Title); m != nil {
		return m[1]
	}
	return DefaultChallengeID
}

// BasePath returns the site prefix of a page path: everything up to the
// "/modules/" segment, or "/" for pages at the site root.
func BasePath(pagePath string) string {
	if i := strings.Index(pagePath, "/modules/"); i >= 0 {
		return pagePath[:i+1]
	}
	return "/"
}

// ConfigPath is the location of a challenge definition under base.
func ConfigPath(base, id string) string {
	return normaliseBase(base) + "assets/data/scenarios/" + id + "/" + id + ".json"
}

// EvidencePath is the location of one evidence file under base.
func EvidencePath(base, id, filename string) string {
	return normaliseBase(base) + "assets/data/scenarios/" + id + "/" + filename
}

func normaliseBase(base string) string {
	if base == "" {
		return "/"
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}
