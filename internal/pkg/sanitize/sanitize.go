package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const maxDisplayNameLen = 64

var (
	strict      = bluemonday.StrictPolicy()
	spaceRun    = regexp.MustCompile(`\s+`)
	usernameBad = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// DisplayName strips markup and control characters from a user-supplied first
// name so it can be embedded into outgoing HTML messages. Returns empty when
// nothing displayable remains.
func DisplayName(name string) string {
	s := strict.Sanitize(strings.TrimSpace(name))
	s = html.UnescapeString(s)
	s = spaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > maxDisplayNameLen {
		s = strings.TrimSpace(s[:maxDisplayNameLen])
	}
	return html.EscapeString(s)
}

// UsernameForDisplay normalizes a Telegram username for message text, keeping
// only the characters Telegram allows in usernames.
func UsernameForDisplay(username string, withAt bool) string {
	u := strings.TrimPrefix(strings.TrimSpace(username), "@")
	u = usernameBad.ReplaceAllString(u, "")
	if u == "" {
		return ""
	}
	if withAt {
		return "@" + u
	}
	return u
}
