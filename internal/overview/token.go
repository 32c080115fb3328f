package overview

import (
	"net/url"
	"regexp"
	"strings"
)

var invitePathRe = regexp.MustCompile(`/p/([^/?#]+)`)

// ExtractToken accepts a pasted invite link or a bare token and returns the token.
// It reports false for blank input.
func ExtractToken(input string) (string, bool) {
	v := strings.TrimSpace(input)
	if v == "" {
		return "", false
	}
	if u, err := url.Parse(v); err == nil && u.Scheme != "" && u.Host != "" {
		parts := splitPath(u.Path)
		for i, p := range parts {
			if p != "p" {
				continue
			}
			if i+1 < len(parts) {
				return parts[i+1], true
			}
			break
		}
	}
	if m := invitePathRe.FindStringSubmatch(v); len(m) == 2 && m[1] != "" {
		return m[1], true
	}
	return v, true
}

func splitPath(p string) []string {
	raw := strings.Split(p, "/")
	out := raw[:0]
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
