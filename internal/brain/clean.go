package brain

import (
	"regexp"
	"strings"
)

var (
	// bracketPrefix matches a leading "[name]:" self-attribution.
	bracketPrefix = regexp.MustCompile(`^\[[^\]]+\][:：]\s*`)
	// namePrefix matches a leading "name:" made only of letters or CJK
	// ideographs. Digits never match, so "15:04" survives.
	namePrefix = regexp.MustCompile(`^([a-zA-Z\x{4e00}-\x{9fa5}]+)[:：]\s*`)
)

// CleanResponse strips self-attribution prefixes a model tends to echo
// from the chat framing. Any bracketed "[x]:" tag goes; a bare "x:" goes
// only when x is one of names, so a leading label such as "提醒：" is
// kept. It repeats until the text stops changing, so
// CleanResponse(CleanResponse(s)) == CleanResponse(s). The result may be
// empty.
func CleanResponse(text string, names ...string) string {
	for {
		next := strings.TrimSpace(text)
		next = bracketPrefix.ReplaceAllString(next, "")
		if m := namePrefix.FindStringSubmatch(next); m != nil && knownName(m[1], names) {
			next = next[len(m[0]):]
		}
		next = strings.TrimSpace(next)
		if next == text {
			return next
		}
		text = next
	}
}

func knownName(name string, names []string) bool {
	for _, n := range names {
		if n != "" && strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
