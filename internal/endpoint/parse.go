package endpoint

import (
	"regexp"
	"strconv"
	"strings"
)

const portMarker = "localhost:"

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// ParsePort extracts the port a dev server announces in an output line: the
// digits after "localhost:" up to the next "/". Lines without that shape, or
// with a value outside 1-65535, yield ok=false.
func ParsePort(line string) (int, bool) {
	line = ansiEscape.ReplaceAllString(line, "")
	i := strings.Index(line, portMarker)
	if i < 0 {
		return 0, false
	}
	rest := line[i+len(portMarker):]
	j := strings.IndexByte(rest, '/')
	if j <= 0 {
		return 0, false
	}
	digits := rest[:j]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	port, err := strconv.Atoi(digits)
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}
