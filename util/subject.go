package util

import "strings"

// SubjectMatches reports whether subj matches pattern. The pattern may use the
// NATS wildcards * (one token) and > (the rest, at least one token).
func SubjectMatches(pattern, subj string) bool {
	if pattern == subj {
		return true
	}
	pTok := strings.Split(pattern, ".")
	sTok := strings.Split(subj, ".")
	for i, pt := range pTok {
		if pt == ">" {
			return i < len(sTok)
		}
		if i >= len(sTok) {
			return false
		}
		if pt != "*" && pt != sTok[i] {
			return false
		}
	}
	return len(sTok) == len(pTok)
}

// SubjectToken returns the i-th dot separated token of subj, or "".
func SubjectToken(subj string, i int) string {
	parts := strings.Split(subj, ".")
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

// PlaygroundOf returns the playground id carried by a command.playground.<id>.*
// or event.playground.<id>.* subject.
func PlaygroundOf(subj string) string {
	if SubjectToken(subj, 1) != "playground" {
		return ""
	}
	return SubjectToken(subj, 2)
}

// SelectorFor returns the CSS selector of the element an event of subj
// renders into. Playground events go to that playground's output box.
func SelectorFor(subj string) string {
	if id := PlaygroundOf(subj); id != "" {
		return "#output-" + id
	}
	return "#sub-" + strings.NewReplacer(".", "-", "*", "wild", ">", "fullwild").Replace(subj)
}
