// Package answer turns a raw generated answer into display-ready text with a
// renumbered citation list.
//
// A citation token is a literal "[" + identifier + "]" whose identifier equals
// the id of a supplied citation. Recognized tokens are replaced by the marker
// " ^n^ " where n is the citation's position in first-appearance order; all
// other text, including brackets that do not resolve, is copied unchanged.
// The marker's surrounding spaces are part of the rendered format consumed by
// the chat client and must not be trimmed.
package answer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	markerOpen  = " ^"
	markerClose = "^ "
)

// ParseAnswer rewrites payload.Text, replacing every resolved citation token
// with its display marker, and returns the referenced citations numbered
// "1".."N" in the order they first appear.
func ParseAnswer(payload AnswerPayload) (ParsedAnswer, error) {
	parsed, _, err := Annotate(payload)
	return parsed, err
}

// Annotate is ParseAnswer plus the scan counters.
func Annotate(payload AnswerPayload) (ParsedAnswer, Report, error) {
	var report Report

	text, ok := payload.Text.Get()
	if !ok {
		return ParsedAnswer{}, report, fmt.Errorf("%w: answer text is required", ErrInvalidArgument)
	}
	if payload.Citations == nil {
		return ParsedAnswer{}, report, fmt.Errorf("%w: citations are required", ErrInvalidArgument)
	}

	grouped := GroupAndIndex(payload.Citations)
	// First record wins when ids repeat.
	byID := make(map[string]int, len(grouped))
	for i, c := range grouped {
		if _, dup := byID[c.ID]; !dup {
			byID[c.ID] = i
		}
	}

	numbers := make(map[string]int)
	cited := make([]Citation, 0)

	var b strings.Builder
	b.Grow(len(text))

	rest := text
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		rest = rest[open:]

		id, width := scanToken(rest)
		if width == 0 {
			b.WriteByte('[')
			rest = rest[1:]
			continue
		}
		report.Tokens++

		idx, known := byID[id]
		if !known {
			report.Unresolved++
			b.WriteString(rest[:width])
			rest = rest[width:]
			continue
		}
		report.Resolved++

		n, seen := numbers[id]
		if !seen {
			n = len(cited) + 1
			numbers[id] = n
			c := grouped[idx]
			c.ID = strconv.Itoa(n)
			c.ReindexID = Some(c.ID)
			cited = append(cited, c)
		}

		b.WriteString(markerOpen)
		b.WriteString(strconv.Itoa(n))
		b.WriteString(markerClose)
		rest = rest[width:]
	}

	report.Distinct = len(cited)
	return ParsedAnswer{FormattedText: b.String(), Citations: cited}, report, nil
}

// scanToken reads a bracketed identifier at the start of s, which must begin
// with '['. It returns the identifier and the byte width of the whole token,
// or a zero width when s does not start with a well-formed token.
func scanToken(s string) (string, int) {
	for i := 1; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == ']':
			if i == 1 {
				return "", 0
			}
			return s[1:i], i + 1
		case r == '[' || unicode.IsSpace(r):
			return "", 0
		}
		i += size
	}
	return "", 0
}
