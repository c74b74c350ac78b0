package guardrails

import (
	"fmt"
	"strings"
)

// maskToken renders the replacement for a masked span. The token contains no
// digits, so a masked text never re-matches a PII detector and redaction is
// idempotent.
func maskToken(kind EntityKind) string {
	return fmt.Sprintf("[REDACTED:%s]", kind)
}

// mergeSpans collapses overlapping or adjacent spans into one. The merged
// span keeps the kind of the earliest contributing span; every contributing
// kind is still reported to the caller for signals.
func mergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	merged := []Span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Redact masks every detected span in text. The entire matched span is
// replaced, never a substring, so partial digit sequences cannot be
// reassembled. Returns the redacted text and the distinct entity kinds found,
// in first-seen order.
func Redact(text string, spans []Span) (string, []EntityKind) {
	if len(spans) == 0 {
		return text, nil
	}

	var kinds []EntityKind
	seen := make(map[EntityKind]bool)
	for _, s := range spans {
		if !seen[s.Kind] {
			seen[s.Kind] = true
			kinds = append(kinds, s.Kind)
		}
	}

	merged := mergeSpans(spans)

	var b strings.Builder
	cursor := 0
	for _, s := range merged {
		b.WriteString(text[cursor:s.Start])
		b.WriteString(maskToken(s.Kind))
		cursor = s.End
	}
	b.WriteString(text[cursor:])
	return b.String(), kinds
}
