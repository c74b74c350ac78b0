package guardrails

import (
	"regexp"
	"sort"
)

// EntityKind names a class of sensitive data a detector can find.
type EntityKind string

const (
	EntityCreditCard   EntityKind = "credit_card"
	EntityGovernmentID EntityKind = "government_id"
	EntityEmail        EntityKind = "email"
	EntityPhone        EntityKind = "phone"
	EntityBankAccount  EntityKind = "bank_account"
)

// DefaultEntities are the kinds every policy starts from.
var DefaultEntities = []EntityKind{
	EntityCreditCard,
	EntityGovernmentID,
	EntityEmail,
	EntityPhone,
	EntityBankAccount,
}

// Detector finds spans of a single entity kind in free text. Detectors are
// independent; overlapping hits from different detectors are merged before
// masking.
type Detector struct {
	Kind    EntityKind
	pattern *regexp.Regexp
}

// NewDetector builds a detector from a compiled pattern.
func NewDetector(kind EntityKind, pattern *regexp.Regexp) *Detector {
	return &Detector{Kind: kind, pattern: pattern}
}

// Span is a half-open [Start,End) range of matched text.
type Span struct {
	Start int
	End   int
	Kind  EntityKind
}

// Spans returns every match of the detector in text.
func (d *Detector) Spans(text string) []Span {
	var spans []Span
	for _, loc := range d.pattern.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{Start: loc[0], End: loc[1], Kind: d.Kind})
	}
	return spans
}

var (
	// 13-19 digits with optional space/dash separators. The whole run is
	// masked so no partial digit sequence survives.
	creditCardPattern = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

	// SSN-style identifiers.
	governmentIDPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Real phone shapes only: an optional country code followed by 3-3-4
	// digit groups joined by dash or dot. Separators deliberately exclude
	// whitespace, and the 2-2-4 grouping keeps dash-formatted statement
	// dates out of the detector.
	phonePattern = regexp.MustCompile(`\b(?:\+?\d{1,2}[-.])?\(?\d{3}\)?[-.]\d{3}[-.]\d{4}\b`)

	// Unformatted account-number digit runs. Overlaps with the card
	// pattern by design; merged spans are masked once.
	bankAccountPattern = regexp.MustCompile(`\b\d{8,17}\b`)
)

// Registry holds the active detectors keyed by entity kind. Callers can
// register their own kinds; the defaults cover the baseline PII set.
type Registry struct {
	detectors map[EntityKind]*Detector
}

// NewRegistry returns a registry pre-loaded with the default detectors.
func NewRegistry() *Registry {
	r := &Registry{detectors: make(map[EntityKind]*Detector)}
	r.Register(NewDetector(EntityCreditCard, creditCardPattern))
	r.Register(NewDetector(EntityGovernmentID, governmentIDPattern))
	r.Register(NewDetector(EntityEmail, emailPattern))
	r.Register(NewDetector(EntityPhone, phonePattern))
	r.Register(NewDetector(EntityBankAccount, bankAccountPattern))
	return r
}

// Register adds or replaces the detector for its kind.
func (r *Registry) Register(d *Detector) {
	r.detectors[d.Kind] = d
}

// Detect runs the detectors for the requested kinds over the full text and
// returns all spans found, ordered by start offset. Unknown kinds are
// skipped.
func (r *Registry) Detect(text string, kinds []EntityKind) []Span {
	var spans []Span
	for _, kind := range kinds {
		d, ok := r.detectors[kind]
		if !ok {
			continue
		}
		spans = append(spans, d.Spans(text)...)
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start == spans[j].Start {
			return spans[i].End > spans[j].End
		}
		return spans[i].Start < spans[j].Start
	})
	return spans
}

// Kinds returns the registered entity kinds.
func (r *Registry) Kinds() []EntityKind {
	kinds := make([]EntityKind, 0, len(r.detectors))
	for k := range r.detectors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
