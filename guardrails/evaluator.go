package guardrails

import (
	"context"
	"regexp"

	"github.com/sirupsen/logrus"
)

// Origin describes where the text under evaluation came from. The jailbreak
// heuristic only applies to conversational text; OCR output is never treated
// as an instruction stream.
type Origin string

const (
	OriginDocument Origin = "document"
	OriginChat     Origin = "chat"
)

// Policy enumerates the protections active for a caller. PII detection and
// jailbreak protection are baseline protections for the ingestion pipeline:
// a policy may widen the entity set but cannot switch them off.
type Policy struct {
	PIIDetection        bool
	Moderation          bool
	JailbreakProtection bool
	HallucinationCheck  bool
	PIIEntities         []EntityKind
}

// DefaultPolicy returns the pipeline baseline.
func DefaultPolicy() Policy {
	return Policy{
		PIIDetection:        true,
		JailbreakProtection: true,
		PIIEntities:         DefaultEntities,
	}
}

// withBaseline forces the non-optional protections on, whatever the caller
// configured.
func (p Policy) withBaseline() Policy {
	p.PIIDetection = true
	p.JailbreakProtection = true
	if len(p.PIIEntities) == 0 {
		p.PIIEntities = DefaultEntities
	}
	return p
}

// Signals carries the non-blocking observations from an evaluation. The
// grounding fields are only populated by EvaluateAnswer under a policy with
// the hallucination check enabled.
type Signals struct {
	PIIPresent     bool         `json:"pii_present"`
	PIIEntities    []EntityKind `json:"pii_entities,omitempty"`
	GroundingScore float64      `json:"grounding_score,omitempty"`
	Ungrounded     bool         `json:"ungrounded,omitempty"`
}

// Result is the outcome of one evaluation. When OK is false the redacted
// text is empty and must never be persisted or forwarded; only Reasons are
// kept for audit.
type Result struct {
	OK       bool     `json:"ok"`
	Redacted string   `json:"redacted"`
	Reasons  []string `json:"reasons,omitempty"`
	Signals  Signals  `json:"signals"`
}

const (
	ReasonPIIDetected       = "pii_detected"
	ReasonJailbreakAttempt  = "jailbreak_attempt"
	ReasonModerationFlagged = "moderation_flagged"
)

// Prompt-injection phrasings that hard-block conversational input. There is
// no safe partial redaction of an adversarial instruction.
var jailbreakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(instructions|guidelines|rules)`),
	regexp.MustCompile(`(?i)you\s+are\s+no\s+longer\s+`),
	regexp.MustCompile(`(?i)pretend\s+(that\s+)?you\s+(are|have)\s+no\s+(rules|restrictions|guidelines)`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+are\s+)?an?\s+unrestricted`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+prompt|hidden\s+instructions)`),
	regexp.MustCompile(`(?i)\bDAN\s+mode\b`),
}

// Evaluator applies a policy to raw text: detection, redaction, and the
// hard-block heuristics. The evaluator itself is stateless; moderation is
// the only outbound call and is skipped when no classifier is configured.
type Evaluator struct {
	registry   *Registry
	moderation ModerationClient
}

// NewEvaluator wires an evaluator from a detector registry and an optional
// moderation client (nil disables moderation even when a policy asks for it).
func NewEvaluator(registry *Registry, moderation ModerationClient) *Evaluator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Evaluator{registry: registry, moderation: moderation}
}

// Registry exposes the evaluator's detector registry so callers can add
// their own entity kinds.
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// Evaluate runs the active protections over text. Hard blocks (jailbreak,
// moderation) win over redaction: a blocked result carries no redacted text.
// Redaction is idempotent; evaluating an already-redacted text is a no-op.
func (e *Evaluator) Evaluate(ctx context.Context, text string, origin Origin, policy Policy) (*Result, error) {
	policy = policy.withBaseline()

	result := &Result{OK: true}

	spans := e.registry.Detect(text, policy.PIIEntities)
	redacted, kinds := Redact(text, spans)
	if len(kinds) > 0 {
		result.Signals.PIIPresent = true
		result.Signals.PIIEntities = kinds
	}

	jailbreakHit := false
	if origin == OriginChat && policy.JailbreakProtection {
		for _, p := range jailbreakPatterns {
			if p.MatchString(text) {
				jailbreakHit = true
				break
			}
		}
	}
	blocked := jailbreakHit

	moderationHit := false
	if policy.Moderation && e.moderation != nil {
		verdict, err := e.moderation.Classify(ctx, text)
		if err != nil {
			// A moderation outage is transient; the caller decides whether
			// to retry the job.
			return nil, err
		}
		if verdict.Flagged {
			moderationHit = true
			blocked = true
		}
	}

	if blocked {
		result.OK = false
		result.Redacted = ""
		if result.Signals.PIIPresent {
			result.Reasons = append(result.Reasons, ReasonPIIDetected)
		}
		if jailbreakHit {
			result.Reasons = append(result.Reasons, ReasonJailbreakAttempt)
		}
		if moderationHit {
			result.Reasons = append(result.Reasons, ReasonModerationFlagged)
		}
		logrus.WithField("reasons", result.Reasons).Info("guardrails blocked content")
		return result, nil
	}

	result.Redacted = redacted
	return result, nil
}

// groundingFlagThreshold is the trigram-overlap score below which an answer
// is flagged as ungrounded. Short factual answers legitimately score low, so
// the flag is a signal, never a block.
const groundingFlagThreshold = 0.35

// EvaluateAnswer runs the conversational protections over a generated answer
// and, when the policy enables the hallucination check, scores the answer
// against the source text it claims to summarize. The grounding score and the
// ungrounded flag land in Signals; the caller decides what to do with them.
func (e *Evaluator) EvaluateAnswer(ctx context.Context, answer, source string, policy Policy) (*Result, error) {
	result, err := e.Evaluate(ctx, answer, OriginChat, policy)
	if err != nil || !result.OK {
		return result, err
	}
	if policy.HallucinationCheck {
		score := GroundingScore(answer, source)
		result.Signals.GroundingScore = score
		result.Signals.Ungrounded = score < groundingFlagThreshold
	}
	return result, nil
}
