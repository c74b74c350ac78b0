package guardrails

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactCreditCardWholeSpan(t *testing.T) {
	registry := NewRegistry()
	text := "Card on file: 4111 1111 1111 1111 thanks"

	spans := registry.Detect(text, DefaultEntities)
	redacted, kinds := Redact(text, spans)

	assert.NotContains(t, redacted, "4111")
	assert.NotContains(t, redacted, "1111")
	assert.Contains(t, redacted, "[REDACTED:")
	assert.Contains(t, kinds, EntityCreditCard)

	// no partial digit sequence from the card survives masking
	digits := regexp.MustCompile(`\d{4,}`)
	assert.False(t, digits.MatchString(redacted))
}

func TestRedactIdempotent(t *testing.T) {
	registry := NewRegistry()
	text := "ssn 123-45-6789 card 4111111111111111 mail a@b.com"

	first, _ := Redact(text, registry.Detect(text, DefaultEntities))
	second, kinds := Redact(first, registry.Detect(first, DefaultEntities))

	assert.Equal(t, first, second)
	assert.Empty(t, kinds)
}

func TestRedactOverlappingDetectors(t *testing.T) {
	registry := NewRegistry()
	// matches both the credit-card and the bank-account detector; the
	// merged span must be masked exactly once
	text := "card: 4111111111111111."

	spans := registry.Detect(text, DefaultEntities)
	assert.GreaterOrEqual(t, len(spans), 2)

	redacted, _ := Redact(text, spans)
	assert.Equal(t, 1, len(regexp.MustCompile(`\[REDACTED:`).FindAllString(redacted, -1)))
	assert.NotContains(t, redacted, "4111")
}

func TestRedactPhoneNumbersNotDates(t *testing.T) {
	registry := NewRegistry()
	text := "call 555-123-4567 about the 01-15-2024 charge"

	redacted, kinds := Redact(text, registry.Detect(text, DefaultEntities))
	assert.Contains(t, kinds, EntityPhone)
	assert.NotContains(t, redacted, "4567")
	assert.Contains(t, redacted, "01-15-2024")
}

func TestRedactBankAccount(t *testing.T) {
	registry := NewRegistry()
	text := "transfer to account 12345678901 today"

	redacted, kinds := Redact(text, registry.Detect(text, DefaultEntities))
	assert.NotContains(t, redacted, "12345678901")
	assert.Contains(t, kinds, EntityBankAccount)
}

func TestRedactNoPII(t *testing.T) {
	registry := NewRegistry()
	text := "coffee 4.50 groceries 32.10"

	redacted, kinds := Redact(text, registry.Detect(text, DefaultEntities))
	assert.Equal(t, text, redacted)
	assert.Empty(t, kinds)
}

func TestCustomDetectorRegistration(t *testing.T) {
	registry := NewRegistry()
	kind := EntityKind("iban")
	registry.Register(NewDetector(kind, regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`)))

	text := "IBAN DE89370400440532013000"
	spans := registry.Detect(text, append(DefaultEntities, kind))
	redacted, kinds := Redact(text, spans)

	assert.Contains(t, kinds, kind)
	assert.NotContains(t, redacted, "DE8937")
}
