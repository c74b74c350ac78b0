/*
Copyright 2024 Ledgerscan Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ledgerscan

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerscan/ledgerscan/config"
)

func newTestNormalizer(t *testing.T) *Ledgerscan {
	t.Helper()
	config.MockConfig(&config.Configuration{})
	return &Ledgerscan{}
}

func knownVendorLine(amount float64) StatementLine {
	return StatementLine{RawDescription: "STARBUCKS #221", Amount: decimal.NewFromFloat(amount)}
}

func unknownVendorLine(amount float64) StatementLine {
	return StatementLine{RawDescription: "XQZW 99271", Amount: decimal.NewFromFloat(amount)}
}

func TestNormalizeVendorCanonicalSnap(t *testing.T) {
	vendor, confidence := normalizeVendor("POS WALMART #4421 DENVER CO")
	assert.Equal(t, "Walmart", vendor)
	assert.Equal(t, 0.95, confidence)

	vendor, confidence = normalizeVendor("STARBUCKS #221")
	assert.Equal(t, "Starbucks", vendor)
	assert.Equal(t, 0.95, confidence)
}

func TestNormalizeVendorFuzzyMatch(t *testing.T) {
	// one-character OCR slip still snaps to the canonical spelling
	vendor, confidence := normalizeVendor("STARBUCK5")
	assert.Equal(t, "Starbucks", vendor)
	assert.Equal(t, 0.95, confidence)
}

func TestCategorizePositiveAmountIsIncome(t *testing.T) {
	category, confidence := categorize("Acme Corp", "PAYROLL DEPOSIT ACME", decimal.NewFromInt(2000))
	assert.Equal(t, "Income", category)
	assert.Equal(t, 0.95, confidence)
}

func TestCategorizeFallsBackToOther(t *testing.T) {
	category, confidence := categorize("Xqzw", "XQZW 99271", decimal.NewFromInt(-10))
	assert.Equal(t, "Other", category)
	assert.Equal(t, 0.6, confidence)
}

func TestNormalizeLinesConfidenceCapped(t *testing.T) {
	l := newTestNormalizer(t)

	result, err := l.NormalizeLines([]StatementLine{knownVendorLine(-45.80)}, "doc_1", "owner_1")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	assert.Equal(t, "Starbucks", row.Vendor)
	assert.Equal(t, "Dining", row.Category)
	assert.Greater(t, row.Confidence, 0.8)
	assert.LessOrEqual(t, row.Confidence, 0.95)
}

func TestNormalizeLinesReviewFlagAboveThresholdCount(t *testing.T) {
	l := newTestNormalizer(t)

	lines := []StatementLine{
		knownVendorLine(-45.80),
		knownVendorLine(-12.00),
		unknownVendorLine(-10.00),
		unknownVendorLine(-20.00),
		unknownVendorLine(-30.00),
	}

	result, err := l.NormalizeLines(lines, "doc_1", "owner_1")
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)

	low := 0
	for _, row := range result.Rows {
		if row.Confidence < 0.6 {
			low++
		}
	}
	assert.Equal(t, 3, low)
	assert.True(t, result.NeedsReview)
}

func TestNormalizeLinesReviewFlagAtBoundaryCount(t *testing.T) {
	l := newTestNormalizer(t)

	// exactly the allowed count of low-confidence rows must not flag
	lines := []StatementLine{
		knownVendorLine(-45.80),
		knownVendorLine(-12.00),
		knownVendorLine(-33.10),
		unknownVendorLine(-10.00),
		unknownVendorLine(-20.00),
	}

	result, err := l.NormalizeLines(lines, "doc_1", "owner_1")
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	assert.False(t, result.NeedsReview)
}

func TestNormalizeLinesCategoryNeverEmpty(t *testing.T) {
	l := newTestNormalizer(t)

	result, err := l.NormalizeLines([]StatementLine{unknownVendorLine(-5)}, "doc_1", "owner_1")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Other", result.Rows[0].Category)
	assert.Less(t, result.Rows[0].Confidence, 0.6)
}

func TestParseStatementLines(t *testing.T) {
	text := `Account Statement
01/15/2024 STARBUCKS #221 45.80
01/16/2024 PAYROLL DEPOSIT ACME 2000.00
01/17/2024 NETFLIX.COM (12.50)
01/18/2024 REFUND ADJ +100.00
01-19-2024 TRADER JOES #55 23.45
Closing balance`

	lines := ParseStatementLines(text)
	require.Len(t, lines, 5)

	assert.Equal(t, "STARBUCKS #221", lines[0].RawDescription)
	assert.True(t, lines[0].Amount.Equal(decimal.NewFromFloat(-45.80)), "unsigned statement rows read as outflows")
	assert.Equal(t, 2024, lines[0].Date.Year())

	assert.True(t, lines[1].Amount.Equal(decimal.NewFromInt(2000)), "income keywords flip the sign back")
	assert.True(t, lines[2].Amount.Equal(decimal.NewFromFloat(-12.50)), "parenthesized amounts are outflows")
	assert.True(t, lines[3].Amount.Equal(decimal.NewFromInt(100)), "explicit plus is an inflow")

	assert.Equal(t, "TRADER JOES #55", lines[4].RawDescription, "dash-separated dates parse like slash dates")
	assert.Equal(t, time.January, lines[4].Date.Month())
	assert.Equal(t, 19, lines[4].Date.Day())
	assert.Equal(t, 2024, lines[4].Date.Year())
}

func TestParseStatementLinesSkipsNonRows(t *testing.T) {
	lines := ParseStatementLines("Summary of activity\n\nThank you for banking with us\n")
	assert.Empty(t, lines)
}
