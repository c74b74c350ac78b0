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
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/ledgerscan/ledgerscan/config"
	"github.com/ledgerscan/ledgerscan/model"
)

// StatementLine is one raw line item lifted out of OCR text before
// normalization.
type StatementLine struct {
	Date           time.Time
	RawDescription string
	Amount         decimal.Decimal
}

// NormalizeResult carries the typed rows plus the batch-level review flag.
// NeedsReview is a signal for a human review queue, not a per-row rejection;
// all rows are returned either way.
type NormalizeResult struct {
	Rows        []*model.Transaction
	NeedsReview bool
}

const (
	categoryOther  = "Other"
	categoryIncome = "Income"

	otherBaselineConfidence = 0.6
	incomeConfidence        = 0.95

	// rule-based matching is heuristic; confidence never reaches certainty
	confidenceCeiling = 0.95
	vendorBoost       = 0.05

	vendorMatchThreshold = 0.85
)

// categoryRule maps description keywords to a category with a fixed baseline
// confidence.
type categoryRule struct {
	keywords   []string
	category   string
	confidence float64
}

var categoryRules = []categoryRule{
	{[]string{"walmart", "whole foods", "wholefds", "kroger", "trader joe", "safeway", "aldi", "grocery"}, "Groceries", 0.85},
	{[]string{"starbucks", "mcdonald", "chipotle", "doordash", "grubhub", "restaurant", "cafe", "pizza"}, "Dining", 0.8},
	{[]string{"uber", "lyft", "shell", "chevron", "exxon", "parking", "transit", "metro"}, "Transportation", 0.8},
	{[]string{"netflix", "spotify", "hulu", "prime video", "subscription"}, "Subscriptions", 0.85},
	{[]string{"comcast", "verizon", "t-mobile", "at&t", "electric", "water bill", "utility"}, "Utilities", 0.8},
	{[]string{"rent", "mortgage", "hoa"}, "Housing", 0.85},
	{[]string{"cvs", "walgreens", "pharmacy", "clinic", "dental"}, "Health", 0.8},
	{[]string{"atm fee", "overdraft", "service fee", "interest charge"}, "Fees", 0.75},
}

var incomeKeywords = []string{"payroll", "direct dep", "salary", "deposit", "refund", "reimbursement"}

// canonicalVendors are stable vendor keys matched fuzzily against normalized
// descriptions.
var canonicalVendors = []string{
	"Walmart", "Whole Foods", "Kroger", "Trader Joes", "Safeway", "Aldi",
	"Starbucks", "McDonalds", "Chipotle", "DoorDash",
	"Uber", "Lyft", "Shell", "Chevron",
	"Netflix", "Spotify", "Hulu",
	"Comcast", "Verizon", "T-Mobile",
	"CVS", "Walgreens", "Amazon", "Target", "Costco",
}

var (
	storeNumberPattern   = regexp.MustCompile(`#\s?\d+`)
	trailingCodePattern  = regexp.MustCompile(`\s+[A-Z]{2}\s*\d*$`)
	longDigitRunPattern  = regexp.MustCompile(`\b\d{4,}\b`)
	multiSpacePattern    = regexp.MustCompile(`\s{2,}`)
	paymentPrefixPattern = regexp.MustCompile(`(?i)^(pos |debit |credit |ach |card purchase |purchase |payment to |checkcard )+`)
)

// normalizeVendor strips boilerplate from a raw description to produce a
// stable vendor key and a normalization confidence. A fuzzy hit against the
// canonical vendor list snaps the key to its canonical spelling.
func normalizeVendor(rawDescription string) (string, float64) {
	cleaned := strings.TrimSpace(rawDescription)
	cleaned = paymentPrefixPattern.ReplaceAllString(cleaned, "")
	cleaned = storeNumberPattern.ReplaceAllString(cleaned, "")
	cleaned = longDigitRunPattern.ReplaceAllString(cleaned, "")
	cleaned = trailingCodePattern.ReplaceAllString(cleaned, "")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(strings.Trim(cleaned, "-*"))

	if cleaned == "" {
		return strings.TrimSpace(rawDescription), 0.3
	}

	if canonical, ok := matchCanonicalVendor(cleaned); ok {
		return canonical, 0.95
	}

	// how much boilerplate was stripped is a proxy for how noisy the
	// description was
	ratio := float64(len(cleaned)) / float64(len(rawDescription))
	confidence := 0.5 + 0.3*ratio
	return titleCase(cleaned), confidence
}

// matchCanonicalVendor fuzzily matches a cleaned description against the
// canonical vendor list using levenshtein similarity.
func matchCanonicalVendor(cleaned string) (string, bool) {
	lowered := strings.ToLower(cleaned)
	for _, vendor := range canonicalVendors {
		v := strings.ToLower(vendor)
		if strings.Contains(lowered, v) {
			return vendor, true
		}
		if similarity(lowered, v) >= vendorMatchThreshold {
			return vendor, true
		}
	}
	return "", false
}

// similarity returns 1 - normalized levenshtein distance.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	distance := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	return 1 - float64(distance)/float64(maxLen)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// categorize assigns a category and baseline confidence from the vendor and
// raw description. Positive amounts are income with high confidence;
// unmatched lines fall back to the default bucket.
func categorize(vendor, rawDescription string, amount decimal.Decimal) (string, float64) {
	haystack := strings.ToLower(vendor + " " + rawDescription)

	if amount.IsPositive() {
		return categoryIncome, incomeConfidence
	}

	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(haystack, keyword) {
				return rule.category, rule.confidence
			}
		}
	}
	return categoryOther, otherBaselineConfidence
}

// NormalizeLines turns raw statement line items into typed transactions.
// Vendor-normalization confidence compounds into category confidence, capped
// below certainty. When more than the configured count of rows land under the
// low-confidence threshold the whole batch is flagged for review.
func (l *Ledgerscan) NormalizeLines(lines []StatementLine, documentID, ownerID string) (*NormalizeResult, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	result := &NormalizeResult{Rows: make([]*model.Transaction, 0, len(lines))}
	lowConfidence := 0

	for _, line := range lines {
		vendor, vendorConfidence := normalizeVendor(line.RawDescription)
		category, confidence := categorize(vendor, line.RawDescription, line.Amount)

		switch {
		case vendorConfidence >= 0.9:
			confidence += vendorBoost
			if confidence > confidenceCeiling {
				confidence = confidenceCeiling
			}
		case category == categoryOther:
			// unknown vendor and unmatched category compound; these are the
			// rows a reviewer should look at
			confidence = otherBaselineConfidence * vendorConfidence
		}

		if confidence < cnf.Pipeline.ReviewConfidenceThreshold {
			lowConfidence++
		}

		result.Rows = append(result.Rows, &model.Transaction{
			DocumentID:     documentID,
			OwnerID:        ownerID,
			Date:           line.Date,
			Vendor:         vendor,
			RawDescription: line.RawDescription,
			Amount:         line.Amount,
			Category:       category,
			Confidence:     confidence,
		})
	}

	result.NeedsReview = lowConfidence > cnf.Pipeline.ReviewMaxLowRows
	return result, nil
}

var statementLinePattern = regexp.MustCompile(`^(?:(\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?)\s+)?(.+?)\s+\(?([+-]?\$?\d[\d,]*(?:\.\d{1,2})?)\)?$`)

// ParseStatementLines extracts raw line items from redacted OCR text. A line
// qualifies when it ends in an amount; everything before it (minus an
// optional leading date) is the raw description. Amounts in parentheses and
// amounts without an explicit sign both read as outflows; income keywords
// flip the sign back.
func ParseStatementLines(text string) []StatementLine {
	lines := []StatementLine{}

	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		groups := statementLinePattern.FindStringSubmatch(raw)
		if groups == nil {
			continue
		}

		dateStr, description, amountStr := groups[1], strings.TrimSpace(groups[2]), groups[3]
		if description == "" {
			continue
		}

		negative := strings.Contains(raw, "("+amountStr+")") || strings.HasPrefix(amountStr, "-")
		amountStr = strings.NewReplacer("$", "", ",", "", "+", "", "-", "").Replace(amountStr)
		amount, err := decimal.NewFromString(amountStr)
		if err != nil || amount.IsZero() {
			continue
		}

		explicitInflow := strings.HasPrefix(groups[3], "+")
		if !explicitInflow && !negative && !matchesIncomeKeyword(description) {
			negative = true
		}
		if negative {
			amount = amount.Neg()
		}

		line := StatementLine{RawDescription: description, Amount: amount}
		if dateStr != "" {
			line.Date = parseStatementDate(dateStr)
		}
		lines = append(lines, line)
	}

	return lines
}

func matchesIncomeKeyword(description string) bool {
	lowered := strings.ToLower(description)
	for _, keyword := range incomeKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

var statementDateLayouts = []string{"01/02/2006", "01/02/06", "1/2/2006", "1/2/06", "01-02-2006", "01/02", "1/2"}

func parseStatementDate(dateStr string) time.Time {
	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, dateStr); err == nil {
			if t.Year() == 0 {
				now := time.Now()
				t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			}
			return t
		}
	}
	return time.Time{}
}
