// Copyright 2025 ExpertRouter
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backends

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// SensitiveKind categorizes a detected span of sensitive text.
type SensitiveKind string

const (
	SensitiveSSN        SensitiveKind = "ssn"
	SensitiveCreditCard SensitiveKind = "credit_card"
	SensitiveEmail      SensitiveKind = "email"
	SensitivePhone      SensitiveKind = "phone"
	SensitiveIPAddress  SensitiveKind = "ip_address"
)

// SensitiveSeverity is how risky a detected match is to leave unredacted.
type SensitiveSeverity string

const (
	SeverityLow      SensitiveSeverity = "low"
	SeverityMedium   SensitiveSeverity = "medium"
	SeverityCritical SensitiveSeverity = "critical"
)

// SensitiveMatch is one detected span of sensitive text.
type SensitiveMatch struct {
	Kind       SensitiveKind
	Value      string
	Severity   SensitiveSeverity
	Confidence float64
	Start      int
	End        int
}

type sensitivePattern struct {
	kind      SensitiveKind
	pattern   *regexp.Regexp
	severity  SensitiveSeverity
	validate  func(match, context string) (bool, float64)
	minLength int
	maxLength int
}

// Scanner detects regulated data categories (SSNs, card numbers, emails,
// phone numbers, IP addresses) in free text, each validated beyond its
// regex match to keep the false-positive rate down — a credit-card-shaped
// number that fails Luhn, or an SSN with a reserved area code, is not
// reported.
type Scanner struct {
	patterns      []*sensitivePattern
	contextWindow int
	minConfidence float64
}

// NewScanner builds a Scanner with the default pattern set. minConfidence
// filters out validated-but-weak matches (spec §3 security expert).
func NewScanner(minConfidence float64) *Scanner {
	if minConfidence <= 0 {
		minConfidence = 0.5
	}
	return &Scanner{
		contextWindow: 40,
		minConfidence: minConfidence,
		patterns: []*sensitivePattern{
			{
				kind:      SensitiveSSN,
				pattern:   regexp.MustCompile(`\b(\d{3})[- ]?(\d{2})[- ]?(\d{4})\b`),
				severity:  SeverityCritical,
				validate:  validateSSN,
				minLength: 9,
				maxLength: 11,
			},
			{
				kind:      SensitiveCreditCard,
				pattern:   regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b|\b(\d{4})[- ]?(\d{4})[- ]?(\d{4})[- ]?(\d{4})\b`),
				severity:  SeverityCritical,
				validate:  validateCreditCard,
				minLength: 13,
				maxLength: 19,
			},
			{
				kind:      SensitiveEmail,
				pattern:   regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),
				severity:  SeverityMedium,
				validate:  validateEmail,
				minLength: 5,
				maxLength: 254,
			},
			{
				kind:      SensitivePhone,
				pattern:   regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(?[0-9]{3}\)?[-.\s]?)?[0-9]{3}[-.\s]?[0-9]{4}\b`),
				severity:  SeverityMedium,
				validate:  validatePhone,
				minLength: 7,
				maxLength: 20,
			},
			{
				kind:      SensitiveIPAddress,
				pattern:   regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`),
				severity:  SeverityLow,
				validate:  validateIPAddress,
				minLength: 7,
				maxLength: 15,
			},
		},
	}
}

// Scan returns every validated sensitive span found in text, filtered to
// matches at or above the scanner's minimum confidence.
func (s *Scanner) Scan(text string) []SensitiveMatch {
	var results []SensitiveMatch
	for _, p := range s.patterns {
		for _, idx := range p.pattern.FindAllStringIndex(text, -1) {
			start, end := idx[0], idx[1]
			matched := text[start:end]
			if len(matched) < p.minLength || len(matched) > p.maxLength {
				continue
			}
			context := s.extractContext(text, start, end)
			confidence := 1.0
			if p.validate != nil {
				valid, c := p.validate(matched, context)
				if !valid {
					continue
				}
				confidence = c
			}
			if confidence < s.minConfidence {
				continue
			}
			results = append(results, SensitiveMatch{
				Kind: p.kind, Value: matched, Severity: p.severity,
				Confidence: confidence, Start: start, End: end,
			})
		}
	}
	return results
}

func (s *Scanner) extractContext(text string, start, end int) string {
	from := start - s.contextWindow
	if from < 0 {
		from = 0
	}
	to := end + s.contextWindow
	if to > len(text) {
		to = len(text)
	}
	return text[from:to]
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func validateSSN(match, context string) (bool, float64) {
	clean := digitsOnly(match)
	if len(clean) != 9 {
		return false, 0
	}
	area, _ := strconv.Atoi(clean[0:3])
	group, _ := strconv.Atoi(clean[3:5])
	serial, _ := strconv.Atoi(clean[5:9])
	if area == 0 || area == 666 || area >= 900 || group == 0 || serial == 0 {
		return false, 0
	}
	lower := strings.ToLower(context)
	for _, neg := range []string{"order", "invoice", "tracking", "reference", "ticket"} {
		if strings.Contains(lower, neg) {
			return false, 0.3
		}
	}
	for _, pos := range []string{"ssn", "social security", "taxpayer", "tin"} {
		if strings.Contains(lower, pos) {
			return true, 0.95
		}
	}
	return true, 0.7
}

func validateCreditCard(match, context string) (bool, float64) {
	clean := digitsOnly(match)
	if len(clean) < 13 || len(clean) > 19 || !luhnCheck(clean) {
		return false, 0
	}
	lower := strings.ToLower(context)
	for _, neg := range []string{"phone", "fax", "tel:", "call"} {
		if strings.Contains(lower, neg) {
			return false, 0.2
		}
	}
	for _, pos := range []string{"card", "credit", "debit", "visa", "mastercard", "payment"} {
		if strings.Contains(lower, pos) {
			return true, 0.95
		}
	}
	return true, 0.85
}

func luhnCheck(number string) bool {
	sum := 0
	alt := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

func validateEmail(match, _ string) (bool, float64) {
	at := strings.LastIndex(match, "@")
	if at < 1 || at >= len(match)-4 {
		return false, 0
	}
	domain := match[at+1:]
	if !strings.Contains(domain, ".") || strings.Contains(match, "..") {
		return false, 0
	}
	if strings.Contains(strings.ToLower(domain), "example.com") {
		return true, 0.5
	}
	return true, 0.9
}

func validatePhone(match, context string) (bool, float64) {
	digits := digitsOnly(match)
	if len(digits) < 7 || len(digits) > 15 {
		return false, 0
	}
	lower := strings.ToLower(context)
	for _, neg := range []string{"zip", "postal", "price", "total", "quantity"} {
		if strings.Contains(lower, neg) {
			return false, 0.2
		}
	}
	for _, pos := range []string{"phone", "tel", "call", "mobile", "contact"} {
		if strings.Contains(lower, pos) {
			return true, 0.95
		}
	}
	return true, 0.7
}

func validateIPAddress(match, context string) (bool, float64) {
	parts := strings.Split(match, ".")
	if len(parts) != 4 {
		return false, 0
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false, 0
		}
	}
	if strings.HasPrefix(match, "127.") || strings.HasPrefix(match, "192.168.") || strings.HasPrefix(match, "10.") {
		return true, 0.4
	}
	return true, 0.8
}
