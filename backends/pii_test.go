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

import "testing"

func TestScanner_ScanDetectsValidSSNWithContext(t *testing.T) {
	s := NewScanner(0.5)
	matches := s.Scan("Please confirm SSN 523-45-6789 on file.")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Kind != SensitiveSSN || matches[0].Severity != SeverityCritical {
		t.Errorf("unexpected match: %+v", matches[0])
	}
}

func TestScanner_ScanRejectsSSNWithReservedAreaCode(t *testing.T) {
	s := NewScanner(0.5)
	matches := s.Scan("Tracking number 900-12-3456 for your order.")
	for _, m := range matches {
		if m.Kind == SensitiveSSN {
			t.Errorf("expected no SSN match for reserved area code, got %+v", m)
		}
	}
}

func TestScanner_ScanValidatesCreditCardWithLuhn(t *testing.T) {
	s := NewScanner(0.5)
	// 4111111111111111 is a standard Luhn-valid Visa test number.
	matches := s.Scan("Card on file: 4111 1111 1111 1111, payment method default.")
	found := false
	for _, m := range matches {
		if m.Kind == SensitiveCreditCard {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a credit card match for a Luhn-valid number")
	}
}

func TestScanner_ScanRejectsCreditCardFailingLuhn(t *testing.T) {
	s := NewScanner(0.5)
	matches := s.Scan("Card: 4111 1111 1111 1112")
	for _, m := range matches {
		if m.Kind == SensitiveCreditCard {
			t.Errorf("expected no match for a Luhn-invalid number, got %+v", m)
		}
	}
}

func TestScanner_ScanFindsEmail(t *testing.T) {
	s := NewScanner(0.5)
	matches := s.Scan("Contact jane.doe@example.org for details.")
	if len(matches) != 1 || matches[0].Kind != SensitiveEmail {
		t.Fatalf("expected a single email match, got %+v", matches)
	}
}
