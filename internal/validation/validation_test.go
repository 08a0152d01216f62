package validation

import "testing"

func TestIsValidUserID(t *testing.T) {
	valid := []string{"u123", "user_42", "a", "USER-9f", "usr_f81f3b4c2e5d4a9b8c7d"}
	for _, id := range valid {
		if !IsValidUserID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}

	invalid := []string{"", "user with space", "user!", "user@bank", string(make([]byte, 65))}
	for _, id := range invalid {
		if IsValidUserID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestIsValidCurrency(t *testing.T) {
	if !IsValidCurrency("AUD") || !IsValidCurrency("USD") {
		t.Error("expected three-letter uppercase codes to be valid")
	}
	for _, code := range []string{"aud", "AU", "AUDX", ""} {
		if IsValidCurrency(code) {
			t.Errorf("expected %q to be invalid", code)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeMerchant(t *testing.T) {
	if got := NormalizeMerchant("  SportsBet AU  "); got != "sportsbet au" {
		t.Errorf("got %q", got)
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("user_id", ""),
		ValidUserID("user_id", "ok_id"),
		PositiveAmount("amount", -5),
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs.Error() != "user_id: is required" {
		t.Errorf("unexpected error string: %s", errs.Error())
	}
}
