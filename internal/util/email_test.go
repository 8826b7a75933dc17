package util

import "testing"

func TestValidEmail(t *testing.T) {
	valid := []string{
		"kid@example.com",
		"first.last@sub.example.co.uk",
		"user+tag@example.org",
	}
	for _, s := range valid {
		if !ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = false, want true", s)
		}
	}

	invalid := []string{
		"",
		"   ",
		"kid",
		"kid@example",
		"@example.com",
		"Name <kid@example.com>",
		"two@example.com, more@example.com",
	}
	for _, s := range invalid {
		if ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = true, want false", s)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Kid@Example.COM "); got != "kid@example.com" {
		t.Fatalf("got %q", got)
	}
}
