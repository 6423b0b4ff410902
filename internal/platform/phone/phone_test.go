package phone

import "testing"

func TestIsE164(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"+12025550123", true},
		{"+442071838750", true},
		{"12025550123", false},
		{"+0123456", false},
		{"+1", false},
		{"+1234567890123456", false},
		{"+1 202 555 0123", false},
	}
	for _, tt := range tests {
		if got := IsE164(tt.in); got != tt.want {
			t.Fatalf("IsE164(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("+1 (650) 253-0000", "")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "+16502530000" {
		t.Fatalf("normalize = %q", got)
	}

	got, err = Normalize("(650) 253-0000", "us")
	if err != nil {
		t.Fatalf("normalize with region: %v", err)
	}
	if got != "+16502530000" {
		t.Fatalf("normalize with region = %q", got)
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "2025550123", "+1 555", "not a number"} {
		if _, err := Normalize(in, ""); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestRegion(t *testing.T) {
	if got := Region("+16502530000"); got != "US" {
		t.Fatalf("Region = %q, want US", got)
	}
	if got := Region("garbage"); got != "" {
		t.Fatalf("Region(garbage) = %q, want empty", got)
	}
}
