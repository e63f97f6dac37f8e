package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"(415) 555-2671", "+14155552671"},
		{"+14155552671", "+14155552671"},
		{"  +1 415 555 2671 ", "+14155552671"},
		{"not-a-number", "not-a-number"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := NormalizeE164(tc.input); got != tc.want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
