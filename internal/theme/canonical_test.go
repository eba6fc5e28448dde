package theme

import "testing"

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already canonical", input: "byd", want: "byd"},
		{name: "case and padding", input: " BYD  Inc ", want: "byd inc"},
		{name: "tabs and newlines", input: "china\tconsumer\nspending", want: "china consumer spending"},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Canonicalize(tc.input); got != tc.want {
				t.Fatalf("Canonicalize(%q): got %q want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	t.Parallel()

	once := Canonicalize(" BYD  Inc ")
	twice := Canonicalize(once)
	if once != twice {
		t.Fatalf("canonicalize is not idempotent: %q != %q", once, twice)
	}
	if once != Canonicalize("byd inc") {
		t.Fatalf("case/whitespace insensitivity broken: %q", once)
	}
}
