package identity

import "testing"

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercase passthrough", in: "navid", want: "navid"},
		{name: "mixed case", in: "NaViD", want: "navid"},
		{name: "surrounding space", in: "  Navid  ", want: "navid"},
		{name: "empty", in: "", want: ""},
		{name: "space only", in: "   ", want: ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeUsername(tc.in); got != tc.want {
				t.Fatalf("NormalizeUsername(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercase passthrough", in: "user@example.com", want: "user@example.com"},
		{name: "mixed case local and domain", in: "User@Example.COM", want: "user@example.com"},
		{name: "surrounding space", in: " user@example.com ", want: "user@example.com"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeEmail(tc.in); got != tc.want {
				t.Fatalf("NormalizeEmail(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "email routed through email rules", in: " User@Example.COM ", want: "user@example.com"},
		{name: "username routed through username rules", in: " NaViD ", want: "navid"},
		{name: "empty", in: "", want: ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeIdentifier(tc.in); got != tc.want {
				t.Fatalf("NormalizeIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
