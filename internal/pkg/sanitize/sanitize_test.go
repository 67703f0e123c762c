package sanitize

import "testing"

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"strips tags", "<script>alert(1)</script>hi", "hi"},
		{"strips markup keeps text", "<b>bold</b> move", "bold move"},
		{"newlines become br", "line one\nline two", "line one<br>line two"},
		{"windows newlines", "a\r\nb", "a<br>b"},
		{"trims whitespace", "  padded  ", "padded"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
