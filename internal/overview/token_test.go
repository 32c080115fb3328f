package overview

import "testing"

func TestExtractToken(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"", "", false},
		{"   ", "", false},
		{"abc123", "abc123", true},
		{"  abc123  ", "abc123", true},
		{"https://edulink.example/p/tok_9?x=1", "tok_9", true},
		{"https://edulink.example/app/p/tok_9/", "tok_9", true},
		{"https://edulink.example/p/", "https://edulink.example/p/", true},
		{"edulink.example/p/tok_7#frag", "tok_7", true},
		{"/p/tok_8", "tok_8", true},
	}
	for _, tc := range cases {
		got, ok := ExtractToken(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ExtractToken(%q)=(%q,%v) want (%q,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
