package qrexec

import "testing"

func TestEncodeForVMExec(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"path with dash and slashes", "/a/b-c.d", "-2Fa-2Fb--c.d"},
		{"already safe", "foo_bar.baz", "foo_bar.baz"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EncodeForVMExec(tc.in)
			if got != tc.want {
				t.Fatalf("EncodeForVMExec(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	inputs := []string{"/builder/plugins/foo-bar/file.txt", "plain", "weird space&chars!"}
	for _, in := range inputs {
		encoded := EncodeForVMExec(in)
		decoded, err := DecodeFromVMExec(encoded)
		if err != nil {
			t.Fatalf("decode %q: %v", encoded, err)
		}
		if decoded != in {
			t.Fatalf("round trip mismatch: got %q, want %q", decoded, in)
		}
	}
}
