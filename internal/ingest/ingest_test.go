package ingest

import "testing"

func TestNormalizeProjectName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"Company Handbook", "company_handbook"},
		{"  spaced  ", "spaced"},
		{"Already-ok_name1", "already-ok_name1"},
		{"über/project!", "_ber_project_"},
		{"UPPER", "upper"},
	}
	for _, tc := range cases {
		if got := NormalizeProjectName(tc.in); got != tc.want {
			t.Fatalf("NormalizeProjectName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
