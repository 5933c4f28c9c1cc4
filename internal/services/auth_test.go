package services

import "testing"

func TestSlugify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"Onepoint Consulting", "onepoint_consulting"},
		{" 123%$", "123__"},
		{"already_ok", "already_ok"},
		{"Tabs\tand spaces", "tabs_and_spaces"},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTokenClaimsPermissions(t *testing.T) {
	t.Parallel()
	full := &TokenClaims{}
	if !full.HasPermission(PermissionWrite) || full.ReadOnly() {
		t.Fatal("token without permissions claim must be full access")
	}

	readOnly := &TokenClaims{Permissions: []string{PermissionRead}}
	if readOnly.HasPermission(PermissionWrite) {
		t.Fatal("read token must not carry write permission")
	}
	if !readOnly.ReadOnly() {
		t.Fatal("read token must report ReadOnly")
	}
	if !readOnly.HasPermission(PermissionRead) {
		t.Fatal("read token must carry read permission")
	}

	writer := &TokenClaims{Permissions: []string{PermissionRead, PermissionWrite}}
	if writer.ReadOnly() {
		t.Fatal("writer token reported ReadOnly")
	}
}
