package internal

import "testing"

func TestIsOpenableURL(t *testing.T) {
	// 1. Plain web URLs are openable
	for _, raw := range []string{
		"https://device.sso.us-east-1.amazonaws.com/",
		"https://acme.awsapps.com/start#/device?user_code=ABCD-EFGH",
		"http://localhost:8080/callback",
	} {
		if !isOpenableURL(raw) {
			t.Errorf("isOpenableURL(%q) = false, want true", raw)
		}
	}

	// 2. Everything else is rejected
	for _, raw := range []string{
		"file:///etc/passwd",
		"javascript:alert(1)",
		"ftp://host/file",
		"not a url at all",
		"https://",
		"",
	} {
		if isOpenableURL(raw) {
			t.Errorf("isOpenableURL(%q) = true, want false", raw)
		}
	}
}
