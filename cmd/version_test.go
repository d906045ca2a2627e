package cmd

import "testing"

func TestUserAgent(t *testing.T) {
	oldVersion, oldCommit := version, commit
	t.Cleanup(func() { version, commit = oldVersion, oldCommit })

	version, commit = "1.2.3", ""
	if got := userAgent(); got != "kbmatch/1.2.3" {
		t.Fatalf("userAgent() = %q", got)
	}
	commit = "abc123"
	if got := userAgent(); got != "kbmatch/1.2.3 (abc123)" {
		t.Fatalf("userAgent() = %q", got)
	}
}

func TestEmptyAsNA(t *testing.T) {
	if emptyAsNA("") != "n/a" || emptyAsNA("x") != "x" {
		t.Fatal("emptyAsNA mismatch")
	}
}
