package cmd

import (
	"path/filepath"
	"testing"

	"github.com/kamusis/kbmatch/internal/config"
)

func TestDoctor_PassesWithCredentialsAndKBFile(t *testing.T) {
	_, dir := setupCmdTest(t)
	t.Setenv(config.EnvServerURL, "https://hub.example.com")
	t.Setenv(config.EnvAPIToken, "secret")
	kbf := writeFile(t, filepath.Join(dir, "kb.txt"), ""+
		"zlib;zlib;http://src;http://comp;1.2.11;http://comp/v/1;\n"+
		"libfoo;;;NO MATCH;1.0;NO VERSION MATCH;\n")

	err := runCLI(t, "doctor", "-k", kbf, "--log-file", filepath.Join(dir, "kbmatch.log"))
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
}

func TestDoctor_FailsWithoutToken(t *testing.T) {
	_, dir := setupCmdTest(t)
	t.Setenv(config.EnvServerURL, "https://hub.example.com")
	t.Setenv(config.EnvAPIToken, "")

	err := runCLI(t, "doctor", "--log-file", filepath.Join(dir, "kbmatch.log"))
	if err == nil {
		t.Fatal("doctor succeeded without an API token")
	}
}

func TestDoctor_FailsOnMissingKBFile(t *testing.T) {
	_, dir := setupCmdTest(t)
	t.Setenv(config.EnvServerURL, "https://hub.example.com")
	t.Setenv(config.EnvAPIToken, "secret")

	err := runCLI(t, "doctor", "-k", filepath.Join(dir, "absent.txt"), "--log-file", filepath.Join(dir, "kbmatch.log"))
	if err == nil {
		t.Fatal("doctor accepted a missing KB file")
	}
}
