package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/kamusis/kbmatch/internal/config"
	"github.com/kamusis/kbmatch/internal/kb"
	"github.com/kamusis/kbmatch/internal/kb/kbtest"
)

// setupCmdTest isolates HOME, routes Hub calls to a fake and returns a scratch dir.
func setupCmdTest(t *testing.T) (*kbtest.Fake, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	fake := kbtest.New()
	old := newClient
	newClient = func(*config.Config, *log.Logger) (kb.Client, error) { return fake, nil }
	t.Cleanup(func() {
		newClient = old
		resetFlags()
	})
	return fake, t.TempDir()
}

func resetFlags() {
	flagConfigPath, flagLogFile, flagLogLevel = "", "", ""
	flagLookupManifest, flagLookupKBFile, flagLookupOutput = "", "", "kblookup.out"
	flagLookupStrip, flagLookupAppend = nil, false
	flagImportManifest, flagImportKBFile, flagImportProject, flagImportVersion = "", "", "", ""
	flagImportDelete = false
	flagInitServerURL, flagDoctorKBFile = "", ""
	for _, c := range append(rootCmd.Commands(), rootCmd) {
		unset := func(f *pflag.Flag) { f.Changed = false }
		c.Flags().VisitAll(unset)
		c.PersistentFlags().VisitAll(unset)
	}
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestKBLookup_WritesOutputKBFile(t *testing.T) {
	fake, dir := setupCmdTest(t)
	fake.AddComponent("zlib", "http://kb/c/zlib", "http://zlib.net", "1.2.11")
	fake.AddSearch("zlib", "http://kb/c/zlib")

	m := writeFile(t, filepath.Join(dir, "manifest.txt"), "zlib-1.2.11\nlibfoo-dev-1.0\n")
	out := filepath.Join(dir, "out.kb")

	err := runCLI(t, "kblookup", "-c", m, "-o", out, "-r=-dev", "--log-file", filepath.Join(dir, "kbmatch.log"))
	if err != nil {
		t.Fatalf("kblookup: %v", err)
	}

	want := "zlib;zlib;http://zlib.net;http://kb/c/zlib;1.2.11;" + kbtest.VersionURL("http://kb/c/zlib", "1.2.11") + ";\n" +
		"libfoo-dev;;;NO MATCH;1.0;NO VERSION MATCH;\n"
	if got := readFile(t, out); got != want {
		t.Fatalf("unexpected KB file:\n%s\nwant:\n%s", got, want)
	}
	if fake.SearchCount("libfoo") != 1 || fake.SearchCount("libfoo-dev") != 0 {
		t.Fatalf("strip pattern not applied, searches: %v", fake.Searches)
	}
	if !strings.Contains(readFile(t, filepath.Join(dir, "kbmatch.log")), "kblookup finished") {
		t.Fatal("expected run summary in the log file")
	}
}

func TestKBLookup_AppendMergesInputFirst(t *testing.T) {
	fake, dir := setupCmdTest(t)
	fake.AddComponent("zlib", "http://comp", "http://src", "1.2.12")

	in := writeFile(t, filepath.Join(dir, "in.kb"), "zlib;zlib;http://src;http://comp;1.2.11;http://v1;\n")
	m := writeFile(t, filepath.Join(dir, "manifest.txt"), "zlib-1.2.11\nzlib-1.2.12\n")
	out := filepath.Join(dir, "out.kb")

	if err := runCLI(t, "kblookup", "-c", m, "-k", in, "-o", out, "-a", "--log-file", filepath.Join(dir, "log")); err != nil {
		t.Fatalf("kblookup: %v", err)
	}

	want := "zlib;zlib;http://src;http://comp;1.2.11;http://v1;1.2.12;" + kbtest.VersionURL("http://comp", "1.2.12") + ";\n"
	if got := readFile(t, out); got != want {
		t.Fatalf("unexpected KB file:\n%s\nwant:\n%s", got, want)
	}
	if len(fake.Searches) != 0 {
		t.Fatalf("expected no searches, got %v", fake.Searches)
	}
}

func TestKBLookup_AppendRequiresKBFile(t *testing.T) {
	_, dir := setupCmdTest(t)
	m := writeFile(t, filepath.Join(dir, "manifest.txt"), "zlib-1.2.11\n")

	err := runCLI(t, "kblookup", "-c", m, "-a", "-o", filepath.Join(dir, "out.kb"))
	if err == nil || !strings.Contains(err.Error(), "-k") {
		t.Fatalf("expected -a/-k error, got %v", err)
	}
}

func TestKBLookup_AttemptLimitSuggestsRerun(t *testing.T) {
	_, dir := setupCmdTest(t)
	cfg := writeFile(t, filepath.Join(dir, "kbmatch.yaml"), "max_attempts: 1\n")
	m := writeFile(t, filepath.Join(dir, "manifest.txt"), "a-1\nb-1\n")
	out := filepath.Join(dir, "out.kb")

	err := runCLI(t, "kblookup", "--config", cfg, "-c", m, "-o", out, "--log-file", filepath.Join(dir, "log"))
	if err == nil || !strings.Contains(err.Error(), "rerun with -k "+out) {
		t.Fatalf("expected rerun instructions, got %v", err)
	}
	if got := readFile(t, out); got != "a;;;NO MATCH;1;NO VERSION MATCH;\n" {
		t.Fatalf("unexpected KB file %q", got)
	}
}

func TestKBLookup_MissingManifest(t *testing.T) {
	_, dir := setupCmdTest(t)
	err := runCLI(t, "kblookup", "-c", filepath.Join(dir, "none.txt"), "-o", filepath.Join(dir, "out.kb"),
		"--log-file", filepath.Join(dir, "log"))
	if err == nil {
		t.Fatal("expected an error for a missing manifest")
	}
}
