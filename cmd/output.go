package cmd

import (
	"fmt"
	"os"

	"github.com/kamusis/kbmatch/internal/reconcile"
)

// ── Unified output helpers ────────────────────────────────────────────────────
// All commands use these functions to ensure consistent icon usage and
// indentation throughout kbmatch's CLI output.
//
// Icon semantics:
//   ✓  matched / added
//   ✗  error / failure          (written to stderr)
//   ⚠  warning
//   ○  answered by the KB file / already present
//   -  no match
//   ~  neutral info / state change

// printSection prints a top-level section header, e.g. "=== KB Lookup ===".
func printSection(title string) {
	fmt.Printf("\n=== %s ===\n", title)
}

// printBullet prints a grouped-section bullet, e.g. "● Unused manual components:".
func printBullet(title string) {
	fmt.Printf("\n● %s\n", title)
}

// printOK prints a success line.
//   name = "" → "  ✓  msg"
//   name set  → "  ✓  [name] msg"
func printOK(name, msg string) {
	if name == "" {
		fmt.Printf("  ✓  %s\n", msg)
	} else {
		fmt.Printf("  ✓  [%s] %s\n", name, msg)
	}
}

// printErr prints an error line to stderr.
func printErr(name, msg string) {
	if name == "" {
		fmt.Fprintf(os.Stderr, "  ✗  %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "  ✗  [%s] %s\n", name, msg)
	}
}

// printWarn prints a warning line.
func printWarn(name, msg string) {
	if name == "" {
		fmt.Printf("  ⚠  %s\n", msg)
	} else {
		fmt.Printf("  ⚠  [%s] %s\n", name, msg)
	}
}

// printSkip prints a skipped / not-applicable line.
func printSkip(name, msg string) {
	if name == "" {
		fmt.Printf("  ○  %s\n", msg)
	} else {
		fmt.Printf("  ○  [%s] %s\n", name, msg)
	}
}

// printMiss prints a not-found / missing line.
func printMiss(name, msg string) {
	if name == "" {
		fmt.Printf("  -  %s\n", msg)
	} else {
		fmt.Printf("  -  [%s] %s\n", name, msg)
	}
}

// printInfo prints a neutral informational / state-change line.
func printInfo(name, msg string) {
	if name == "" {
		fmt.Printf("  ~  %s\n", msg)
	} else {
		fmt.Printf("  ~  [%s] %s\n", name, msg)
	}
}

// printEvent prints one manifest entry outcome, named by its "name/version" key.
func printEvent(ev reconcile.Event) {
	name := ev.Entry.Key()
	switch ev.Status {
	case reconcile.StatusMatched:
		m := ev.Match
		if m.ComponentName == "" {
			printOK(name, "MATCHED")
			return
		}
		printOK(name, fmt.Sprintf("MATCHED '%s/%s' (%s, sourceURL=%s)", m.ComponentName, m.Version, m.Strength, m.SourceURL))
	case reconcile.StatusCached:
		printSkip(name, "already MATCHED in KB file")
	case reconcile.StatusNegative:
		printSkip(name, "NO MATCH in KB file")
	case reconcile.StatusCachedNoVersion:
		printSkip(name, "NO VERSION MATCH in KB file")
	case reconcile.StatusNoMatch:
		printMiss(name, "NO MATCH")
	case reconcile.StatusNoVersionMatch:
		printMiss(name, "NO VERSION MATCH")
	case reconcile.StatusNotInKBFile:
		printMiss(name, "not in KB file")
	case reconcile.StatusAdded:
		printOK(name, "added to BOM")
	case reconcile.StatusPresent:
		printSkip(name, "already in BOM")
	case reconcile.StatusFailed:
		printErr(name, "cannot add to BOM (see log)")
	}
}
