// Package manifest reads component lists exported from a build manifest.
//
// Each non-empty line names one component in the form
// name-with-dashes-<version tokens>, e.g. "libfoo-bar-2.4.1".
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Entry is one component parsed from a manifest line.
type Entry struct {
	Name    string
	Version string
	// Line is the normalized source line the entry came from.
	Line string
}

// Key returns the "name/version" string used as the version-index key.
func (e Entry) Key() string {
	return e.Name + "/" + e.Version
}

// ParseLine splits a manifest line on '-'. Tokens starting with a digit are
// dot-joined into the version; all other tokens are dash-joined into the name.
// Order is preserved within each group and empty tokens are dropped.
func ParseLine(line string) Entry {
	line = normalizeLine(line)
	var name, version []string
	for _, seg := range strings.Split(line, "-") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if seg[0] >= '0' && seg[0] <= '9' {
			version = append(version, seg)
		} else {
			name = append(name, seg)
		}
	}
	return Entry{
		Name:    strings.Join(name, "-"),
		Version: strings.Join(version, "."),
		Line:    line,
	}
}

// Read parses every non-blank line of the manifest at path.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open manifest %s: %w", path, err)
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := normalizeLine(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, ParseLine(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", path, err)
	}
	return out, nil
}

func normalizeLine(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimSpace(norm.NFC.String(s))
}
