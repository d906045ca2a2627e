// Package kbfile implements the KB file: a flat, semicolon-delimited cache that maps
// local component names to KB component URLs and local versions to KB version URLs.
//
// Line layout:
//
//	localName;kbName;kbSourceURL;kbComponentURL;[localVersion;kbVersionURL;]*
//
// The file is human-editable. Fields are not escaped and must not contain ';'.
package kbfile

import (
	"fmt"
	"strings"
)

// On-disk negative markers. Lookups report them as Outcome Negative.
const (
	NoMatch        = "NO MATCH"
	NoVersionMatch = "NO VERSION MATCH"
)

// VersionPair maps one local version string to its resolved KB version URL.
type VersionPair struct {
	Local string
	URL   string
}

// Record is one line of the KB file.
type Record struct {
	LocalName    string
	KBName       string
	SourceURL    string
	ComponentURL string
	Versions     []VersionPair
}

// NegativeRecord returns the record stored when a component could not be matched at all.
func NegativeRecord(localName, version string) Record {
	return Record{
		LocalName:    localName,
		ComponentURL: NoMatch,
		Versions:     []VersionPair{{Local: version, URL: NoVersionMatch}},
	}
}

// Negative reports whether the record marks a component as deliberately unmatched.
func (r Record) Negative() bool {
	return r.ComponentURL == NoMatch
}

var fieldCleaner = strings.NewReplacer(";", "", "\r", "", "\n", " ")

// String renders the record as a KB file line without the trailing newline.
func (r Record) String() string {
	var b strings.Builder
	for _, f := range []string{r.LocalName, r.KBName, r.SourceURL, r.ComponentURL} {
		b.WriteString(fieldCleaner.Replace(f))
		b.WriteByte(';')
	}
	for _, v := range r.Versions {
		b.WriteString(versionSuffix(v.Local, v.URL))
	}
	return b.String()
}

func versionSuffix(version, url string) string {
	return fieldCleaner.Replace(version) + ";" + fieldCleaner.Replace(url) + ";"
}

// ParseRecord parses one KB file line. A trailing single field without its URL is ignored.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ";")
	if n := len(fields); n > 0 && fields[n-1] == "" {
		fields = fields[:n-1]
	}
	if len(fields) < 4 {
		return Record{}, fmt.Errorf("malformed KB file line (want at least 4 fields, got %d): %q", len(fields), line)
	}
	r := Record{
		LocalName:    fields[0],
		KBName:       fields[1],
		SourceURL:    fields[2],
		ComponentURL: fields[3],
	}
	for i := 4; i+1 < len(fields); i += 2 {
		r.Versions = append(r.Versions, VersionPair{Local: fields[i], URL: fields[i+1]})
	}
	return r, nil
}

// skipLine reports whether a raw line carries no record (blank or '#' comment).
func skipLine(line string) bool {
	s := strings.TrimSpace(line)
	return s == "" || strings.HasPrefix(s, "#")
}
