package kbfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// Outcome is the tri-state result of a cache lookup.
type Outcome int

const (
	// NotFound means the cache holds nothing for the key.
	NotFound Outcome = iota
	// Found means the cache holds a usable URL.
	Found
	// Negative means a previous run decided there is no match. Do not search again.
	Negative
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Negative:
		return "negative"
	default:
		return "not found"
	}
}

// Lookup is the result of a version lookup.
type Lookup struct {
	Outcome Outcome
	URL     string
}

// Cache is a KB file loaded into memory. Writes go to Path and keep the
// in-memory indices current.
//
// A Cache is not safe for concurrent use; see Lock for serializing processes.
type Cache struct {
	path   string
	logger *log.Logger

	// local name → KB component URLs in file order, including NoMatch markers
	components map[string][]string
	// "name/version" → KB version URL, including NoVersionMatch markers
	versions map[string]string
}

// New returns an empty cache whose writes go to path. The file is not read.
func New(path string, logger *log.Logger) *Cache {
	return &Cache{
		path:       path,
		logger:     logger,
		components: map[string][]string{},
		versions:   map[string]string{},
	}
}

// Open loads the KB file at path and returns a cache writing back to it.
func Open(path string, logger *log.Logger) (*Cache, error) {
	c := New(path, logger)
	if err := c.Load(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the file the cache writes to.
func (c *Cache) Path() string {
	return c.path
}

// Load parses every line of the KB file at path into the indices.
// A missing file is an error.
func (c *Cache) Load(path string) error {
	_, err := c.read(path, nil)
	return err
}

// Merge copies every line of src verbatim to the end of the cache file while
// indexing it. Merging the cache file into itself only loads it.
func (c *Cache) Merge(src string) error {
	if sameFile(src, c.path) {
		return c.Load(src)
	}
	var lines []string
	n, err := c.read(src, func(line string) { lines = append(lines, line) })
	if err != nil {
		return err
	}
	if err := appendLines(c.path, lines...); err != nil {
		return err
	}
	c.logger.Debug("merged KB file", "from", src, "into", c.path, "records", n)
	return nil
}

// Append adds one record to the end of the cache file.
func (c *Cache) Append(r Record) error {
	if err := appendLines(c.path, r.String()); err != nil {
		return err
	}
	c.index(r)
	c.logger.Debug("appended KB file record", "name", r.LocalName, "component", r.ComponentURL)
	return nil
}

// AmendVersion rewrites the cache file, appending "version;versionURL;" to the line
// whose local name and component URL match. It reports whether such a line exists.
// A line that already carries the exact pair is left unchanged. A cache file that
// does not exist yet has no matching line.
func (c *Cache) AmendVersion(localName, componentURL, version, versionURL string) (bool, error) {
	lines, err := readLines(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	suffix := versionSuffix(version, versionURL)
	found := false
	changed := false
	for i, line := range lines {
		if skipLine(line) {
			continue
		}
		r, err := ParseRecord(line)
		if err != nil || r.LocalName != localName || r.ComponentURL != componentURL {
			continue
		}
		found = true
		if hasPair(r, version, versionURL) {
			break
		}
		trimmed := strings.TrimRight(line, " \t")
		if !strings.HasSuffix(trimmed, ";") {
			trimmed += ";"
		}
		lines[i] = trimmed + suffix
		changed = true
		break
	}
	if !found {
		return false, nil
	}
	c.versions[versionKey(localName, version)] = versionURL
	if !changed {
		return true, nil
	}
	if err := rewrite(c.path, lines); err != nil {
		return true, err
	}
	c.logger.Debug("amended KB file record", "name", localName, "version", version, "url", versionURL)
	return true, nil
}

// Candidates returns the KB component URLs recorded for a local name.
// The outcome is Negative when every recorded URL is the NoMatch marker.
func (c *Cache) Candidates(name string) ([]string, Outcome) {
	urls, ok := c.components[name]
	if !ok {
		return nil, NotFound
	}
	var out []string
	for _, u := range urls {
		if u != NoMatch {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil, Negative
	}
	return out, Found
}

// Version returns the KB version URL recorded for name/version.
func (c *Cache) Version(name, version string) Lookup {
	u, ok := c.versions[versionKey(name, version)]
	switch {
	case !ok:
		return Lookup{Outcome: NotFound}
	case u == NoVersionMatch:
		return Lookup{Outcome: Negative}
	default:
		return Lookup{Outcome: Found, URL: u}
	}
}

// Indices returns copies of the name and version indices.
func (c *Cache) Indices() (map[string][]string, map[string]string) {
	names := make(map[string][]string, len(c.components))
	for k, v := range c.components {
		names[k] = append([]string(nil), v...)
	}
	versions := make(map[string]string, len(c.versions))
	for k, v := range c.versions {
		versions[k] = v
	}
	return names, versions
}

// read indexes every record line of path, passing each raw line to visit if set.
func (c *Cache) read(path string, visit func(string)) (int, error) {
	lines, err := readLines(path)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, line := range lines {
		if visit != nil {
			visit(line)
		}
		if skipLine(line) {
			continue
		}
		r, err := ParseRecord(line)
		if err != nil {
			c.logger.Warn("skipping KB file line", "file", path, "line", i+1, "err", err)
			continue
		}
		c.index(r)
		n++
	}
	c.logger.Debug("loaded KB file", "file", path, "records", n)
	return n, nil
}

func (c *Cache) index(r Record) {
	urls := c.components[r.LocalName]
	seen := false
	for _, u := range urls {
		if u == r.ComponentURL {
			seen = true
			break
		}
	}
	if !seen {
		c.components[r.LocalName] = append(urls, r.ComponentURL)
	}
	for _, v := range r.Versions {
		c.versions[versionKey(r.LocalName, v.Local)] = v.URL
	}
}

func versionKey(name, version string) string {
	return name + "/" + version
}

func hasPair(r Record, version, url string) bool {
	for _, v := range r.Versions {
		if v.Local == version && v.URL == url {
			return true
		}
	}
	return false
}

// ── file helpers ─────────────────────────────────────────────────────────────

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open KB file %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read KB file %s: %w", path, err)
	}
	return lines, nil
}

// appendLines appends lines to path, creating it if needed and starting on a
// fresh line if the file does not end with a newline.
func appendLines(path string, lines ...string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open KB file %s for append: %w", path, err)
	}
	defer f.Close()

	needNewline, err := missingTrailingNewline(f)
	if err != nil {
		return fmt.Errorf("cannot inspect KB file %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if needNewline {
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	for _, line := range lines {
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("cannot write KB file %s: %w", path, err)
	}
	return nil
}

func missingTrailingNewline(f *os.File) (bool, error) {
	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	if st.Size() == 0 {
		return false, nil
	}
	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, st.Size()-1); err != nil && err != io.EOF {
		return false, err
	}
	return buf[0] != '\n', nil
}

// rewrite replaces path with lines via a temp file and rename, so a crash never
// leaves a half-written cache.
func rewrite(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("cannot create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := bw.WriteString(line); err != nil {
			_ = tmp.Close()
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if st, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmp.Name(), st.Mode().Perm())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cannot replace KB file %s: %w", path, err)
	}
	return nil
}

func sameFile(a, b string) bool {
	sa, errA := os.Stat(a)
	sb, errB := os.Stat(b)
	if errA == nil && errB == nil {
		return os.SameFile(sa, sb)
	}
	return filepath.Clean(a) == filepath.Clean(b)
}
