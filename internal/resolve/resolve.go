// Package resolve finds the KB component and version for a free-text component name
// by searching the KB with progressively looser forms of the name.
package resolve

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kamusis/kbmatch/internal/kb"
	"github.com/kamusis/kbmatch/internal/kbfile"
	"github.com/kamusis/kbmatch/internal/match"
)

// Defaults for Options.
const (
	DefaultSearchLimit  = 20
	DefaultVersionLimit = 1000
)

// Options configures a Resolver.
type Options struct {
	// StripPatterns are removed (literally, not as regexps) from every name before searching.
	StripPatterns []string
	SearchLimit   int
	VersionLimit  int
}

// Match is a resolved KB component version.
type Match struct {
	ComponentName string
	ComponentURL  string
	SourceURL     string
	// Version is the KB's version name, which may differ from the local version.
	Version    string
	VersionURL string
	Strength   match.Strength
}

// Found reports whether the match reached at least match.Approximate.
func (m Match) Found() bool {
	return m.Strength > match.None
}

// Resolver resolves component names against a KB.
type Resolver struct {
	client kb.Client
	opts   Options
	logger *log.Logger
}

// New returns a Resolver using client for every KB call.
func New(client kb.Client, opts Options, logger *log.Logger) *Resolver {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.VersionLimit <= 0 {
		opts.VersionLimit = DefaultVersionLimit
	}
	return &Resolver{client: client, opts: opts, logger: logger}
}

// step is a state of the name-transformation sequence run by Resolve.
type step int

const (
	stepSearch    step = iota // search the working name as is
	stepNamespace             // '-' and '_' → "::", only before any truncation
	stepSpaces                // '-' and '_' → ' '
	stepTruncate              // drop the last '-' segment, else the last '.' segment
	stepDone
)

var (
	namespaceReplacer = strings.NewReplacer("-", "::", "_", "::")
	spaceReplacer     = strings.NewReplacer("-", " ", "_", " ")
)

// Resolve searches the KB for rawName and picks the best version for version.
//
// It returns the KB file record to persist and the best match seen. When nothing
// reached match.Approximate the record is the negative record.
func (r *Resolver) Resolve(ctx context.Context, rawName, version string) (kbfile.Record, Match) {
	name := r.Strip(rawName)
	baseline := name
	var best Match

	st := stepSearch
	if name == "" {
		st = stepDone
	}
	for st != stepDone {
		switch st {
		case stepSearch:
			best = better(best, r.search(ctx, name, version))
			st = stepNamespace
		case stepNamespace:
			if name == baseline && strings.Contains(name, "-") {
				best = better(best, r.search(ctx, namespaceReplacer.Replace(name), version))
			}
			st = stepSpaces
		case stepSpaces:
			if strings.ContainsAny(name, "-_") {
				best = better(best, r.search(ctx, spaceReplacer.Replace(name), version))
			}
			st = stepTruncate
		case stepTruncate:
			next, ok := truncate(name)
			if !ok {
				st = stepDone
				continue
			}
			name = next
			st = stepSearch
		}
		if best.Strength == match.Exact {
			st = stepDone
		}
	}

	if !best.Found() {
		r.logger.Info("no KB match", "name", rawName, "version", version)
		return kbfile.NegativeRecord(rawName, version), best
	}
	r.logger.Info("KB match", "name", rawName, "version", version,
		"component", best.ComponentName, "kbversion", best.Version, "strength", best.Strength)
	return kbfile.Record{
		LocalName:    rawName,
		KBName:       best.ComponentName,
		SourceURL:    best.SourceURL,
		ComponentURL: best.ComponentURL,
		Versions:     []kbfile.VersionPair{{Local: version, URL: best.VersionURL}},
	}, best
}

// Strip removes every configured strip pattern from name.
func (r *Resolver) Strip(name string) string {
	for _, p := range r.opts.StripPatterns {
		if p == "" {
			continue
		}
		name = strings.ReplaceAll(name, p, "")
	}
	return name
}

// ResolveVersion fetches a known KB component and matches version against its
// version list. Failures are logged and yield a zero Match.
func (r *Resolver) ResolveVersion(ctx context.Context, componentURL, version string) Match {
	comp, err := r.client.GetComponent(ctx, componentURL)
	if err != nil {
		r.logger.Error("cannot retrieve component", "url", componentURL, "err", err)
		return Match{}
	}
	versions, err := r.client.GetComponentVersions(ctx, comp.VersionsURL, r.opts.VersionLimit)
	if err != nil {
		r.logger.Error("cannot retrieve component versions", "url", comp.VersionsURL, "err", err)
		return Match{}
	}
	v, s := match.Resolve(versions, version)
	r.logger.Debug("version match", "component", comp.Name, "version", version,
		"candidates", len(versions), "kbversion", v.VersionName, "strength", s)
	if s == match.None {
		return Match{}
	}
	return Match{
		ComponentName: comp.Name,
		ComponentURL:  componentURL,
		SourceURL:     strings.ReplaceAll(comp.SourceURL, ";", ""),
		Version:       v.VersionName,
		VersionURL:    v.URL,
		Strength:      s,
	}
}

// search runs one KB query and returns the best version match across its hits.
func (r *Resolver) search(ctx context.Context, query, version string) Match {
	r.logger.Debug("searching KB", "query", query)
	page, err := r.client.SearchComponents(ctx, query, r.opts.SearchLimit)
	if err != nil {
		r.logger.Error("KB search failed", "query", query, "err", err)
		return Match{}
	}
	if page.ResultsInPage == 0 {
		return Match{}
	}
	r.logger.Debug("KB search hits", "query", query, "hits", len(page.Hits))

	var best Match
	for _, hit := range page.Hits {
		best = better(best, r.ResolveVersion(ctx, hit.ComponentURL, version))
		if best.Strength == match.Exact {
			break
		}
	}
	return best
}

// better returns candidate only when it is strictly stronger than current.
func better(current, candidate Match) Match {
	if candidate.Strength > current.Strength {
		return candidate
	}
	return current
}

// truncate drops the last '-' segment of name, or failing that the last '.' segment.
// It reports false when neither applies or nothing would be left.
func truncate(name string) (string, bool) {
	i := strings.LastIndex(name, "-")
	if i < 0 {
		i = strings.LastIndex(name, ".")
	}
	if i <= 0 {
		return "", false
	}
	return name[:i], true
}
