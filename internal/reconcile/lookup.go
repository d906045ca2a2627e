package reconcile

import (
	"context"

	"github.com/kamusis/kbmatch/internal/kbfile"
	"github.com/kamusis/kbmatch/internal/manifest"
	"github.com/kamusis/kbmatch/internal/resolve"
)

// LookupSummary counts Lookup outcomes.
type LookupSummary struct {
	Entries   int
	Matched   int
	Cached    int
	Negative  int
	NoMatch   int
	Attempts  int
	Remaining int // entries not processed because the attempt cap was hit
}

// Lookup resolves every manifest entry the KB file does not already answer and
// persists each result to the KB file as soon as it is known.
//
// Precedence per entry: a NO MATCH component is skipped; a cached name/version is
// skipped; a known component with an unknown version is resolved against each cached
// component URL in order; an unknown component goes through the full resolver.
func (r *Reconciler) Lookup(ctx context.Context, entries []manifest.Entry) (*LookupSummary, error) {
	max := r.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	sum := &LookupSummary{}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			sum.Remaining = len(entries) - i
			return sum, err
		}
		sum.Entries++
		r.lookupEntry(ctx, e, sum)

		if sum.Attempts >= max && i < len(entries)-1 {
			sum.Remaining = len(entries) - i - 1
			r.logger.Warn("attempt limit reached", "attempts", sum.Attempts, "remaining", sum.Remaining)
			return sum, ErrAttemptLimit
		}
	}
	return sum, nil
}

func (r *Reconciler) lookupEntry(ctx context.Context, e manifest.Entry, sum *LookupSummary) {
	urls, outcome := r.cache.Candidates(e.Name)
	switch outcome {
	case kbfile.Negative:
		sum.Negative++
		r.report(Event{Entry: e, Status: StatusNegative})
		return

	case kbfile.Found:
		switch lk := r.cache.Version(e.Name, e.Version); lk.Outcome {
		case kbfile.Found:
			sum.Cached++
			r.report(Event{Entry: e, Status: StatusCached, VersionURL: lk.URL})
			return
		case kbfile.Negative:
			sum.Cached++
			r.report(Event{Entry: e, Status: StatusCachedNoVersion})
			return
		}
		r.logger.Debug("component known, resolving version", "name", e.Name, "version", e.Version, "candidates", len(urls))

		var m resolve.Match
		for _, u := range urls {
			sum.Attempts++
			if m = r.resolver.ResolveVersion(ctx, u, e.Version); m.Found() {
				break
			}
		}
		if m.Found() {
			sum.Matched++
			r.persistVersion(e, kbfile.Record{
				LocalName:    e.Name,
				KBName:       m.ComponentName,
				SourceURL:    m.SourceURL,
				ComponentURL: m.ComponentURL,
			}, m.VersionURL)
			r.report(Event{Entry: e, Status: StatusMatched, Match: m, VersionURL: m.VersionURL})
			return
		}
		sum.NoMatch++
		r.persistVersion(e, kbfile.Record{LocalName: e.Name, ComponentURL: urls[0]}, kbfile.NoVersionMatch)
		r.report(Event{Entry: e, Status: StatusNoVersionMatch})

	default:
		sum.Attempts++
		rec, m := r.resolver.Resolve(ctx, e.Name, e.Version)
		if err := r.cache.Append(rec); err != nil {
			r.logger.Error("cannot append KB file record", "name", e.Name, "err", err)
		}
		if m.Found() {
			sum.Matched++
			r.report(Event{Entry: e, Status: StatusMatched, Match: m, VersionURL: m.VersionURL})
			return
		}
		sum.NoMatch++
		r.report(Event{Entry: e, Status: StatusNoMatch})
	}
}

// persistVersion records version → versionURL on the header line for
// header.LocalName/header.ComponentURL, appending a new line if the KB file lacks it.
func (r *Reconciler) persistVersion(e manifest.Entry, header kbfile.Record, versionURL string) {
	found, err := r.cache.AmendVersion(header.LocalName, header.ComponentURL, e.Version, versionURL)
	if err != nil {
		r.logger.Error("cannot update KB file", "name", e.Name, "version", e.Version, "err", err)
		return
	}
	if found {
		return
	}
	header.Versions = []kbfile.VersionPair{{Local: e.Version, URL: versionURL}}
	if err := r.cache.Append(header); err != nil {
		r.logger.Error("cannot append KB file record", "name", e.Name, "err", err)
	}
}
