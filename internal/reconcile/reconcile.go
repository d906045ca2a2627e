// Package reconcile runs the two kbmatch workflows over a parsed manifest:
// Lookup builds or extends a KB file, Import applies a KB file to a project BOM.
package reconcile

import (
	"errors"

	"github.com/charmbracelet/log"

	"github.com/kamusis/kbmatch/internal/kb"
	"github.com/kamusis/kbmatch/internal/kbfile"
	"github.com/kamusis/kbmatch/internal/manifest"
	"github.com/kamusis/kbmatch/internal/resolve"
)

// DefaultMaxAttempts caps KB resolution attempts per Lookup run.
const DefaultMaxAttempts = 500

// ErrAttemptLimit stops a Lookup run that reached its attempt cap. The KB file
// written so far is valid; rerunning with it as input continues the work.
var ErrAttemptLimit = errors.New("resolution attempt limit reached")

// Status classifies what happened to one manifest entry.
type Status int

const (
	// StatusMatched: resolved against the KB during this run.
	StatusMatched Status = iota
	// StatusCached: the KB file already holds a version URL.
	StatusCached
	// StatusNegative: the KB file marks the component as NO MATCH.
	StatusNegative
	// StatusCachedNoVersion: the KB file marks the version as NO VERSION MATCH.
	StatusCachedNoVersion
	// StatusNoMatch: the KB was searched and nothing matched.
	StatusNoMatch
	// StatusNoVersionMatch: the component is known but no KB version matched.
	StatusNoVersionMatch
	// StatusNotInKBFile: import only, the component is absent from the KB file.
	StatusNotInKBFile
	// StatusAdded: import only, registered in the BOM.
	StatusAdded
	// StatusPresent: import only, the KB version is already in the BOM.
	StatusPresent
	// StatusFailed: import only, the Hub rejected the BOM addition.
	StatusFailed
)

// Event reports the outcome for one manifest entry.
type Event struct {
	Entry  manifest.Entry
	Status Status
	// Match is set for StatusMatched.
	Match resolve.Match
	// VersionURL is the KB version URL used, when there is one.
	VersionURL string
}

// Reconciler sequences the resolver, the KB file and the Hub.
type Reconciler struct {
	client   kb.Client
	resolver *resolve.Resolver
	cache    *kbfile.Cache
	logger   *log.Logger

	// Report receives one Event per manifest entry. It may be nil.
	Report func(Event)
	// MaxAttempts caps resolution attempts in Lookup. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// BOMLimit is the page size used to list an existing BOM.
	BOMLimit int
}

// New returns a Reconciler.
func New(client kb.Client, resolver *resolve.Resolver, cache *kbfile.Cache, logger *log.Logger) *Reconciler {
	return &Reconciler{
		client:      client,
		resolver:    resolver,
		cache:       cache,
		logger:      logger,
		MaxAttempts: DefaultMaxAttempts,
		BOMLimit:    1000,
	}
}

func (r *Reconciler) report(ev Event) {
	if r.Report != nil {
		r.Report(ev)
	}
}
