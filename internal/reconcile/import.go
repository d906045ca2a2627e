package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kamusis/kbmatch/internal/kb"
	"github.com/kamusis/kbmatch/internal/kbfile"
	"github.com/kamusis/kbmatch/internal/manifest"
)

// ProvenancePrefix starts the purpose text of every BOM component kbmatch adds.
const ProvenancePrefix = "kbmatch: imported from file "

// ImportOptions selects the BOM target of an Import run.
type ImportOptions struct {
	Project string
	Version string
	// SourceFile is the manifest path; its base name goes into the provenance.
	SourceFile string
	// CollectManual lists the manual components already in the BOM that the
	// manifest did not produce. They are reported, never deleted.
	CollectManual bool
}

// ImportSummary counts Import outcomes.
type ImportSummary struct {
	Entries   int
	Added     int
	Present   int
	Unmatched int
	Failed    int
	Created   bool // the project or its version was created
	// Existing is the BOM size before the run.
	Existing int
	// UnusedManual lists manual BOM entries with no corresponding manifest entry.
	UnusedManual []kb.BOMComponent
}

// Import registers the KB version of every manifest entry the KB file can answer as
// a manual component of the project version, creating the project version if needed.
func (r *Reconciler) Import(ctx context.Context, entries []manifest.Entry, opts ImportOptions) (*ImportSummary, error) {
	sum := &ImportSummary{}
	version, created, err := r.ensureVersion(ctx, opts.Project, opts.Version)
	if err != nil {
		return sum, err
	}
	sum.Created = created

	present := map[string]bool{}
	manual := map[string]kb.BOMComponent{}
	var manualOrder []string
	bom, err := r.client.GetVersionComponents(ctx, version, r.BOMLimit)
	if err != nil {
		r.logger.Error("cannot list BOM components", "project", opts.Project, "version", opts.Version, "err", err)
	} else {
		sum.Existing = bom.TotalCount
		for _, c := range bom.Items {
			present[c.ComponentVersionURL] = true
			if opts.CollectManual && c.Manual() {
				if _, dup := manual[c.ComponentVersionURL]; !dup {
					manualOrder = append(manualOrder, c.ComponentVersionURL)
				}
				manual[c.ComponentVersionURL] = c
			}
		}
		r.logger.Info("existing BOM", "project", opts.Project, "version", opts.Version,
			"components", bom.TotalCount, "manual", len(manual))
	}

	purpose := ProvenancePrefix + filepath.Base(opts.SourceFile)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Entries++

		url, st := r.versionURL(ctx, e)
		if url == "" {
			sum.Unmatched++
			r.report(Event{Entry: e, Status: st})
			continue
		}
		delete(manual, url)
		if present[url] {
			sum.Present++
			r.report(Event{Entry: e, Status: StatusPresent, VersionURL: url})
			continue
		}

		prov := kb.Provenance{
			Purpose:      purpose,
			Modification: "Original component = " + e.Key(),
		}
		if err := r.client.AddComponentToBOM(ctx, version, url, prov); err != nil {
			sum.Failed++
			r.logger.Error("cannot add BOM component", "name", e.Name, "version", e.Version, "url", url, "err", err)
			r.report(Event{Entry: e, Status: StatusFailed, VersionURL: url})
			continue
		}
		present[url] = true
		sum.Added++
		r.report(Event{Entry: e, Status: StatusAdded, VersionURL: url})
	}

	for _, u := range manualOrder {
		if c, ok := manual[u]; ok {
			sum.UnusedManual = append(sum.UnusedManual, c)
		}
	}
	if len(sum.UnusedManual) > 0 {
		r.logger.Warn("unused manual components left in place, deletion is not supported",
			"count", len(sum.UnusedManual))
	}
	return sum, nil
}

// ensureVersion returns the project version, creating the project with that version
// or the version alone when absent. It reports whether anything was created.
func (r *Reconciler) ensureVersion(ctx context.Context, project, version string) (*kb.ProjectVersion, bool, error) {
	p, err := r.client.GetProjectByName(ctx, project)
	if errors.Is(err, kb.ErrNotFound) {
		r.logger.Info("creating project", "project", project, "version", version)
		if err := r.client.CreateProject(ctx, project, version); err != nil {
			return nil, false, fmt.Errorf("cannot create project %s: %w", project, err)
		}
		p, err = r.client.GetProjectByName(ctx, project)
		if err != nil {
			return nil, false, fmt.Errorf("cannot retrieve created project %s: %w", project, err)
		}
		v, err := r.client.GetVersionByName(ctx, p, version)
		if err != nil {
			return nil, false, fmt.Errorf("cannot create version %s/%s: %w", project, version, err)
		}
		return v, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cannot retrieve project %s: %w", project, err)
	}

	v, err := r.client.GetVersionByName(ctx, p, version)
	if errors.Is(err, kb.ErrNotFound) {
		r.logger.Info("creating project version", "project", project, "version", version)
		if err := r.client.CreateProjectVersion(ctx, p, version); err != nil {
			return nil, false, fmt.Errorf("cannot create version %s/%s: %w", project, version, err)
		}
		v, err = r.client.GetVersionByName(ctx, p, version)
		if err != nil {
			return nil, false, fmt.Errorf("cannot create version %s/%s: %w", project, version, err)
		}
		return v, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cannot retrieve version %s/%s: %w", project, version, err)
	}
	return v, false, nil
}

// versionURL answers an entry from the KB file, falling back to version resolution
// against the cached component URLs. It never writes the KB file.
func (r *Reconciler) versionURL(ctx context.Context, e manifest.Entry) (string, Status) {
	urls, outcome := r.cache.Candidates(e.Name)
	switch outcome {
	case kbfile.NotFound:
		return "", StatusNotInKBFile
	case kbfile.Negative:
		return "", StatusNegative
	}
	switch lk := r.cache.Version(e.Name, e.Version); lk.Outcome {
	case kbfile.Found:
		return lk.URL, StatusCached
	case kbfile.Negative:
		return "", StatusCachedNoVersion
	}
	for _, u := range urls {
		if m := r.resolver.ResolveVersion(ctx, u, e.Version); m.Found() {
			return m.VersionURL, StatusMatched
		}
	}
	return "", StatusNoVersionMatch
}
