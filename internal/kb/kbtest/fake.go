// Package kbtest provides an in-memory kb.Client for tests.
package kbtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/kamusis/kbmatch/internal/kb"
)

// Added records one AddComponentToBOM call.
type Added struct {
	VersionURL   string
	KBVersionURL string
	Provenance   kb.Provenance
}

// Fake is an in-memory governance system. The zero value is not usable; call New.
type Fake struct {
	components map[string]*kb.Component
	versions   map[string][]kb.ComponentVersion
	search     map[string][]string
	projects   map[string]*kb.Project
	pversions  map[string]map[string]*kb.ProjectVersion
	boms       map[string]*kb.BOM

	// FailSearches makes SearchComponents fail for the listed queries.
	FailSearches map[string]bool
	// FailComponents makes GetComponent fail for the listed URLs.
	FailComponents map[string]bool
	// FailAdds makes AddComponentToBOM fail for the listed KB version URLs.
	FailAdds map[string]bool

	Searches      []string
	ComponentGets []string
	Added         []Added
	Deleted       []string
}

var _ kb.Client = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		components:     map[string]*kb.Component{},
		versions:       map[string][]kb.ComponentVersion{},
		search:         map[string][]string{},
		projects:       map[string]*kb.Project{},
		pversions:      map[string]map[string]*kb.ProjectVersion{},
		boms:           map[string]*kb.BOM{},
		FailSearches:   map[string]bool{},
		FailComponents: map[string]bool{},
		FailAdds:       map[string]bool{},
	}
}

// AddComponent registers a KB component at url with the given versions, in KB order.
// Version URLs are url + "/versions/" + version.
func (f *Fake) AddComponent(name, url, source string, versions ...string) {
	f.components[url] = &kb.Component{
		Name:        name,
		URL:         url,
		SourceURL:   source,
		VersionsURL: url + "/versions",
	}
	vs := make([]kb.ComponentVersion, 0, len(versions))
	for _, v := range versions {
		vs = append(vs, kb.ComponentVersion{VersionName: v, URL: VersionURL(url, v)})
	}
	f.versions[url+"/versions"] = vs
}

// VersionURL returns the URL Fake assigns to a component version.
func VersionURL(componentURL, version string) string {
	return componentURL + "/versions/" + version
}

// AddSearch makes a search for query return the given component URLs.
func (f *Fake) AddSearch(query string, componentURLs ...string) {
	f.search[query] = append(f.search[query], componentURLs...)
}

// AddBOMComponent seeds an existing BOM entry on a project version.
func (f *Fake) AddBOMComponent(versionURL string, c kb.BOMComponent) {
	bom := f.bom(versionURL)
	bom.Items = append(bom.Items, c)
	bom.TotalCount++
}

// SearchCount returns how many searches were issued for query.
func (f *Fake) SearchCount(query string) int {
	n := 0
	for _, s := range f.Searches {
		if s == query {
			n++
		}
	}
	return n
}

func (f *Fake) SearchComponents(_ context.Context, name string, _ int) (*kb.SearchPage, error) {
	f.Searches = append(f.Searches, name)
	if f.FailSearches[name] {
		return nil, fmt.Errorf("GET /api/search/components: HTTP 503")
	}
	urls := f.search[name]
	page := &kb.SearchPage{ResultsInPage: len(urls)}
	for _, u := range urls {
		page.Hits = append(page.Hits, kb.SearchHit{ComponentURL: u})
	}
	return page, nil
}

func (f *Fake) GetComponent(_ context.Context, url string) (*kb.Component, error) {
	f.ComponentGets = append(f.ComponentGets, url)
	if f.FailComponents[url] {
		return nil, fmt.Errorf("GET %s: HTTP 500", url)
	}
	c, ok := f.components[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: HTTP 404", url)
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) GetComponentVersions(_ context.Context, url string, limit int) ([]kb.ComponentVersion, error) {
	vs, ok := f.versions[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: HTTP 404", url)
	}
	if limit > 0 && len(vs) > limit {
		vs = vs[:limit]
	}
	return append([]kb.ComponentVersion(nil), vs...), nil
}

func (f *Fake) GetProjectByName(_ context.Context, name string) (*kb.Project, error) {
	p, ok := f.projects[name]
	if !ok {
		return nil, fmt.Errorf("project %q: %w", name, kb.ErrNotFound)
	}
	return p, nil
}

func (f *Fake) CreateProject(ctx context.Context, name, version string) error {
	if _, ok := f.projects[name]; ok {
		return fmt.Errorf("project %q already exists", name)
	}
	url := "http://hub/api/projects/" + slug(name)
	p := &kb.Project{Name: name, URL: url, VersionsURL: url + "/versions"}
	f.projects[name] = p
	f.pversions[name] = map[string]*kb.ProjectVersion{}
	return f.CreateProjectVersion(ctx, p, version)
}

func (f *Fake) GetVersionByName(_ context.Context, project *kb.Project, name string) (*kb.ProjectVersion, error) {
	v, ok := f.pversions[project.Name][name]
	if !ok {
		return nil, fmt.Errorf("version %q: %w", name, kb.ErrNotFound)
	}
	return v, nil
}

func (f *Fake) CreateProjectVersion(_ context.Context, project *kb.Project, name string) error {
	if f.pversions[project.Name] == nil {
		f.pversions[project.Name] = map[string]*kb.ProjectVersion{}
	}
	url := project.VersionsURL + "/" + slug(name)
	f.pversions[project.Name][name] = &kb.ProjectVersion{Name: name, URL: url, ComponentsURL: url + "/components"}
	return nil
}

func (f *Fake) GetVersionComponents(_ context.Context, version *kb.ProjectVersion, _ int) (*kb.BOM, error) {
	bom := f.bom(version.URL)
	return &kb.BOM{TotalCount: bom.TotalCount, Items: append([]kb.BOMComponent(nil), bom.Items...)}, nil
}

func (f *Fake) AddComponentToBOM(_ context.Context, version *kb.ProjectVersion, kbVersionURL string, p kb.Provenance) error {
	if f.FailAdds[kbVersionURL] {
		return fmt.Errorf("POST %s: HTTP 412", version.URL+"/components")
	}
	f.Added = append(f.Added, Added{VersionURL: version.URL, KBVersionURL: kbVersionURL, Provenance: p})
	f.AddBOMComponent(version.URL, kb.BOMComponent{
		MatchTypes:          []string{kb.MatchTypeManual},
		ComponentVersionURL: kbVersionURL,
	})
	return nil
}

func (f *Fake) DeleteComponentFromBOM(_ context.Context, url string) error {
	f.Deleted = append(f.Deleted, url)
	return nil
}

func (f *Fake) bom(versionURL string) *kb.BOM {
	bom, ok := f.boms[versionURL]
	if !ok {
		bom = &kb.BOM{}
		f.boms[versionURL] = bom
	}
	return bom
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}
