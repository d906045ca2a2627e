package kb

// Component is a knowledge-base component record.
type Component struct {
	Name string
	// URL is the component's API endpoint.
	URL string
	// SourceURL is the upstream project URL the KB associates with the component.
	SourceURL string
	// VersionsURL is the endpoint listing the component's versions.
	VersionsURL string
}

// ComponentVersion is one version belonging to a Component.
type ComponentVersion struct {
	VersionName string
	URL         string
}

// SearchHit is one entry from a KB component search.
type SearchHit struct {
	ComponentURL string
}

// SearchPage is the first page of a KB component search.
type SearchPage struct {
	// ResultsInPage is the hit count the KB reports for this page.
	ResultsInPage int
	Hits          []SearchHit
}

// Project is a governance-system project.
type Project struct {
	Name        string
	URL         string
	VersionsURL string
}

// ProjectVersion is one version of a Project.
type ProjectVersion struct {
	Name          string
	URL           string
	ComponentsURL string
}

// MatchTypeManual is the BOM match type of components added by hand or by this tool.
const MatchTypeManual = "MANUAL_BOM_COMPONENT"

// BOMComponent is a component already registered against a project version.
type BOMComponent struct {
	MatchTypes          []string
	ComponentVersionURL string
	// URL is the BOM entry's own endpoint, used for deletion.
	URL string
}

// Manual reports whether the entry was added manually rather than by a scan.
func (c BOMComponent) Manual() bool {
	return len(c.MatchTypes) > 0 && c.MatchTypes[0] == MatchTypeManual
}

// BOM is the set of components registered against a project version.
type BOM struct {
	TotalCount int
	Items      []BOMComponent
}

// Provenance annotates a manually added BOM component.
type Provenance struct {
	Purpose      string
	Modification string
}
