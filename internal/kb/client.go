// Package kb talks to the governance system (a Black Duck style Hub) that hosts
// the knowledge base of open-source components and the project BOMs.
package kb

import (
	"context"
	"errors"
)

// ErrNotFound is returned by the lookup-by-name calls when nothing matches.
var ErrNotFound = errors.New("not found")

// Client is the subset of the governance-system API used by kbmatch.
//
// Every call blocks until the server answers or the transport fails.
type Client interface {
	SearchComponents(ctx context.Context, name string, limit int) (*SearchPage, error)
	GetComponent(ctx context.Context, url string) (*Component, error)
	GetComponentVersions(ctx context.Context, url string, limit int) ([]ComponentVersion, error)

	GetProjectByName(ctx context.Context, name string) (*Project, error)
	CreateProject(ctx context.Context, name, version string) error
	GetVersionByName(ctx context.Context, project *Project, name string) (*ProjectVersion, error)
	CreateProjectVersion(ctx context.Context, project *Project, name string) error

	GetVersionComponents(ctx context.Context, version *ProjectVersion, limit int) (*BOM, error)
	AddComponentToBOM(ctx context.Context, version *ProjectVersion, kbVersionURL string, p Provenance) error
	// DeleteComponentFromBOM removes a BOM entry. The Hub versions this tool
	// targets reject the call, so the import workflow never uses it.
	DeleteComponentFromBOM(ctx context.Context, url string) error
}
