package kb

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	mediaJSON = "application/json"
	// mediaBOM is required by the Hub when posting to a version's components.
	mediaBOM = "application/vnd.blackducksoftware.bill-of-materials-6+json"

	maxBodyBytes = 32 << 20
)

// HubConfig contains the resolved connection settings for a Hub.
type HubConfig struct {
	BaseURL     string
	APIToken    string
	InsecureTLS bool
	// Timeout bounds each request. Zero keeps the transport default (no timeout).
	Timeout time.Duration
	// UserAgent is sent with every request when set.
	UserAgent string
}

// Hub is the HTTP implementation of Client.
//
// It authenticates lazily: the API token is exchanged for a bearer token on the
// first request that reaches the server and reused for the lifetime of the Hub.
type Hub struct {
	baseURL   string
	apiToken  string
	userAgent string
	client    *http.Client
	logger    *log.Logger

	authMu   sync.Mutex
	authDone bool
	authErr  error
	bearer   string
}

var _ Client = (*Hub)(nil)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// NewHub constructs a Hub client.
func NewHub(cfg HubConfig, logger *log.Logger) *Hub {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed Hubs
	}
	return &Hub{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:  cfg.APIToken,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		logger:    logger,
	}
}

// ── wire types ────────────────────────────────────────────────────────────────

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type meta struct {
	Href  string `json:"href"`
	Links []link `json:"links"`
}

// linkHref returns the href of the link named rel, or "" if absent.
func (m meta) linkHref(rel string) string {
	for _, l := range m.Links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

type searchResponse struct {
	Items []struct {
		SearchResultStatistics struct {
			NumResultsInThisPage int `json:"numResultsInThisPage"`
		} `json:"searchResultStatistics"`
		Hits []struct {
			Component string `json:"component"`
		} `json:"hits"`
	} `json:"items"`
}

type componentResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Meta meta   `json:"_meta"`
}

type versionsResponse struct {
	Items []struct {
		VersionName string `json:"versionName"`
		Meta        meta   `json:"_meta"`
	} `json:"items"`
}

type projectsResponse struct {
	Items []struct {
		Name string `json:"name"`
		Meta meta   `json:"_meta"`
	} `json:"items"`
}

type bomResponse struct {
	TotalCount int `json:"totalCount"`
	Items      []struct {
		MatchTypes       []string `json:"matchTypes"`
		ComponentVersion string   `json:"componentVersion"`
		Meta             meta     `json:"_meta"`
	} `json:"items"`
}

// ── KB ────────────────────────────────────────────────────────────────────────

// SearchComponents queries the KB by component name and returns the first page.
func (h *Hub) SearchComponents(ctx context.Context, name string, limit int) (*SearchPage, error) {
	q := url.Values{}
	q.Set("q", "name:"+name)
	q.Set("limit", strconv.Itoa(limit))
	u := h.baseURL + "/api/search/components?" + q.Encode()

	var resp searchResponse
	if err := h.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	page := &SearchPage{}
	if len(resp.Items) == 0 {
		return page, nil
	}
	first := resp.Items[0]
	page.ResultsInPage = first.SearchResultStatistics.NumResultsInThisPage
	for _, hit := range first.Hits {
		if hit.Component == "" {
			continue
		}
		page.Hits = append(page.Hits, SearchHit{ComponentURL: hit.Component})
	}
	return page, nil
}

// GetComponent fetches component metadata from its KB URL.
func (h *Hub) GetComponent(ctx context.Context, componentURL string) (*Component, error) {
	var resp componentResponse
	if err := h.getJSON(ctx, componentURL, &resp); err != nil {
		return nil, err
	}
	versions := resp.Meta.linkHref("versions")
	if versions == "" && len(resp.Meta.Links) > 0 {
		versions = resp.Meta.Links[0].Href
	}
	if versions == "" {
		return nil, fmt.Errorf("component %s has no versions link", componentURL)
	}
	self := resp.Meta.Href
	if self == "" {
		self = componentURL
	}
	return &Component{
		Name:        resp.Name,
		URL:         self,
		SourceURL:   resp.URL,
		VersionsURL: versions,
	}, nil
}

// GetComponentVersions lists the versions of a component, in KB order.
func (h *Hub) GetComponentVersions(ctx context.Context, versionsURL string, limit int) ([]ComponentVersion, error) {
	u, err := withQuery(versionsURL, url.Values{"limit": {strconv.Itoa(limit)}})
	if err != nil {
		return nil, err
	}
	var resp versionsResponse
	if err := h.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	out := make([]ComponentVersion, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, ComponentVersion{VersionName: it.VersionName, URL: it.Meta.Href})
	}
	return out, nil
}

// ── projects ─────────────────────────────────────────────────────────────────

// GetProjectByName returns the project with exactly this name, or ErrNotFound.
func (h *Hub) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	q := url.Values{}
	q.Set("q", "name:"+name)
	q.Set("limit", "100")
	var resp projectsResponse
	if err := h.getJSON(ctx, h.baseURL+"/api/projects?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	for _, it := range resp.Items {
		if it.Name != name {
			continue
		}
		versions := it.Meta.linkHref("versions")
		if versions == "" {
			versions = it.Meta.Href + "/versions"
		}
		return &Project{Name: it.Name, URL: it.Meta.Href, VersionsURL: versions}, nil
	}
	return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
}

// CreateProject creates a project together with its first version.
func (h *Hub) CreateProject(ctx context.Context, name, version string) error {
	body := map[string]any{
		"name": name,
		"versionRequest": map[string]any{
			"versionName":  version,
			"phase":        "DEVELOPMENT",
			"distribution": "EXTERNAL",
		},
	}
	return h.send(ctx, http.MethodPost, h.baseURL+"/api/projects", mediaJSON, body)
}

// GetVersionByName returns the project version with exactly this name, or ErrNotFound.
func (h *Hub) GetVersionByName(ctx context.Context, project *Project, name string) (*ProjectVersion, error) {
	u, err := withQuery(project.VersionsURL, url.Values{"q": {"versionName:" + name}, "limit": {"100"}})
	if err != nil {
		return nil, err
	}
	var resp versionsResponse
	if err := h.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	for _, it := range resp.Items {
		if it.VersionName != name {
			continue
		}
		components := it.Meta.linkHref("components")
		if components == "" {
			components = it.Meta.Href + "/components"
		}
		return &ProjectVersion{Name: it.VersionName, URL: it.Meta.Href, ComponentsURL: components}, nil
	}
	return nil, fmt.Errorf("version %q of project %q: %w", name, project.Name, ErrNotFound)
}

// CreateProjectVersion adds a version to an existing project.
func (h *Hub) CreateProjectVersion(ctx context.Context, project *Project, name string) error {
	body := map[string]any{
		"versionName":  name,
		"phase":        "DEVELOPMENT",
		"distribution": "EXTERNAL",
	}
	return h.send(ctx, http.MethodPost, project.VersionsURL, mediaJSON, body)
}

// ── BOM ───────────────────────────────────────────────────────────────────────

// GetVersionComponents lists the BOM of a project version.
func (h *Hub) GetVersionComponents(ctx context.Context, version *ProjectVersion, limit int) (*BOM, error) {
	u, err := withQuery(version.ComponentsURL, url.Values{"limit": {strconv.Itoa(limit)}})
	if err != nil {
		return nil, err
	}
	var resp bomResponse
	if err := h.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	bom := &BOM{TotalCount: resp.TotalCount, Items: make([]BOMComponent, 0, len(resp.Items))}
	for _, it := range resp.Items {
		bom.Items = append(bom.Items, BOMComponent{
			MatchTypes:          it.MatchTypes,
			ComponentVersionURL: it.ComponentVersion,
			URL:                 it.Meta.Href,
		})
	}
	return bom, nil
}

// AddComponentToBOM registers a KB component version as a manual BOM entry.
func (h *Hub) AddComponentToBOM(ctx context.Context, version *ProjectVersion, kbVersionURL string, p Provenance) error {
	body := map[string]any{
		"component":             kbVersionURL,
		"componentPurpose":      p.Purpose,
		"componentModified":     false,
		"componentModification": p.Modification,
	}
	return h.send(ctx, http.MethodPost, version.URL+"/components", mediaBOM, body)
}

// DeleteComponentFromBOM removes a BOM entry by its URL.
func (h *Hub) DeleteComponentFromBOM(ctx context.Context, entryURL string) error {
	return h.send(ctx, http.MethodDelete, entryURL, "", nil)
}

// ── transport ────────────────────────────────────────────────────────────────

// authenticate exchanges the API token for a bearer token once. Only a completed
// exchange is remembered; a transport failure such as a cancelled ctx is retried
// on the next request.
func (h *Hub) authenticate(ctx context.Context) (string, error) {
	h.authMu.Lock()
	defer h.authMu.Unlock()
	if h.authDone || h.apiToken == "" {
		return h.bearer, h.authErr
	}
	bearer, err := h.exchangeToken(ctx)
	var te *transportError
	if errors.As(err, &te) {
		return "", err
	}
	h.authDone = true
	h.authErr = err
	h.bearer = bearer
	if err == nil {
		h.logger.Debug("authenticated", "hub", h.baseURL)
	}
	return bearer, err
}

// transportError marks an authentication attempt that never got a response.
type transportError struct{ err error }

func (e *transportError) Error() string { return "authentication request failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func (h *Hub) exchangeToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/tokens/authenticate", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "token "+h.apiToken)
	req.Header.Set("Accept", mediaJSON)
	h.setUserAgent(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", &transportError{err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Method: req.Method, URL: req.URL.String(), Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var parsed struct {
		BearerToken string `json:"bearerToken"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("cannot parse authentication response: %w", err)
	}
	if parsed.BearerToken == "" {
		return "", fmt.Errorf("authentication response missing bearer token")
	}
	return parsed.BearerToken, nil
}

func (h *Hub) newRequest(ctx context.Context, method, u, contentType string, payload any) (*http.Request, error) {
	bearer, err := h.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", mediaJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	h.setUserAgent(req)
	return req, nil
}

func (h *Hub) setUserAgent(req *http.Request) {
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
}

func (h *Hub) getJSON(ctx context.Context, u string, out any) error {
	req, err := h.newRequest(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	h.logger.Debug("GET", "url", u, "status", resp.StatusCode)
	if err != nil {
		return fmt.Errorf("cannot read response from %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Method: http.MethodGet, URL: u, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("cannot parse response from %s: %w", u, err)
	}
	return nil
}

func (h *Hub) send(ctx context.Context, method, u, contentType string, payload any) error {
	req, err := h.newRequest(ctx, method, u, contentType, payload)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	h.logger.Debug(method, "url", u, "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, URL: u, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

// withQuery merges extra query parameters into raw, keeping any already present.
func withQuery(raw string, extra url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	q := u.Query()
	for k, vs := range extra {
		if q.Has(k) {
			continue
		}
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
