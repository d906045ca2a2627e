package reconcile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/kbmatch/internal/kb"
	"github.com/kamusis/kbmatch/internal/kb/kbtest"
	"github.com/kamusis/kbmatch/internal/kbfile"
	"github.com/kamusis/kbmatch/internal/manifest"
	"github.com/kamusis/kbmatch/internal/resolve"
)

var discard = log.New(io.Discard)

type harness struct {
	fake   *kbtest.Fake
	cache  *kbfile.Cache
	rec    *Reconciler
	path   string
	events []Event
}

// newHarness opens a KB file holding content; an empty content means no file yet.
func newHarness(t *testing.T, content string) *harness {
	t.Helper()
	h := &harness{fake: kbtest.New(), path: filepath.Join(t.TempDir(), "kbfile.txt")}
	if content == "" {
		h.cache = kbfile.New(h.path, discard)
	} else {
		require.NoError(t, os.WriteFile(h.path, []byte(content), 0o644))
		c, err := kbfile.Open(h.path, discard)
		require.NoError(t, err)
		h.cache = c
	}
	h.rec = New(h.fake, resolve.New(h.fake, resolve.Options{}, discard), h.cache, discard)
	h.rec.Report = func(ev Event) { h.events = append(h.events, ev) }
	return h
}

func (h *harness) file(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(h.path)
	require.NoError(t, err)
	return string(b)
}

func (h *harness) statuses() []Status {
	out := make([]Status, 0, len(h.events))
	for _, ev := range h.events {
		out = append(out, ev.Status)
	}
	return out
}

func entries(keys ...[2]string) []manifest.Entry {
	out := make([]manifest.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, manifest.Entry{Name: k[0], Version: k[1]})
	}
	return out
}

// ── Lookup ───────────────────────────────────────────────────────────────────

func TestLookup_AmendsKnownComponentWithoutSearching(t *testing.T) {
	h := newHarness(t, "zlib;zlib;http://src;http://comp;\n")
	h.fake.AddComponent("zlib", "http://comp", "http://src", "1.2.11")

	sum, err := h.rec.Lookup(context.Background(), entries([2]string{"zlib", "1.2.11"}))
	require.NoError(t, err)

	assert.Equal(t, "zlib;zlib;http://src;http://comp;1.2.11;"+kbtest.VersionURL("http://comp", "1.2.11")+";\n", h.file(t))
	assert.Empty(t, h.fake.Searches)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, []Status{StatusMatched}, h.statuses())
}

func TestLookup_NegativeComponentIsNeverSearchedAgain(t *testing.T) {
	h := newHarness(t, "")

	sum, err := h.rec.Lookup(context.Background(), entries(
		[2]string{"libfoo", "1.0"},
		[2]string{"libfoo", "2.0"},
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"libfoo"}, h.fake.Searches)
	assert.Equal(t, "libfoo;;;NO MATCH;1.0;NO VERSION MATCH;\n", h.file(t))
	assert.Equal(t, []Status{StatusNoMatch, StatusNegative}, h.statuses())
	assert.Equal(t, 1, sum.NoMatch)
	assert.Equal(t, 1, sum.Negative)
}

func TestLookup_VersionlessEntryDoesNotBlockLaterVersions(t *testing.T) {
	h := newHarness(t, "")
	h.fake.AddComponent("busybox", "http://kb/c/busybox", "http://busybox.net", "1.31.0", "1.31.1")
	h.fake.AddSearch("busybox", "http://kb/c/busybox")

	sum, err := h.rec.Lookup(context.Background(), entries(
		[2]string{"busybox", ""},
		[2]string{"busybox", "1.31.1"},
	))
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusMatched, StatusMatched}, h.statuses())
	assert.Equal(t, 2, sum.Matched)
	assert.Equal(t, "busybox;busybox;http://busybox.net;http://kb/c/busybox;"+
		";"+kbtest.VersionURL("http://kb/c/busybox", "1.31.0")+";"+
		"1.31.1;"+kbtest.VersionURL("http://kb/c/busybox", "1.31.1")+";\n", h.file(t))
	assert.Equal(t, 1, h.fake.SearchCount("busybox"))
}

func TestLookup_CachedVersionIsSkipped(t *testing.T) {
	content := "" +
		"zlib;zlib;http://src;http://comp;1.2.11;http://v1;\n" +
		"libbar;libbar;http://s;http://c;2.0;NO VERSION MATCH;\n"
	h := newHarness(t, content)

	sum, err := h.rec.Lookup(context.Background(), entries(
		[2]string{"zlib", "1.2.11"},
		[2]string{"libbar", "2.0"},
	))
	require.NoError(t, err)

	assert.Empty(t, h.fake.Searches)
	assert.Empty(t, h.fake.ComponentGets)
	assert.Equal(t, content, h.file(t))
	assert.Equal(t, 2, sum.Cached)
	assert.Equal(t, []Status{StatusCached, StatusCachedNoVersion}, h.statuses())
	assert.Equal(t, "http://v1", h.events[0].VersionURL)
}

func TestLookup_RepeatedNameResolvedInRunIsNotSearchedAgain(t *testing.T) {
	h := newHarness(t, "")
	h.fake.AddComponent("zlib", "http://kb/c/zlib", "http://zlib.net", "1.2.11", "1.2.12")
	h.fake.AddSearch("zlib", "http://kb/c/zlib")

	_, err := h.rec.Lookup(context.Background(), entries(
		[2]string{"zlib", "1.2.11"},
		[2]string{"zlib", "1.2.12"},
	))
	require.NoError(t, err)

	assert.Equal(t, 1, h.fake.SearchCount("zlib"))
	assert.Equal(t, "zlib;zlib;http://zlib.net;http://kb/c/zlib;"+
		"1.2.11;"+kbtest.VersionURL("http://kb/c/zlib", "1.2.11")+";"+
		"1.2.12;"+kbtest.VersionURL("http://kb/c/zlib", "1.2.12")+";\n", h.file(t))
}

func TestLookup_AmendsTheCandidateThatMatched(t *testing.T) {
	h := newHarness(t, ""+
		"zlib;zlib;http://s1;http://c1;\n"+
		"zlib;zlib fork;http://s2;http://c2;\n")
	h.fake.AddComponent("zlib", "http://c1", "http://s1", "9")
	h.fake.AddComponent("zlib fork", "http://c2", "http://s2", "1.2.11")

	_, err := h.rec.Lookup(context.Background(), entries([2]string{"zlib", "1.2.11"}))
	require.NoError(t, err)

	assert.Equal(t, ""+
		"zlib;zlib;http://s1;http://c1;\n"+
		"zlib;zlib fork;http://s2;http://c2;1.2.11;"+kbtest.VersionURL("http://c2", "1.2.11")+";\n", h.file(t))
	assert.Equal(t, []string{"http://c1", "http://c2"}, h.fake.ComponentGets)
}

func TestLookup_NoVersionMatchIsRecordedOnFirstCandidate(t *testing.T) {
	h := newHarness(t, "zlib;zlib;http://src;http://comp;\n")
	h.fake.AddComponent("zlib", "http://comp", "http://src", "9")

	sum, err := h.rec.Lookup(context.Background(), entries([2]string{"zlib", "1.2.11"}))
	require.NoError(t, err)

	assert.Equal(t, "zlib;zlib;http://src;http://comp;1.2.11;NO VERSION MATCH;\n", h.file(t))
	assert.Equal(t, 1, sum.NoMatch)
	assert.Equal(t, []Status{StatusNoVersionMatch}, h.statuses())
	assert.Equal(t, kbfile.Lookup{Outcome: kbfile.Negative}, h.cache.Version("zlib", "1.2.11"))
}

func TestLookup_AppendsWhenOutputLacksCandidateLine(t *testing.T) {
	// the input KB file seeded the indices but was not merged into the output
	in := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(in, []byte("zlib;zlib;http://src;http://comp;\n"), 0o644))

	h := newHarness(t, "")
	require.NoError(t, h.cache.Load(in))
	h.fake.AddComponent("zlib", "http://comp", "http://src", "1.2.11")

	_, err := h.rec.Lookup(context.Background(), entries([2]string{"zlib", "1.2.11"}))
	require.NoError(t, err)

	assert.Equal(t, "zlib;zlib;http://src;http://comp;1.2.11;"+kbtest.VersionURL("http://comp", "1.2.11")+";\n", h.file(t))
}

func TestLookup_StopsAtAttemptLimit(t *testing.T) {
	h := newHarness(t, "")
	h.rec.MaxAttempts = 2

	sum, err := h.rec.Lookup(context.Background(), entries(
		[2]string{"a", "1"},
		[2]string{"b", "1"},
		[2]string{"c", "1"},
	))

	require.ErrorIs(t, err, ErrAttemptLimit)
	assert.Equal(t, []string{"a", "b"}, h.fake.Searches)
	assert.Equal(t, 2, sum.Attempts)
	assert.Equal(t, 1, sum.Remaining)

	// a rerun over the same KB file only resolves what is left
	h.rec.MaxAttempts = 2
	_, err = h.rec.Lookup(context.Background(), entries(
		[2]string{"a", "1"},
		[2]string{"b", "1"},
		[2]string{"c", "1"},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, h.fake.Searches)
}

func TestLookup_LimitOnLastEntryIsNotAnError(t *testing.T) {
	h := newHarness(t, "")
	h.rec.MaxAttempts = 1

	_, err := h.rec.Lookup(context.Background(), entries([2]string{"a", "1"}))
	assert.NoError(t, err)
}

func TestLookup_CancelledContext(t *testing.T) {
	h := newHarness(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := h.rec.Lookup(ctx, entries([2]string{"a", "1"}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Remaining)
	assert.Empty(t, h.fake.Searches)
}

// ── Import ───────────────────────────────────────────────────────────────────

const importKB = "" +
	"zlib;zlib;http://src;http://comp;1.2.11;http://comp/versions/1.2.11;\n" +
	"libfoo;;;NO MATCH;1.0;NO VERSION MATCH;\n"

func TestImport_CreatesProjectAndAddsWithProvenance(t *testing.T) {
	h := newHarness(t, importKB)

	sum, err := h.rec.Import(context.Background(), entries(
		[2]string{"zlib", "1.2.11"},
		[2]string{"libfoo", "1.0"},
		[2]string{"unknown", "2.0"},
	), ImportOptions{Project: "My Proj", Version: "1.0", SourceFile: "/tmp/build/manifest.txt"})
	require.NoError(t, err)

	assert.True(t, sum.Created)
	assert.Equal(t, 1, sum.Added)
	assert.Equal(t, 2, sum.Unmatched)
	require.Len(t, h.fake.Added, 1)
	assert.Equal(t, kbtest.Added{
		VersionURL:   "http://hub/api/projects/my-proj/versions/1.0",
		KBVersionURL: "http://comp/versions/1.2.11",
		Provenance: kb.Provenance{
			Purpose:      "kbmatch: imported from file manifest.txt",
			Modification: "Original component = zlib/1.2.11",
		},
	}, h.fake.Added[0])
	assert.Equal(t, []Status{StatusAdded, StatusNegative, StatusNotInKBFile}, h.statuses())
	assert.Empty(t, h.fake.Searches)
}

func TestImport_CreatesMissingVersionOfExistingProject(t *testing.T) {
	h := newHarness(t, importKB)
	ctx := context.Background()
	require.NoError(t, h.fake.CreateProject(ctx, "proj", "1.0"))

	sum, err := h.rec.Import(ctx, entries([2]string{"zlib", "1.2.11"}), ImportOptions{Project: "proj", Version: "2.0"})
	require.NoError(t, err)

	assert.True(t, sum.Created)
	require.Len(t, h.fake.Added, 1)
	assert.Equal(t, "http://hub/api/projects/proj/versions/2.0", h.fake.Added[0].VersionURL)
}

func TestImport_SkipsVersionsAlreadyInBOM(t *testing.T) {
	h := newHarness(t, importKB)
	ctx := context.Background()
	require.NoError(t, h.fake.CreateProject(ctx, "proj", "1.0"))
	h.fake.AddBOMComponent("http://hub/api/projects/proj/versions/1.0", kb.BOMComponent{
		ComponentVersionURL: "http://comp/versions/1.2.11",
	})

	sum, err := h.rec.Import(ctx, entries(
		[2]string{"zlib", "1.2.11"},
		[2]string{"zlib", "1.2.11"},
	), ImportOptions{Project: "proj", Version: "1.0"})
	require.NoError(t, err)

	assert.False(t, sum.Created)
	assert.Equal(t, 1, sum.Existing)
	assert.Equal(t, 2, sum.Present)
	assert.Empty(t, h.fake.Added)
}

func TestImport_ResolvesUncachedVersionWithoutWritingKBFile(t *testing.T) {
	h := newHarness(t, "zlib;zlib;http://src;http://comp;\n")
	h.fake.AddComponent("zlib", "http://comp", "http://src", "1.2.12")

	sum, err := h.rec.Import(context.Background(), entries([2]string{"zlib", "1.2.12"}), ImportOptions{Project: "p", Version: "1"})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Added)
	require.Len(t, h.fake.Added, 1)
	assert.Equal(t, kbtest.VersionURL("http://comp", "1.2.12"), h.fake.Added[0].KBVersionURL)
	assert.Equal(t, "zlib;zlib;http://src;http://comp;\n", h.file(t))
}

func TestImport_ReportsUnusedManualComponents(t *testing.T) {
	h := newHarness(t, importKB)
	ctx := context.Background()
	require.NoError(t, h.fake.CreateProject(ctx, "proj", "1.0"))
	vurl := "http://hub/api/projects/proj/versions/1.0"
	h.fake.AddBOMComponent(vurl, kb.BOMComponent{
		MatchTypes:          []string{kb.MatchTypeManual},
		ComponentVersionURL: "http://comp/versions/1.2.11",
	})
	stale := kb.BOMComponent{
		MatchTypes:          []string{kb.MatchTypeManual},
		ComponentVersionURL: "http://old/versions/0.1",
		URL:                 vurl + "/components/old",
	}
	h.fake.AddBOMComponent(vurl, stale)
	h.fake.AddBOMComponent(vurl, kb.BOMComponent{
		MatchTypes:          []string{"FILE_DEPENDENCY"},
		ComponentVersionURL: "http://scanned/versions/1",
	})

	sum, err := h.rec.Import(ctx, entries([2]string{"zlib", "1.2.11"}),
		ImportOptions{Project: "proj", Version: "1.0", CollectManual: true})
	require.NoError(t, err)

	assert.Equal(t, []kb.BOMComponent{stale}, sum.UnusedManual)
	assert.Empty(t, h.fake.Deleted)
}

func TestImport_ContinuesAfterFailedAdd(t *testing.T) {
	h := newHarness(t, ""+
		"a;a;s;http://a;1;http://a/v1;\n"+
		"b;b;s;http://b;1;http://b/v1;\n")
	h.fake.FailAdds["http://a/v1"] = true

	sum, err := h.rec.Import(context.Background(), entries(
		[2]string{"a", "1"},
		[2]string{"b", "1"},
	), ImportOptions{Project: "p", Version: "1"})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Added)
	assert.Equal(t, []Status{StatusFailed, StatusAdded}, h.statuses())
}
