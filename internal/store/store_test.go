package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/embed"
	"github.com/docdex/docdex/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{Embedder: embed.NewStaticEmbedder()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// doc builds a minimal test document.
func doc(title, url, content string, path ...string) Document {
	return Document{
		Content: content,
		Metadata: Metadata{
			Title: title,
			URL:   url,
			Path:  path,
			Level: len(path),
		},
	}
}

type fixedDimEmbedder struct {
	*embed.StaticEmbedder
	dims int
}

func (f *fixedDimEmbedder) Dimensions() int { return f.dims }

func TestNew_RejectsOversizedEmbedder(t *testing.T) {
	oversized := &fixedDimEmbedder{StaticEmbedder: embed.NewStaticEmbedder(), dims: VectorDimensions + 1}

	_, err := New(context.Background(), Config{Embedder: oversized})
	require.Error(t, err)
	assert.Equal(t, errors.CodeDimensionError, errors.GetCode(err))
}

func TestAddDocuments_EmptyURLAbortsEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AddDocuments(ctx, "react", "18.0.0", []Document{
		doc("Hooks", "https://react.dev/hooks", "useState basics"),
		doc("Broken", "  ", "no url here"),
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeEmptyURL, errors.GetCode(err))

	// Nothing from the batch was written.
	count, err := s.DeleteDocuments(ctx, "react", "18.0.0")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAddDocuments_LowercasesLibraryAndVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "React", "18.0.0-RC1", []Document{
		doc("Intro", "https://react.dev", "react intro"),
	}))

	versions, err := s.QueryLibraryVersions(ctx)
	require.NoError(t, err)
	require.Contains(t, versions, "react")
	assert.Equal(t, "18.0.0-rc1", versions["react"][0].Version)
}

func TestFindByContent_HybridRanking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "fiber", "2.0.0", []Document{
		doc("Routing", "https://docs.fiber.io/routing", "Routing maps HTTP methods to handlers.", "Routing"),
		doc("Middleware", "https://docs.fiber.io/middleware", "Middleware runs before handlers.", "Middleware"),
		doc("Templates", "https://docs.fiber.io/templates", "Template engines render views.", "Templates"),
	}))

	chunks, err := s.FindByContent(ctx, "fiber", "2.0.0", "routing", 2)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.LessOrEqual(t, len(chunks), 2)

	for _, c := range chunks {
		assert.Greater(t, c.Metadata.Score, 0.0)
		assert.True(t, c.Metadata.VecRank > 0 || c.Metadata.FTSRank > 0)
	}
	// Exact-term match should surface the routing page.
	assert.Equal(t, "https://docs.fiber.io/routing", chunks[0].URL)
}

func TestFindByContent_RejectsNonPositiveK(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindByContent(context.Background(), "fiber", "2.0.0", "anything", 0)
	assert.Error(t, err)
}

func TestFindByContent_UnknownLibraryIsEmpty(t *testing.T) {
	s := newTestStore(t)

	chunks, err := s.FindByContent(context.Background(), "nope", "1.0.0", "query", 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestFindByContent_QuotedQueryDoesNotBreakFTS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "lib", "1.0.0", []Document{
		doc("Quotes", "https://lib.dev/q", `how to find "quotes" in text`),
	}))

	// Operators and quotes must be inert inside the escaped phrase.
	for _, q := range []string{`find "quotes"`, `a AND b OR c NOT d`, `wild* (card)`, ``} {
		_, err := s.FindByContent(ctx, "lib", "1.0.0", q, 5)
		require.NoError(t, err, "query %q", q)
	}
}

func TestFindByContent_EmptyQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "lib", "1.0.0", []Document{
		doc("Routing", "https://lib.dev/routing", "route matching and handlers"),
		doc("Hooks", "https://lib.dev/hooks", "lifecycle hooks reference"),
	}))

	// The empty query escapes to the "" phrase, which matches nothing in
	// FTS; results come from the vector branch alone.
	chunks, err := s.FindByContent(ctx, "lib", "1.0.0", "", 5)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Positive(t, c.Metadata.VecRank)
		assert.Zero(t, c.Metadata.FTSRank)
	}
}

func TestMigrations_UseSchemaMigrationsTable(t *testing.T) {
	s := newTestStore(t)

	var name string
	err := s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = '_schema_migrations'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "_schema_migrations", name)

	err = s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'goose_db_version'`).Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEscapeFTSQuery(t *testing.T) {
	assert.Equal(t, `"plain"`, escapeFTSQuery("plain"))
	assert.Equal(t, `"say ""hi"""`, escapeFTSQuery(`say "hi"`))
	assert.Equal(t, `""`, escapeFTSQuery(""))
}

func TestFuseRanks_UnionAndScores(t *testing.T) {
	// Given overlapping branch results
	vec := []vectorHit{{id: 1, distance: 0.1}, {id: 2, distance: 0.2}}
	fts := []ftsHit{{id: 2, score: -5}, {id: 3, score: -4}}

	// When fusing
	fused := fuseRanks(vec, fts, 10)

	// Then the overlap id accumulates both contributions and wins
	require.Len(t, fused, 3)
	assert.Equal(t, int64(2), fused[0].id)
	assert.InDelta(t, 1.0/62+1.0/61, fused[0].score, 1e-9)
	assert.Equal(t, 2, fused[0].vecRank)
	assert.Equal(t, 1, fused[0].ftsRank)
}

func TestDeleteDocuments_RemovesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "vue", "3.0.0", []Document{
		doc("A", "https://vuejs.org/a", "composition api"),
		doc("B", "https://vuejs.org/b", "options api"),
	}))

	count, err := s.DeleteDocuments(ctx, "vue", "3.0.0")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	chunks, err := s.FindByContent(ctx, "vue", "3.0.0", "composition", 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Deleting again is a no-op.
	count, err = s.DeleteDocuments(ctx, "vue", "3.0.0")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHierarchy_ParentSiblingsChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	url := "https://docs.example.com/guide"

	// Page layout: Guide > {Install > {Linux, Mac}, Usage}
	require.NoError(t, s.AddDocuments(ctx, "lib", "1.0.0", []Document{
		doc("Guide", url, "guide intro", "Guide"),
		doc("Guide", url, "install section", "Guide", "Install"),
		doc("Guide", url, "linux details", "Guide", "Install", "Linux"),
		doc("Guide", url, "mac details", "Guide", "Install", "Mac"),
		doc("Guide", url, "usage section", "Guide", "Usage"),
	}))

	all, err := s.FindChunksByIDs(ctx, "lib", "1.0.0", []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Len(t, all, 5)
	install := all[1]
	linux := all[2]

	parent, err := s.FindParent(ctx, linux)
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, install.ID, parent.ID)

	// The root chunk has a single-element path; its parent path is empty
	// and no such chunk exists on the page.
	root := all[0]
	parent, err = s.FindParent(ctx, root)
	require.NoError(t, err)
	assert.Nil(t, parent)

	mac := all[3]
	preceding, err := s.FindPrecedingSiblings(ctx, mac, 2)
	require.NoError(t, err)
	require.Len(t, preceding, 1)
	assert.Equal(t, linux.ID, preceding[0].ID)

	subsequent, err := s.FindSubsequentSiblings(ctx, linux, 2)
	require.NoError(t, err)
	require.Len(t, subsequent, 1)
	assert.Equal(t, mac.ID, subsequent[0].ID)

	children, err := s.FindChildren(ctx, install, 5)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, linux.ID, children[0].ID)
	assert.Equal(t, mac.ID, children[1].ID)
}

func TestFindChunksByIDs_OrderedBySortOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "lib", "1.0.0", []Document{
		doc("P", "https://lib.dev/p", "first"),
		doc("P", "https://lib.dev/p", "second"),
		doc("P", "https://lib.dev/p", "third"),
	}))

	// Request out of order; results come back in document order.
	chunks, err := s.FindChunksByIDs(ctx, "lib", "1.0.0", []int64{3, 1, 2})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "first", chunks[0].Content)
	assert.Equal(t, "third", chunks[2].Content)
}

func TestQueryLibraryVersions_SortingAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "lib", "2.0.0", []Document{
		doc("A", "https://lib.dev/a", "x"),
		doc("A", "https://lib.dev/a", "y"),
		doc("B", "https://lib.dev/b", "z"),
	}))
	require.NoError(t, s.AddDocuments(ctx, "lib", "1.9.0", []Document{doc("A", "https://lib.dev/a", "x")}))
	require.NoError(t, s.AddDocuments(ctx, "lib", "", []Document{doc("A", "https://lib.dev/a", "x")}))
	require.NoError(t, s.AddDocuments(ctx, "lib", "nightly", []Document{doc("A", "https://lib.dev/a", "x")}))

	out, err := s.QueryLibraryVersions(ctx)
	require.NoError(t, err)
	details := out["lib"]
	require.Len(t, details, 4)

	// Empty version first, semver ascending, non-semver last.
	assert.Equal(t, "", details[0].Version)
	assert.Equal(t, "1.9.0", details[1].Version)
	assert.Equal(t, "2.0.0", details[2].Version)
	assert.Equal(t, "nightly", details[3].Version)

	assert.Equal(t, 3, details[2].DocumentCount)
	assert.Equal(t, 2, details[2].UniqueURLCount)
}

func TestFindBestVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"1.0.0", "1.1.0", "1.1.1"} {
		require.NoError(t, s.AddDocuments(ctx, "lib", v, []Document{doc("A", "https://lib.dev/a", "x")}))
	}

	// Latest
	best, err := s.FindBestVersion(ctx, "lib", "")
	require.NoError(t, err)
	assert.Equal(t, "1.1.1", best)

	best, err = s.FindBestVersion(ctx, "lib", "latest")
	require.NoError(t, err)
	assert.Equal(t, "1.1.1", best)

	// Full semver falls back to the newest indexed version at or below.
	best, err = s.FindBestVersion(ctx, "lib", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.1.1", best)

	// Partial targets behave as tilde ranges.
	best, err = s.FindBestVersion(ctx, "lib", "1.x")
	require.NoError(t, err)
	assert.Equal(t, "1.1.1", best)

	best, err = s.FindBestVersion(ctx, "lib", "1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", best)

	// Malformed target
	_, err = s.FindBestVersion(ctx, "lib", "1.x.2")
	assert.Equal(t, errors.CodeInvalidVersion, errors.GetCode(err))

	// Unsatisfiable target carries the indexed versions as suggestions.
	_, err = s.FindBestVersion(ctx, "lib", "0.9.0")
	require.Error(t, err)
	assert.Equal(t, errors.CodeVersionNotFound, errors.GetCode(err))
	var derr *errors.Error
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Suggestions, "1.1.1")
}

func TestReAddCreatesFreshChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docs := []Document{doc("A", "https://lib.dev/a", "same content", "A")}

	require.NoError(t, s.AddDocuments(ctx, "lib", "1.0.0", docs))
	require.NoError(t, s.AddDocuments(ctx, "lib", "1.0.0", docs))

	count, err := s.DeleteDocuments(ctx, "lib", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestVectorCodec_PadRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}

	blob, err := encodeVector(vec)
	require.NoError(t, err)
	require.Len(t, blob, VectorDimensions*4)

	decoded, err := decodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, decoded[:3])
	assert.Zero(t, decoded[3])

	_, err = encodeVector(make([]float32, VectorDimensions+1))
	assert.Error(t, err)
}
