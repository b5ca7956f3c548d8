package store

import (
	"context"
	"database/sql"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/docdex/docdex/internal/errors"
)

// targetVersionRe accepts the version shapes callers may request:
// "5", "5.x", "5.x.x", "5.1", "5.1.x", "5.1.2".
var targetVersionRe = regexp.MustCompile(`^(\d+)(\.(?:x(\.x)?|\d+(\.(x|\d+))?))?$`)

// QueryLibraryVersions lists every indexed (library, version) pair with
// its document count, unique page count and earliest index time.
// Within a library the empty version sorts first, then semver ascending,
// then non-semver versions by raw string.
func (s *Store) QueryLibraryVersions(ctx context.Context) (map[string][]VersionDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.name, d.version, COUNT(*), COUNT(DISTINCT d.url), MIN(d.indexed_at)
		FROM documents d
		JOIN libraries l ON l.id = d.library_id
		GROUP BY l.name, d.version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]VersionDetail)
	for rows.Next() {
		var (
			library string
			detail  VersionDetail
			indexed time.Time
		)
		if err := rows.Scan(&library, &detail.Version, &detail.DocumentCount, &detail.UniqueURLCount, &indexed); err != nil {
			return nil, err
		}
		detail.IndexedAt = indexed
		out[library] = append(out[library], detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, details := range out {
		sortVersionDetails(details)
	}
	return out, nil
}

func sortVersionDetails(details []VersionDetail) {
	sort.SliceStable(details, func(i, j int) bool {
		a, b := details[i].Version, details[j].Version
		if a == "" || b == "" {
			return a == "" && b != ""
		}
		va, errA := semver.NewVersion(a)
		vb, errB := semver.NewVersion(b)
		switch {
		case errA == nil && errB == nil:
			return va.LessThan(vb)
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return a < b
		}
	})
}

// indexedVersions returns the raw version strings stored for library.
func (s *Store) indexedVersions(ctx context.Context, library string) ([]string, error) {
	libraryID, err := s.lookupLibraryID(ctx, library)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT version FROM documents WHERE library_id = ?`, libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// FindBestVersion resolves a requested version against what is indexed.
// An absent or "latest" target picks the highest semver version. A full
// semver target accepts itself or any older indexed version; a partial
// target ("5", "5.1", "5.x") behaves as a tilde range.
func (s *Store) FindBestVersion(ctx context.Context, library, target string) (string, error) {
	raw, err := s.indexedVersions(ctx, library)
	if err != nil {
		return "", err
	}

	var candidates []*semver.Version
	for _, v := range raw {
		if parsed, err := semver.NewVersion(v); err == nil {
			candidates = append(candidates, parsed)
		}
	}

	target = strings.TrimSpace(strings.ToLower(target))
	if target == "" || target == "latest" {
		best := maxVersion(candidates, nil)
		if best == nil {
			return "", versionNotFound(library, target, raw)
		}
		return best.Original(), nil
	}

	if !targetVersionRe.MatchString(target) {
		return "", errors.Newf(errors.CodeInvalidVersion, "invalid version %q for library %q", target, library)
	}

	var constraint *semver.Constraints
	if _, err := semver.StrictNewVersion(target); err == nil {
		// A fully specified version also accepts older indexed releases
		// as fallbacks.
		constraint, err = semver.NewConstraint(target + " || <=" + target)
		if err != nil {
			return "", errors.Newf(errors.CodeInvalidVersion, "invalid version %q for library %q", target, library)
		}
	} else {
		constraint, err = semver.NewConstraint("~" + target)
		if err != nil {
			return "", errors.Newf(errors.CodeInvalidVersion, "invalid version %q for library %q", target, library)
		}
	}

	best := maxVersion(candidates, constraint)
	if best == nil {
		return "", versionNotFound(library, target, raw)
	}
	return best.Original(), nil
}

func maxVersion(candidates []*semver.Version, constraint *semver.Constraints) *semver.Version {
	var best *semver.Version
	for _, v := range candidates {
		if constraint != nil && !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

func versionNotFound(library, target string, indexed []string) error {
	err := errors.Newf(errors.CodeVersionNotFound,
		"no indexed version of %q satisfies %q", library, target)
	sort.Strings(indexed)
	return err.WithSuggestions(indexed...)
}
