package source

import (
	"slices"

	"github.com/matzehuels/flatcargo/pkg/errors"
)

// Set is an ordered, deduplicated sequence of source entries. No two entries
// share a [Key], and the order depends only on the entries themselves:
// archives before git checkouts, each sorted by key.
//
// A Set never contains a [Directory]; the root source is kept separately.
type Set struct {
	entries []Entry
}

// NewSet validates, deduplicates and orders entries. Every entry must carry
// an integrity token (checksum or commit); a Directory or an entry without
// one is rejected with INTERNAL_ERROR since the classifier never produces
// such values.
//
// Two different git packages with the same key fail with
// UNCLASSIFIABLE_ORIGIN: each needs its own vendor directory, and they can
// only collide when their location inside the repository is unknown.
func NewSet(entries []Entry) (*Set, error) {
	for _, e := range entries {
		if err := checkIntegrity(e); err != nil {
			return nil, err
		}
	}
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, compareEntries)
	if err := checkGitCollisions(sorted); err != nil {
		return nil, err
	}
	return &Set{entries: Dedupe(sorted)}, nil
}

// checkGitCollisions expects entries sorted by [compareEntries].
func checkGitCollisions(sorted []Entry) error {
	for i := 1; i < len(sorted); i++ {
		prev, ok := sorted[i-1].(Git)
		cur, ok2 := sorted[i].(Git)
		if !ok || !ok2 || prev.Key() != cur.Key() || prev.Package == cur.Package {
			continue
		}
		return errors.ForPackage(errors.ErrCodeUnclassifiableOrigin, cur.Package.String(),
			"shares checkout %s with %s and its directory inside the repository is unknown; "+
				"run `cargo fetch` so the checkout can be scanned", cur.PackageDir(), prev.Package)
	}
	return nil
}

// Dedupe returns entries sorted by key with duplicates removed. When several
// entries share a key, the one belonging to the smallest package identity
// is kept. Dedupe is idempotent.
func Dedupe(entries []Entry) []Entry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, compareEntries)
	return slices.CompactFunc(out, func(a, b Entry) bool {
		return a.Key() == b.Key()
	})
}

func compareEntries(a, b Entry) int {
	if c := a.Key().Compare(b.Key()); c != 0 {
		return c
	}
	return packageOf(a).Compare(packageOf(b))
}

func checkIntegrity(e Entry) error {
	switch v := e.(type) {
	case Archive:
		if v.SHA256 == "" {
			return errors.ForPackage(errors.ErrCodeInternal, v.Package.String(), "archive without checksum")
		}
	case Git:
		if !IsCommitHash(v.Commit) {
			return errors.ForPackage(errors.ErrCodeInternal, v.Package.String(), "git source without commit")
		}
	case Directory:
		return errors.ForPackage(errors.ErrCodeInternal, v.Package.String(), "directory source in source set")
	default:
		return errors.New(errors.ErrCodeInternal, "unknown entry type %T", e)
	}
	return nil
}

// Len returns the number of entries.
func (s *Set) Len() int { return len(s.entries) }

// Entries returns a copy of the ordered entries.
func (s *Set) Entries() []Entry { return slices.Clone(s.entries) }

// Archives returns the archive entries in set order.
func (s *Set) Archives() []Archive { return entriesOf[Archive](s) }

// Gits returns the git entries in set order.
func (s *Set) Gits() []Git { return entriesOf[Git](s) }

func entriesOf[T Entry](s *Set) []T {
	var out []T
	for _, e := range s.entries {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
