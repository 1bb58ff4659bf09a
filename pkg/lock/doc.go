// Package lock reads Cargo.lock documents into an immutable dependency graph.
//
// # Overview
//
// A lock file is the output of dependency resolution: every package is pinned
// to an exact version and origin. This package does not resolve anything; it
// decodes the document, validates it, and exposes the result as a [Graph]
// whose nodes are allocated once and referenced by index.
//
// # Supported Formats
//
// All four Cargo lock formats are understood:
//
//   - v1: no version marker, checksums in the [metadata] table
//   - v2: no version marker, inline checksum fields
//   - v3: version = 3
//   - v4: version = 4
//
// Any other explicit version fails with UNSUPPORTED_LOCK_VERSION.
//
// # Origins
//
// Each package's source string is parsed into one of three [Origin] variants:
// [Registry], [Git] or [Path]. Registry packages must carry a checksum;
// a registry entry without one fails with MISSING_CHECKSUM because an
// offline build cannot verify what it downloads.
//
// # Usage
//
//	g, err := lock.ReadFile("Cargo.lock")
//	if err != nil {
//	    return err
//	}
//	for _, i := range g.Order() {
//	    n := g.Node(i)
//	    fmt.Println(n.ID, n.Origin)
//	}
package lock
