// Package source turns locked packages into fetchable, integrity-checked
// build sources.
//
// # Overview
//
// Three entry kinds exist, modelled as a closed set implementing [Entry]:
//
//   - [Archive]: a registry tarball pinned by its SHA-256 checksum
//   - [Git]: a repository checkout pinned to an exact commit
//   - [Directory]: the root package's own tree, never part of a [Set]
//
// A [Classifier] maps one [lock.Node] to zero or one entry. [NewSet] then
// removes entries that denote the same fetch target and sorts the rest by
// kind and key, so the same lock always yields the same sequence.
//
// # Integrity
//
// Checksums are copied verbatim from the lock. Git entries are fetched by
// commit; a branch or tag recorded next to the commit is kept only so that
// cargo's source replacement can match the dependency, never to fetch it.
//
// [lock.Node]: github.com/matzehuels/flatcargo/pkg/lock.Node
package source
