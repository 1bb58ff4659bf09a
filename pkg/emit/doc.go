// Package emit renders a converted source set as a flatpak-builder source
// list.
//
// Every registry crate becomes an archive unpacked into the vendor directory
// plus the .cargo-checksum.json cargo expects next to it. Every git package
// becomes one checkout per repository and commit, a shell step copying the
// package into the vendor directory, and an empty checksum file. A final
// inline cargo config redirects crates.io, alternative registries and git
// sources to the vendored directory, so the build never reaches the network.
//
// The output is byte-for-byte reproducible for a given source set.
package emit
