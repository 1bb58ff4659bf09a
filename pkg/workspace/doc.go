// Package workspace inspects a cargo project on disk.
//
// Lock files name local packages but not where they live. [Load] reads the
// root Cargo.toml, expands workspace members and follows path dependencies
// so that callers can tell whether a local package sits inside the project
// tree (and is therefore shipped with the root directory source) or outside
// it (and will be missing from an offline build).
//
// [CheckoutResolver] answers the other question lock files leave open: where
// inside a git repository a package lives. It looks in cargo's own checkout
// cache and never touches the network. It also rewrites the manifests of
// git crates that inherit from their repository's workspace, since that
// workspace root is not copied along with them.
package workspace
