package emit

import (
	"bytes"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/lock"
	"github.com/matzehuels/flatcargo/pkg/source"
)

const (
	vendoredSources = "vendored-sources"
	cratesIOSource  = "crates-io"
)

// replacement is one [source.NAME] table of a cargo config.
type replacement struct {
	Registry    string `toml:"registry,omitempty"`
	Git         string `toml:"git,omitempty"`
	Branch      string `toml:"branch,omitempty"`
	Tag         string `toml:"tag,omitempty"`
	Rev         string `toml:"rev,omitempty"`
	ReplaceWith string `toml:"replace-with,omitempty"`
	Directory   string `toml:"directory,omitempty"`
}

type cargoConfig struct {
	Source map[string]replacement `toml:"source"`
}

func newCargoConfig() *cargoConfig {
	return &cargoConfig{Source: map[string]replacement{
		vendoredSources: {Directory: source.VendorDir},
	}}
}

func (c *cargoConfig) addRegistry(r lock.Registry) {
	if r.IndexURL == "" || source.IsCratesIO(r.IndexURL) {
		c.Source[cratesIOSource] = replacement{ReplaceWith: vendoredSources}
		return
	}
	index := r.IndexURL
	if r.Sparse {
		index = r.String()
	}
	c.Source[r.IndexURL] = replacement{Registry: index, ReplaceWith: vendoredSources}
}

// addGit redirects a git source. Cargo matches replacements on URL and the
// declared ref, so packages from one repository pinned through different
// refs need separate tables.
func (c *cargoConfig) addGit(g source.Git) {
	r := replacement{Git: g.URL, ReplaceWith: vendoredSources}
	name := g.URL
	switch g.Declared.Kind {
	case lock.RefBranch:
		r.Branch = g.Declared.Name
	case lock.RefTag:
		r.Tag = g.Declared.Name
	case lock.RefRev:
		r.Rev = g.Declared.Name
	}
	if g.Declared.Kind != lock.RefDefault {
		name += "?" + string(g.Declared.Kind) + "=" + g.Declared.Name
	}
	c.Source[name] = r
}

func (c *cargoConfig) encode() (string, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(c); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "encode cargo config")
	}
	return buf.String(), nil
}
