package workspace

import (
	"bytes"
	"path"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/flatcargo/pkg/errors"
)

var depSections = []string{"dependencies", "dev-dependencies", "build-dependencies"}

// normalizer merges `workspace = true` fields of a member manifest with the
// values declared by its workspace root, so the manifest stands on its own
// once copied out of the repository.
type normalizer struct {
	ws      map[string]any // [workspace] table of the root manifest; nil if none
	wsRel   string         // slash path from the member directory to the root
	changed bool
}

// normalizeManifest rewrites the decoded manifest m in place. It reports
// whether anything had to change.
func normalizeManifest(m, ws map[string]any, wsRel string) (bool, error) {
	n := &normalizer{ws: ws, wsRel: wsRel}
	if err := n.run(m); err != nil {
		return false, err
	}
	return n.changed, nil
}

func (n *normalizer) run(m map[string]any) error {
	if _, ok := m["workspace"]; ok {
		delete(m, "workspace")
		n.changed = true
	}

	if pkg, ok := m["package"].(map[string]any); ok {
		if _, ok := pkg["workspace"]; ok {
			delete(pkg, "workspace")
			n.changed = true
		}
		if err := n.fields(pkg, table(n.ws, "package"), "package"); err != nil {
			return err
		}
	}

	for _, section := range depSections {
		if err := n.deps(m, section, section); err != nil {
			return err
		}
	}
	if targets, ok := m["target"].(map[string]any); ok {
		for _, name := range sortedKeys(targets) {
			t, ok := targets[name].(map[string]any)
			if !ok {
				continue
			}
			for _, section := range depSections {
				if err := n.deps(t, section, "target."+name+"."+section); err != nil {
					return err
				}
			}
		}
	}

	if inherits(m["lints"]) {
		lints, ok := n.ws["lints"]
		if !ok {
			return errors.New(errors.ErrCodeInvalidPackage, "lints are inherited but the workspace declares none")
		}
		m["lints"] = lints
		n.changed = true
	}
	return nil
}

// fields replaces inherited keys of t with the matching key of from.
func (n *normalizer) fields(t, from map[string]any, where string) error {
	for _, key := range sortedKeys(t) {
		if !inherits(t[key]) {
			continue
		}
		v, ok := from[key]
		if !ok {
			return errors.New(errors.ErrCodeInvalidPackage,
				"%s.%s is inherited but the workspace does not define it", where, key)
		}
		t[key] = v
		n.changed = true
	}
	return nil
}

func (n *normalizer) deps(m map[string]any, section, where string) error {
	t, ok := m[section].(map[string]any)
	if !ok {
		return nil
	}
	base := table(n.ws, "dependencies")
	for _, name := range sortedKeys(t) {
		spec, ok := t[name].(map[string]any)
		if !ok || !inherits(spec) {
			continue
		}
		inherited, ok := base[name]
		if !ok {
			return errors.New(errors.ErrCodeInvalidPackage,
				"%s.%s is inherited but the workspace does not define it", where, name)
		}
		t[name] = n.mergeDep(inherited, spec)
		n.changed = true
	}
	return nil
}

// mergeDep overlays a member's dependency keys on the workspace declaration.
// Features accumulate; every other member key wins.
func (n *normalizer) mergeDep(inherited any, member map[string]any) map[string]any {
	out := make(map[string]any)
	switch v := inherited.(type) {
	case string:
		out["version"] = v
	case map[string]any:
		for k, val := range v {
			out[k] = val
		}
	}
	if p, ok := out["path"].(string); ok && !path.IsAbs(p) {
		out["path"] = path.Join(n.wsRel, p)
	}

	for k, val := range member {
		switch k {
		case "workspace":
		case "features":
			out[k] = unionFeatures(out[k], val)
		default:
			out[k] = val
		}
	}
	return out
}

func unionFeatures(a, b any) []any {
	out := make([]any, 0)
	seen := make(map[string]bool)
	for _, list := range []any{a, b} {
		items, _ := list.([]any)
		for _, f := range items {
			s, ok := f.(string)
			if !ok || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// inherits reports whether v is `{ workspace = true, ... }`.
func inherits(v any) bool {
	t, ok := v.(map[string]any)
	if !ok {
		return false
	}
	w, _ := t["workspace"].(bool)
	return w
}

func table(m map[string]any, key string) map[string]any {
	t, _ := m[key].(map[string]any)
	return t
}

func encodeManifest(m map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "encode manifest")
	}
	return buf.String(), nil
}
