package pathresolve

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
)

// Config is the deeply-merged configuration dictionary assembled from the
// ordered layers in spec.md §4.1. Keys are dotted-path addressable via Get.
type Config map[string]any

// ReplaceKeys lists dotted config paths whose list values are replaced
// wholesale by a later layer rather than appended-and-deduped, per spec.md
// §4.1's "except where a per-domain rule specifies replace". Validator
// rosters are the canonical example: a project overriding `qa.validators`
// means exactly that roster, not the bundled roster plus extras.
var ReplaceKeys = map[string]bool{
	"qa.validators": true,
}

// Layer is one named configuration source, in the order it should be
// merged (earlier layers are the base, later layers win).
type Layer struct {
	Name string
	Data []byte // raw YAML; nil/empty is treated as an absent layer
}

// LoadLayers deep-merges layers in order using mergo, honoring ReplaceKeys
// for list-replace semantics and append-and-dedupe for every other list
// key (spec.md §4.1).
func LoadLayers(layers []Layer) (Config, error) {
	merged := Config{}
	for _, layer := range layers {
		if len(layer.Data) == 0 {
			continue
		}
		var parsed map[string]any
		if err := yaml.Unmarshal(layer.Data, &parsed); err != nil {
			return nil, edisonerrors.Wrap(edisonerrors.KindConfig, "parse config layer "+layer.Name, err)
		}
		applyReplaceOverrides(merged, parsed, "")
		if err := mergo.Merge(&merged, Config(parsed), mergo.WithOverride, mergo.WithAppendSlice); err != nil {
			return nil, edisonerrors.Wrap(edisonerrors.KindConfig, "merge config layer "+layer.Name, err)
		}
		dedupeSlices(merged)
	}
	return merged, nil
}

// applyReplaceOverrides clears any ReplaceKeys paths present in incoming
// before the mergo append-merge runs, so the subsequent merge behaves as a
// plain overwrite for those specific dotted paths instead of an append.
func applyReplaceOverrides(base map[string]any, incoming map[string]any, prefix string) {
	for k, v := range incoming {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if ReplaceKeys[path] {
			delete(base, k)
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if baseNested, ok := base[k].(map[string]any); ok {
				applyReplaceOverrides(baseNested, nested, path)
			}
		}
	}
}

// dedupeSlices walks merged and removes duplicate scalar entries from any
// []any value, preserving first-seen order, per spec.md §4.1 "append and
// dedupe (order preserved)".
func dedupeSlices(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case []any:
			m[k] = dedupeSlice(val)
		case map[string]any:
			dedupeSlices(val)
		}
	}
}

func dedupeSlice(items []any) []any {
	seen := make(map[string]bool, len(items))
	out := make([]any, 0, len(items))
	for _, item := range items {
		key := fmt.Sprintf("%v", item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// LoadLayersFromPaths is a convenience wrapper reading each layer from an
// optional file path, tolerating missing files as empty layers.
func LoadLayersFromPaths(named map[string]string, order []string) ([]Layer, error) {
	layers := make([]Layer, 0, len(order))
	for _, name := range order {
		path, ok := named[name]
		if !ok || path == "" {
			layers = append(layers, Layer{Name: name})
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				layers = append(layers, Layer{Name: name})
				continue
			}
			return nil, edisonerrors.Wrap(edisonerrors.KindConfig, "read config layer "+name, err)
		}
		layers = append(layers, Layer{Name: name, Data: data})
	}
	return layers, nil
}

// LoadLayersFromDir reads every *.yml/*.yaml file directly inside dir as one
// layer per file (used for .edison/config/*.yml "project overrides" and
// pack config directories), sorted by filename for determinism.
func LoadLayersFromDir(dir string) ([]Layer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, edisonerrors.Wrap(edisonerrors.KindConfig, "read config directory "+dir, err)
	}
	var layers []Layer
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, edisonerrors.Wrap(edisonerrors.KindConfig, "read config file "+e.Name(), err)
		}
		layers = append(layers, Layer{Name: e.Name(), Data: data})
	}
	return layers, nil
}

// Get resolves a dotted path (e.g. "qa.round_timeout") against the config,
// returning (nil, false) if any segment is missing or not a map.
func (c Config) Get(dotted string) (any, bool) {
	segs := splitDotted(dotted)
	var cur any = map[string]any(c)
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetString resolves a dotted path to a string, returning "" if absent or
// not a string.
func (c Config) GetString(dotted string) string {
	v, ok := c.Get(dotted)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetBool resolves a dotted path to a bool, returning false if absent or not
// a bool.
func (c Config) GetBool(dotted string) bool {
	v, ok := c.Get(dotted)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func splitDotted(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
