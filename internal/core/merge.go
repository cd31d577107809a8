package core

import (
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// mergeProfile returns a copy of base with overrides applied. The profile is
// converted to its YAML document form so that override keys match the names
// used in profile files.
func mergeProfile(base *Profile, overrides map[string]any) (*Profile, error) {
	data, err := yaml.Marshal(base)
	if err != nil {
		return nil, errors.Wrap(err, "encode base profile")
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode base profile")
	}

	merged := DeepMerge(doc, overrides)

	data, err = yaml.Marshal(merged)
	if err != nil {
		return nil, errors.Wrap(err, "encode merged profile")
	}
	var out Profile
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "decode merged profile"),
			"check that override values have the same shape as the profile fields")
	}
	return &out, nil
}

// DeepMerge merges src onto dst and returns a new map. Maps present on both
// sides are merged recursively; any other src value replaces the dst value.
// Neither argument is modified.
func DeepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		smap, sIsMap := asStringMap(sv)
		dmap, dIsMap := asStringMap(out[k])
		if sIsMap && dIsMap {
			out[k] = DeepMerge(dmap, smap)
			continue
		}
		out[k] = sv
	}
	return out
}

// asStringMap normalises the map shapes produced by the YAML and TOML decoders.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	case map[string][]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	default:
		return nil, false
	}
}
