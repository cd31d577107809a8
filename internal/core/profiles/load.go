package profiles

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
)

// baseKey names the profile a file derives from.
const baseKey = "base"

// profileFile is one decoded profile document.
type profileFile struct {
	path string
	name string
	base string
	doc  map[string]any
	data []byte
}

// LoadDir registers every .yaml, .yml and .toml profile found in dir. A file
// with a "base" key is registered through DeriveProfile, so bases may live in
// other files of the same directory or be built-in. Files are processed in
// name order and retried until no more can be resolved.
func LoadDir(reg *core.Registry, dir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read profiles dir %s", dir)
	}

	var pending []profileFile
	for _, e := range entries {
		if e.IsDir() || !isProfileFile(e.Name()) {
			continue
		}
		pf, err := readProfileFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		pending = append(pending, pf)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].path < pending[j].path })

	var loaded []string
	for len(pending) > 0 {
		var next []profileFile
		for _, pf := range pending {
			if pf.base != "" {
				if _, ok := reg.Lookup(pf.base); !ok {
					next = append(next, pf)
					continue
				}
			}
			if err := registerFile(reg, pf); err != nil {
				return loaded, errors.Wrapf(err, "load profile %s", pf.path)
			}
			logger.Info("profile loaded", "profile", pf.name, "base", pf.base, "path", pf.path)
			loaded = append(loaded, pf.name)
		}
		if len(next) == len(pending) {
			missing := make([]string, 0, len(next))
			for _, pf := range next {
				missing = append(missing, pf.name+" (base "+pf.base+")")
			}
			return loaded, errors.WithHint(
				errors.Newf("profile not found: unresolved bases for %s", strings.Join(missing, ", ")),
				"check the base names; a base must be built-in or defined in the same directory")
		}
		pending = next
	}
	return loaded, nil
}

// ParseFile decodes a single profile document without registering it.
// Documents with a base key cannot be parsed on their own.
func ParseFile(path string) (*core.Profile, error) {
	pf, err := readProfileFile(path)
	if err != nil {
		return nil, err
	}
	if pf.base != "" {
		return nil, errors.Newf("profile %s derives from %q and needs a registry", pf.name, pf.base)
	}
	return decodeProfile(pf)
}

func isProfileFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".toml":
		return true
	}
	return false
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func readProfileFile(path string) (profileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return profileFile{}, errors.Wrapf(err, "read profile %s", path)
	}

	doc := make(map[string]any)
	if isTOML(path) {
		err = toml.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return profileFile{}, errors.WithHint(
			errors.Wrapf(err, "decode profile %s", path),
			"profile files must be valid YAML or TOML documents")
	}

	pf := profileFile{path: path, doc: doc, data: data}
	pf.name, _ = doc["name"].(string)
	pf.base, _ = doc[baseKey].(string)
	if pf.name == "" {
		pf.name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return pf, nil
}

func registerFile(reg *core.Registry, pf profileFile) error {
	if pf.base != "" {
		overrides := make(map[string]any, len(pf.doc))
		for k, v := range pf.doc {
			if k != baseKey && k != "name" {
				overrides[k] = v
			}
		}
		_, err := reg.DeriveProfile(pf.base, overrides, pf.name)
		return err
	}

	p, err := decodeProfile(pf)
	if err != nil {
		return err
	}
	return reg.Register(pf.name, p)
}

func decodeProfile(pf profileFile) (*core.Profile, error) {
	var p core.Profile
	var err error
	if isTOML(pf.path) {
		err = toml.NewDecoder(bytes.NewReader(pf.data)).Decode(&p)
	} else {
		err = yaml.Unmarshal(pf.data, &p)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode profile %s", pf.path)
	}
	if p.Name == "" {
		p.Name = pf.name
	}
	return &p, nil
}
