// Package deps downloads, verifies and unpacks third-party front-end libraries listed in
// vendor.yml.
package deps

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/RavenSong/textpattern-hive-framework/pkg"
)

const (
	ConfigFile = "vendor.yml"
	StampFile  = "vendor.stamps"
)

// Spec describes a single archive
type Spec struct {
	URL    string `yaml:"url"`
	Dest   string `yaml:"dest"`
	Sha256 string `yaml:"sha256,omitempty"`
	// Strip removes this many leading path elements from every archive entry.
	Strip int `yaml:"strip,omitempty"`
}

type Config struct {
	Deps map[string]Spec `yaml:"deps"`
}

// Names returns the dependency names in a stable order
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Deps))
	for name := range c.Deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every entry for the fields needed to fetch it
func (c *Config) Validate() error {
	for _, name := range c.Names() {
		spec := c.Deps[name]
		if spec.URL == "" {
			return eris.Errorf("%s: url is missing", name)
		}
		if _, err := extractorFor(spec.URL); err != nil {
			return eris.Wrapf(err, "%s", name)
		}
		if !filepath.IsLocal(spec.Dest) {
			return eris.Errorf("%s: dest %q must be a relative path inside the project", name, spec.Dest)
		}
		if spec.Strip < 0 {
			return eris.Errorf("%s: strip must not be negative", name)
		}
	}
	return nil
}

func (s Spec) stamp() string {
	return s.URL + "#" + s.Sha256
}

// LoadConfig reads vendor.yml from projectRoot
func LoadConfig(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "could not open %s", path)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, eris.Wrapf(err, "invalid %s", path)
	}
	return &cfg, nil
}

// LoadStamps reads the stamps of previously fetched archives. A missing file yields an
// empty map.
func LoadStamps(projectRoot string) (map[string]string, error) {
	stamps := map[string]string{}
	path := filepath.Join(projectRoot, StampFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return stamps, nil
		}
		return nil, eris.Wrapf(err, "failed to read stamps file %s", path)
	}

	err = json.Unmarshal(data, &stamps)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}
	return stamps, nil
}

func SaveStamps(projectRoot string, stamps map[string]string) error {
	data, err := json.MarshalIndent(stamps, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode stamps")
	}
	return pkg.WriteFileAtomic(filepath.Join(projectRoot, StampFile), data, 0o660)
}

// UpdateChecksums writes new checksums into vendor.yml while keeping its comments and layout
func UpdateChecksums(projectRoot string, checksums map[string]string) error {
	path := filepath.Join(projectRoot, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "could not open %s", path)
	}

	var doc yaml.Node
	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		return eris.Wrapf(err, "failed to parse %s", path)
	}
	if len(doc.Content) == 0 {
		return eris.Errorf("%s is empty", path)
	}

	deps := mappingValue(doc.Content[0], "deps")
	if deps == nil {
		return eris.Errorf("%s has no deps section", path)
	}

	for name, checksum := range checksums {
		entry := mappingValue(deps, name)
		if entry == nil || entry.Kind != yaml.MappingNode {
			return eris.Errorf("failed to find the section for %s", name)
		}

		value := mappingValue(entry, "sha256")
		if value != nil {
			value.SetString(checksum)
			continue
		}

		key := &yaml.Node{}
		key.SetString("sha256")
		value = &yaml.Node{}
		value.SetString(checksum)
		entry.Content = append(entry.Content, key, value)
	}

	var buffer strings.Builder
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(2)
	err = encoder.Encode(&doc)
	if err != nil {
		return eris.Wrapf(err, "failed to encode %s", path)
	}
	encoder.Close()

	return pkg.WriteFileAtomic(path, []byte(buffer.String()), 0o660)
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for idx := 0; idx+1 < len(node.Content); idx += 2 {
		if node.Content[idx].Value == key {
			return node.Content[idx+1]
		}
	}
	return nil
}
