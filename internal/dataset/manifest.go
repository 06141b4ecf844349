package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional metadata file at the dataset root.
const ManifestFile = "people.yaml"

// Person is the metadata of one dataset folder.
type Person struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Affiliation string `yaml:"affiliation"`
}

// Manifest maps folder names to people. Keys are matched with NormalizeKey.
//
//	imran_khan:
//	  name: Imran Khan
//	  description: Former Prime Minister
//	  affiliation: Pakistan Tehreek-e-Insaf (PTI)
type Manifest struct {
	people map[string]Person
}

// ParseManifest decodes manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw map[string]Person
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFile, err)
	}
	m := &Manifest{people: make(map[string]Person, len(raw))}
	for key, p := range raw {
		norm := NormalizeKey(key)
		if _, dup := m.people[norm]; dup {
			return nil, fmt.Errorf("parsing %s: duplicate entry for %q", ManifestFile, key)
		}
		m.people[norm] = p
	}
	return m, nil
}

// LoadManifest reads path. A missing file yields an empty manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{people: map[string]Person{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseManifest(data)
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.people)
}

// Lookup returns the entry for folder. An entry without a name is given
// the derived folder name.
func (m *Manifest) Lookup(folder string) (Person, bool) {
	p, ok := m.people[NormalizeKey(folder)]
	if ok && p.Name == "" {
		p.Name = DeriveName(folder)
	}
	return p, ok
}
