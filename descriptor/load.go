package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a descriptor catalog:
//
//	modules:
//	  - id: assets
//	    name: Assets
//	    version: 1.0.0
//	    routes:
//	      - path: /assets
//	        component: AssetList
type File struct {
	Modules []Descriptor `yaml:"modules"`
}

// Parse decodes a YAML catalog and validates every descriptor in it.
// Unknown fields are rejected so typos in a catalog fail loudly at boot.
func Parse(data []byte) ([]Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse module catalog: %w", err)
	}

	for i, d := range file.Modules {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("module[%d]: %w", i, err)
		}
	}
	return file.Modules, nil
}

// Load reads and parses a YAML catalog file.
func Load(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module catalog: %w", err)
	}
	return Parse(data)
}
