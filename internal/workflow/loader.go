package workflow

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed stages.yaml
var defaultCatalogYAML []byte

var (
	defaultOnce    sync.Once
	defaultCatalog Catalog
)

// Default returns the embedded catalog. It panics if the embedded table is
// invalid, which the package tests guard against.
func Default() Catalog {
	defaultOnce.Do(func() {
		catalog, err := ParseCatalogYAML(defaultCatalogYAML)
		if err != nil {
			panic(fmt.Sprintf("workflow: embedded catalog: %v", err))
		}
		defaultCatalog = catalog
	})
	return defaultCatalog.Clone()
}

// ParseCatalogYAML decodes a catalog from YAML/JSON bytes.
func ParseCatalogYAML(data []byte) (Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Catalog{}, fmt.Errorf("workflow: catalog payload is empty")
	}
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("workflow: decode catalog: %w", err)
	}
	return catalog.Normalized()
}

// LoadCatalogReader reads catalog data from an io.Reader.
func LoadCatalogReader(r io.Reader) (Catalog, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Catalog{}, fmt.Errorf("workflow: read catalog: %w", err)
	}
	return ParseCatalogYAML(content)
}

// LoadCatalogFile loads a catalog from an explicit file path.
func LoadCatalogFile(path string) (Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	defer file.Close()
	catalog, err := LoadCatalogReader(file)
	if err != nil {
		return Catalog{}, fmt.Errorf("workflow: %s: %w", path, err)
	}
	return catalog, nil
}

// Load returns the catalog at path, or the embedded one when path is empty.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadCatalogFile(path)
}
