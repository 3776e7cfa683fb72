// Package importexport imports asset bundles: zip archives holding a
// metadata.yaml plus one YAML file per database, dataset, chart and
// dashboard.
package importexport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"bi-demo/internal/domain"
)

// Asset types as named in metadata.yaml.
const (
	TypeDatabase  = "Database"
	TypeDataset   = "SqlaTable"
	TypeChart     = "Slice"
	TypeDashboard = "Dashboard"
)

// Bundle categories, which are also the directory names inside a bundle.
const (
	DirDatabases  = "databases"
	DirDatasets   = "datasets"
	DirCharts     = "charts"
	DirDashboards = "dashboards"
)

const metadataFile = "metadata.yaml"

// maxBundleSize bounds the uncompressed size of a single bundle entry.
const maxBundleSize = 32 << 20

// Metadata is the content of metadata.yaml.
type Metadata struct {
	Version   string `yaml:"version"`
	Type      string `yaml:"type"`
	Timestamp string `yaml:"timestamp"`
}

// Bundle is a decoded archive. Paths are relative to the archive's root
// directory, e.g. "charts/chart.yaml".
type Bundle struct {
	Metadata Metadata
	Files    map[string][]byte
}

// ReadBundle unpacks a zip archive.
func ReadBundle(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.ErrValidation("not a valid ZIP file")
	}

	b := &Bundle{Files: map[string][]byte{}}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := stripRoot(f.Name)
		if name == "" {
			continue
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		b.Files[name] = content
	}

	raw, ok := b.Files[metadataFile]
	if !ok {
		return nil, &domain.ImportError{
			Message: "Error importing bundle",
			Extra:   map[string]any{metadataFile: "Missing metadata.yaml"},
		}
	}
	if err := yaml.Unmarshal(raw, &b.Metadata); err != nil {
		return nil, &domain.ImportError{
			Message: "Error importing bundle",
			Extra:   map[string]any{metadataFile: "Not a valid YAML file"},
		}
	}
	return b, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	content, err := io.ReadAll(io.LimitReader(rc, maxBundleSize+1))
	if err != nil {
		return nil, err
	}
	if len(content) > maxBundleSize {
		return nil, domain.ErrValidation("bundle entry %s is too large", f.Name)
	}
	return content, nil
}

// stripRoot drops the top-level directory of an archive path.
func stripRoot(name string) string {
	name = path.Clean(strings.TrimPrefix(name, "/"))
	_, rest, ok := strings.Cut(name, "/")
	if !ok {
		return ""
	}
	return rest
}

// Dir returns the sorted paths of YAML files under dir.
func (b *Bundle) Dir(dir string) []string {
	var out []string
	for name := range b.Files {
		if strings.HasPrefix(name, dir+"/") && strings.HasSuffix(name, ".yaml") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
