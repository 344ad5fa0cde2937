package component

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AetheriusMC/aetherius/pkg/types"
)

// Manifest file names probed in each component directory, in order
var manifestNames = []string{
	"component.yaml",
	"component.yml",
	"component.json",
}

// rawManifest is the on-disk schema before normalisation. Dependencies
// may be a plain list of names or a map of name -> version constraint
// that also smuggles engine constraints (core_version and friends).
type rawManifest struct {
	Name                 string         `json:"name" yaml:"name"`
	DisplayName          string         `json:"display_name" yaml:"display_name"`
	Description          string         `json:"description" yaml:"description"`
	Version              string         `json:"version" yaml:"version"`
	Author               string         `json:"author" yaml:"author"`
	Website              string         `json:"website" yaml:"website"`
	Dependencies         any            `json:"dependencies" yaml:"dependencies"`
	SoftDependencies     []string       `json:"soft_dependencies" yaml:"soft_dependencies"`
	LoadBefore           []string       `json:"load_before" yaml:"load_before"`
	EngineVersion        string         `json:"engine_version" yaml:"engine_version"`
	Category             string         `json:"category" yaml:"category"`
	Permissions          []string       `json:"permissions" yaml:"permissions"`
	Tags                 []string       `json:"tags" yaml:"tags"`
	LoadOrder            int            `json:"load_order" yaml:"load_order"`
	ProvidesWebInterface bool           `json:"provides_web_interface" yaml:"provides_web_interface"`
	ConfigSchema         map[string]any `json:"config_schema" yaml:"config_schema"`
	DefaultConfig        map[string]any `json:"default_config" yaml:"default_config"`
}

// Keys inside a dependencies map that constrain the runtime rather than
// name another component
var engineConstraintKeys = map[string]bool{
	"core_version":   true,
	"engine_version": true,
	"python_version": true,
}

// ParseManifest reads and normalises one manifest file
func ParseManifest(path string) (*types.ComponentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw rawManifest
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("manifest %s has no name", path)
	}

	info := &types.ComponentInfo{
		Name:                 raw.Name,
		DisplayName:          raw.DisplayName,
		Description:          raw.Description,
		Version:              raw.Version,
		Author:               raw.Author,
		Website:              raw.Website,
		SoftDependencies:     raw.SoftDependencies,
		LoadBefore:           raw.LoadBefore,
		EngineVersion:        raw.EngineVersion,
		Category:             raw.Category,
		Permissions:          raw.Permissions,
		Tags:                 raw.Tags,
		LoadOrder:            raw.LoadOrder,
		ProvidesWebInterface: raw.ProvidesWebInterface,
		ConfigSchema:         raw.ConfigSchema,
		DefaultConfig:        raw.DefaultConfig,
		Directory:            filepath.Dir(path),
	}
	info.Dependencies, info.EngineVersion = normaliseDeps(raw.Dependencies, info.EngineVersion)
	return info, nil
}

// normaliseDeps canonicalises the two dependency spellings. Map form
// lifts engine constraints (core_version etc.) into the engine-version
// field; the remaining keys are hard component dependencies.
func normaliseDeps(deps any, engineVersion string) ([]string, string) {
	switch v := deps.(type) {
	case nil:
		return nil, engineVersion

	case []any:
		var out []string
		for _, d := range v {
			if s, ok := d.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out, engineVersion

	case []string:
		return v, engineVersion

	case map[string]any:
		var out []string
		for name, constraint := range v {
			if engineConstraintKeys[name] {
				if engineVersion == "" {
					if s, ok := constraint.(string); ok {
						engineVersion = s
					}
				}
				continue
			}
			out = append(out, name)
		}
		sort.Strings(out)
		return out, engineVersion
	}
	return nil, engineVersion
}

// FindManifest locates the manifest file inside a component directory
func FindManifest(dir string) (string, bool) {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Discover parses the manifest of every subdirectory of root that has
// one. Directories without manifests are skipped silently; unreadable
// manifests are returned as errors keyed by directory.
func Discover(root string) ([]*types.ComponentInfo, map[string]error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, map[string]error{root: err}
	}

	var infos []*types.ComponentInfo
	problems := make(map[string]error)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		path, ok := FindManifest(dir)
		if !ok {
			continue
		}
		info, err := ParseManifest(path)
		if err != nil {
			problems[entry.Name()] = err
			continue
		}
		infos = append(infos, info)
	}
	if len(problems) == 0 {
		problems = nil
	}
	return infos, problems
}
