package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"cargogpu/internal/metadata"
)

// metadataKey is the table under [package.metadata] and
// [workspace.metadata] that holds cargo-gpu settings.
const metadataKey = "rust-gpu"

// LoadFile reads a YAML layer from path. A missing file is an empty layer.
// Keys may be written in kebab-case or snake_case.
func LoadFile(path string) (Layer, error) {
	if path == "" {
		return Layer{}, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Layer{}, nil
		}
		return Layer{}, fmt.Errorf("read config: %w", err)
	}
	layer, err := ParseYAML(contents)
	if err != nil {
		return Layer{}, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return layer, nil
}

// ParseYAML decodes a YAML layer.
func ParseYAML(contents []byte) (Layer, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(contents, &node); err != nil {
		return Layer{}, err
	}
	var layer Layer
	if node.Kind == 0 {
		return layer, nil
	}
	snakeNodeKeys(&node)
	if err := node.Decode(&layer); err != nil {
		return Layer{}, err
	}
	return layer, nil
}

func snakeNodeKeys(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			n.Content[i].Value = snakeCase(n.Content[i].Value)
		}
	}
	for _, child := range n.Content {
		snakeNodeKeys(child)
	}
}

func snakeCase(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}

// MetadataLayer extracts the rust-gpu table from a package's or workspace's
// metadata value as reported by cargo metadata.
func MetadataLayer(raw json.RawMessage) (Layer, error) {
	var layer Layer
	if len(raw) == 0 {
		return layer, nil
	}
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return Layer{}, fmt.Errorf("parse cargo metadata table: %w", err)
	}
	section, ok := top[metadataKey]
	if !ok || section == nil {
		return layer, nil
	}
	data, err := json.Marshal(snakeKeys(section))
	if err != nil {
		return Layer{}, err
	}
	if err := json.Unmarshal(data, &layer); err != nil {
		return Layer{}, fmt.Errorf("parse [%s] metadata: %w", metadataKey, err)
	}
	return layer, nil
}

func snakeKeys(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[snakeCase(k)] = snakeKeys(val)
		}
		return out
	case []any:
		for i := range v {
			v[i] = snakeKeys(v[i])
		}
		return v
	default:
		return v
	}
}

// resolveOutputDir anchors a relative output dir at base.
func (l *Layer) resolveOutputDir(base string) {
	if l.Build.OutputDir == nil || base == "" || filepath.IsAbs(*l.Build.OutputDir) {
		return
	}
	joined := filepath.Join(base, *l.Build.OutputDir)
	l.Build.OutputDir = &joined
}

// Sources are the inputs of Resolve.
type Sources struct {
	// UserFile is the optional user-level YAML file.
	UserFile string
	Metadata metadata.Querier
	Flags    Layer
	Logger   logr.Logger
}

// Resolve merges every layer in precedence order: defaults, user file,
// workspace metadata, crate metadata and finally flags.
func Resolve(ctx context.Context, src Sources) (Config, error) {
	log := src.Logger
	cfg := Default()

	user, err := LoadFile(src.UserFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Apply(user)

	// The crate to read metadata from may itself come from the flags.
	located := cfg
	located.Apply(src.Flags)
	crate, err := filepath.Abs(located.Install.ShaderCrate)
	if err != nil {
		return Config{}, fmt.Errorf("resolve shader crate: %w", err)
	}

	meta, err := src.Metadata.Query(ctx, crate)
	if err != nil {
		return Config{}, fmt.Errorf("query shader crate metadata: %w", err)
	}

	ws, err := MetadataLayer(meta.WorkspaceMetadata)
	if err != nil {
		return Config{}, fmt.Errorf("workspace metadata: %w", err)
	}
	ws.resolveOutputDir(meta.WorkspaceRoot)
	cfg.Apply(ws)
	log.V(1).Info("applied workspace metadata", "root", meta.WorkspaceRoot)

	pkg, err := meta.PackageByManifestPath(filepath.Join(crate, "Cargo.toml"))
	var notFound *metadata.ManifestNotFoundError
	switch {
	case errors.As(err, &notFound):
		log.V(1).Info("shader crate is not a package of its workspace, skipping crate metadata", "crate", crate)
	case err != nil:
		return Config{}, err
	default:
		crateLayer, err := MetadataLayer(pkg.Metadata)
		if err != nil {
			return Config{}, fmt.Errorf("crate metadata of %s: %w", pkg.Name, err)
		}
		crateLayer.resolveOutputDir(crate)
		cfg.Apply(crateLayer)
		log.V(1).Info("applied crate metadata", "crate", pkg.Name)
	}

	cfg.Apply(src.Flags)
	return cfg, nil
}
