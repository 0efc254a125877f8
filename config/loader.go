package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pipelinekit/pipelinekit/errs"
)

// Load reads a PipelineConfig document from path, dispatching on file
// extension (.yaml/.yml vs .json) the way persistence/yaml and
// persistence/json each own one format rather than sniffing content.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "failed to read config file "+path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".json":
		return LoadJSON(data)
	default:
		return nil, errs.New(errs.KindConfig, "unrecognized config file extension "+ext)
	}
}

// LoadYAML parses a PipelineConfig document from YAML bytes.
func LoadYAML(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "failed to parse YAML config", err)
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadJSON parses a PipelineConfig document from JSON bytes.
func LoadJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "failed to parse JSON config", err)
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// validate checks the envelope fields the way
// persistence/yaml.validatePromptConfig checks apiVersion/kind for prompt
// manifests.
func validate(doc *Document) error {
	if doc.APIVersion == "" {
		return errs.New(errs.KindConfig, "missing apiVersion")
	}
	if doc.Kind != expectedKind {
		return errs.New(errs.KindConfig, "invalid kind: expected "+expectedKind+", got "+doc.Kind)
	}
	return nil
}
