// Package service implements the functions the HTTP routes delegate to:
// catalog listings, the command interpreter, and the condition resolver.
package service

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kestrelsec/agentgate/api/schemas"
	"github.com/kestrelsec/agentgate/internal/registry"
)

// AllModels returns the serializable hosted-model catalog.
func AllModels() []schemas.LLMModel {
	return registry.AllModels()
}

// AllTools returns the serializable tool catalog, expanding each tool's
// allowed-model criteria into concrete model names.
func AllTools(reg *registry.Registry) []schemas.Tool {
	bundles := reg.Tools()
	tools := make([]schemas.Tool, 0, len(bundles))
	for _, b := range bundles {
		tools = append(tools, schemas.Tool{
			ToolID:          b.ToolID,
			ToolDisplayName: b.ToolDisplayName,
			ToolDescription: b.ToolDescription,
			DefaultModel:    b.DefaultModel,
			AllowedModels:   registry.AllowedModels(b.AllowedCriteria),
			ToolSchema:      b.ToolSchema,
		})
	}
	return tools
}

// AllPrototypes returns every registered action prototype descriptor.
func AllPrototypes(reg *registry.Registry) []schemas.ActionPrototype {
	return reg.Prototypes()
}

// LoadFrameworks reads every predefined framework from baseDir. One
// subdirectory per framework, YAML files inside. Malformed files are logged
// and skipped; a missing catalog directory yields an empty list, not an
// error, so a bare deployment still serves the endpoint.
func LoadFrameworks(baseDir string, logger *zap.Logger) ([]schemas.Framework, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Framework catalog directory does not exist", zap.String("dir", baseDir))
			return []schemas.Framework{}, nil
		}
		return nil, fmt.Errorf("failed to read framework catalog %q: %w", baseDir, err)
	}

	frameworks := []schemas.Framework{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(baseDir, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			logger.Error("Failed to read framework directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".yaml" {
				continue
			}
			path := filepath.Join(dir, f.Name())
			fw, err := loadFrameworkFile(path)
			if err != nil {
				logger.Error("Failed to load framework file", zap.String("path", path), zap.Error(err))
				continue
			}
			frameworks = append(frameworks, fw)
		}
	}
	return frameworks, nil
}

func loadFrameworkFile(path string) (schemas.Framework, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schemas.Framework{}, err
	}
	var fw schemas.Framework
	if err := yaml.Unmarshal(raw, &fw); err != nil {
		return schemas.Framework{}, fmt.Errorf("invalid framework YAML: %w", err)
	}
	if fw.FrameworkID == "" || fw.Name == "" {
		return schemas.Framework{}, fmt.Errorf("framework file %s is missing framework_id or name", filepath.Base(path))
	}
	return fw, nil
}
