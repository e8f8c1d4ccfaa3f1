package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/multichat/internal/model"
)

// FileSource reads the catalog from a YAML document:
//
//	models:
//	  - name: anthropic.claude-v2
//	    provider: bedrock
//	    interface: langchain
//	    outputModalities: [TEXT]
//	workspaces:
//	  - id: ws-1
//	    name: docs
type FileSource struct {
	path string
}

// NewFileSource creates a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type fileCatalog struct {
	Models     []model.Model     `yaml:"models"`
	Workspaces []model.Workspace `yaml:"workspaces"`
}

func (s *FileSource) read() (*fileCatalog, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", s.path, err)
	}
	return &fc, nil
}

// Models returns the models listed in the file.
func (s *FileSource) Models(_ context.Context) ([]model.Model, error) {
	fc, err := s.read()
	if err != nil {
		return nil, err
	}
	return fc.Models, nil
}

// Workspaces returns the workspaces listed in the file.
func (s *FileSource) Workspaces(_ context.Context) ([]model.Workspace, error) {
	fc, err := s.read()
	if err != nil {
		return nil, err
	}
	return fc.Workspaces, nil
}
