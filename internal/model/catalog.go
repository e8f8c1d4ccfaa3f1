package model

import (
	"fmt"
	"strings"
)

// ModelInterface is the request shape a backend model expects.
type ModelInterface string

const (
	InterfaceLangchain  ModelInterface = "langchain"
	InterfaceMultimodal ModelInterface = "multimodal"
	InterfaceAgent      ModelInterface = "agent"
)

// Modality is an input or output medium of a model.
type Modality string

const (
	ModalityText      Modality = "TEXT"
	ModalityImage     Modality = "IMAGE"
	ModalityVideo     Modality = "VIDEO"
	ModalityEmbedding Modality = "EMBEDDING"
)

// Model is a catalog record describing a selectable backend model.
type Model struct {
	Name             string         `json:"name" yaml:"name"`
	Provider         string         `json:"provider" yaml:"provider"`
	Interface        ModelInterface `json:"interface" yaml:"interface"`
	RagSupported     bool           `json:"ragSupported" yaml:"ragSupported"`
	Streaming        bool           `json:"streaming" yaml:"streaming"`
	InputModalities  []Modality     `json:"inputModalities" yaml:"inputModalities"`
	OutputModalities []Modality     `json:"outputModalities" yaml:"outputModalities"`
}

// Ref returns the selection reference of the model.
func (m Model) Ref() ModelRef {
	return ModelRef{Provider: m.Provider, Name: m.Name}
}

// PrimaryOutput returns the first output modality, defaulting to text.
func (m Model) PrimaryOutput() Modality {
	if len(m.OutputModalities) == 0 {
		return ModalityText
	}
	return m.OutputModalities[0]
}

// Clone copies the modality slices.
func (m Model) Clone() Model {
	out := m
	out.InputModalities = append([]Modality(nil), m.InputModalities...)
	out.OutputModalities = append([]Modality(nil), m.OutputModalities...)
	return out
}

// ModelRef identifies a selected model as provider and name.
type ModelRef struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

const refSeparator = "::"

// Value encodes the reference as "provider::name".
func (r ModelRef) Value() string {
	return r.Provider + refSeparator + r.Name
}

// ParseModelRef decodes a "provider::name" selection value.
func ParseModelRef(value string) (ModelRef, error) {
	provider, name, ok := strings.Cut(value, refSeparator)
	if !ok || provider == "" || name == "" {
		return ModelRef{}, fmt.Errorf("invalid model reference %q", value)
	}
	return ModelRef{Provider: provider, Name: name}, nil
}

// Workspace is a retrieval-augmentation data source.
type Workspace struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Engine string `json:"engine" yaml:"engine"`
	Status string `json:"status" yaml:"status"`
}

// WorkspaceRef is the workspace selected for a session.
type WorkspaceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
