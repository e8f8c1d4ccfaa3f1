package catalog

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/multichat/internal/model"
)

// ProviderOpenAI is the provider name given to models listed by OpenAISource.
const ProviderOpenAI = "openai"

// OpenAISource lists models from an OpenAI-compatible API. It has no
// workspaces.
type OpenAISource struct {
	client *openai.Client
}

// NewOpenAISource creates a source. baseURL may be empty for the public API.
func NewOpenAISource(apiKey, baseURL string) *OpenAISource {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAISource{client: openai.NewClientWithConfig(cfg)}
}

// Models lists the models visible to the API key.
func (s *OpenAISource) Models(ctx context.Context) ([]model.Model, error) {
	list, err := s.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]model.Model, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, describe(m.ID))
	}
	return models, nil
}

// Workspaces returns nothing.
func (s *OpenAISource) Workspaces(_ context.Context) ([]model.Workspace, error) {
	return []model.Workspace{}, nil
}

// describe infers capabilities from the model id.
func describe(id string) model.Model {
	m := model.Model{
		Name:            id,
		Provider:        ProviderOpenAI,
		Interface:       model.InterfaceLangchain,
		Streaming:       true,
		InputModalities: []model.Modality{model.ModalityText},
	}
	switch {
	case strings.HasPrefix(id, "dall-e"), strings.HasPrefix(id, "gpt-image"):
		m.Interface = model.InterfaceMultimodal
		m.Streaming = false
		m.OutputModalities = []model.Modality{model.ModalityImage}
	case strings.HasPrefix(id, "sora"):
		m.Interface = model.InterfaceMultimodal
		m.Streaming = false
		m.OutputModalities = []model.Modality{model.ModalityVideo}
	case strings.HasPrefix(id, "text-embedding"):
		m.Streaming = false
		m.OutputModalities = []model.Modality{model.ModalityEmbedding}
	default:
		m.RagSupported = true
		m.OutputModalities = []model.Modality{model.ModalityText}
	}
	return m
}
