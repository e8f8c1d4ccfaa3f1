package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/pkg/logger"
)

type stubSource struct {
	models        []model.Model
	workspaces    []model.Workspace
	modelsErr     error
	workspacesErr error
	wsCalls       atomic.Int32
}

func (s *stubSource) Models(context.Context) ([]model.Model, error) {
	return s.models, s.modelsErr
}

func (s *stubSource) Workspaces(context.Context) ([]model.Workspace, error) {
	s.wsCalls.Add(1)
	return s.workspaces, s.workspacesErr
}

var claude = model.Model{
	Name:             "anthropic.claude-v2",
	Provider:         "bedrock",
	Interface:        model.InterfaceLangchain,
	OutputModalities: []model.Modality{model.ModalityText},
}

func TestLoadWithRAG(t *testing.T) {
	src := &stubSource{
		models:     []model.Model{claude},
		workspaces: []model.Workspace{{ID: "ws-1", Name: "docs"}},
	}

	cat, err := Load(context.Background(), src, true, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, cat.ModelsStatus)
	assert.Equal(t, StatusFinished, cat.WorkspacesStatus)
	assert.Len(t, cat.Models, 1)
	assert.Len(t, cat.Workspaces, 1)
}

func TestLoadWithoutRAGSkipsWorkspaces(t *testing.T) {
	src := &stubSource{models: []model.Model{claude}}

	cat, err := Load(context.Background(), src, false, logger.NewNop())
	require.NoError(t, err)
	assert.Zero(t, src.wsCalls.Load())
	assert.Equal(t, StatusFinished, cat.WorkspacesStatus)
	assert.Empty(t, cat.Workspaces)
}

func TestLoadPartialFailure(t *testing.T) {
	src := &stubSource{
		models:        []model.Model{claude},
		workspacesErr: errors.New("forbidden"),
	}

	cat, err := Load(context.Background(), src, true, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
	assert.Equal(t, StatusFinished, cat.ModelsStatus)
	assert.Equal(t, StatusError, cat.WorkspacesStatus)
	assert.Len(t, cat.Models, 1)
	assert.NotNil(t, cat.Workspaces)
}

func TestFind(t *testing.T) {
	cat := &Catalog{Models: []model.Model{claude}, Workspaces: []model.Workspace{{ID: "ws-1"}}}

	m, err := cat.Find(model.ModelRef{Provider: "bedrock", Name: "anthropic.claude-v2"})
	require.NoError(t, err)
	m.OutputModalities[0] = model.ModalityImage
	assert.Equal(t, model.ModalityText, cat.Models[0].OutputModalities[0])

	_, err = cat.Find(model.ModelRef{Provider: "openai", Name: "anthropic.claude-v2"})
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = cat.FindWorkspace("ws-2")
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestGraphQLSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "token-1", r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(body["query"], "listModels"):
			w.Write([]byte(`{"data":{"listModels":[{"name":"sdxl","provider":"sagemaker","interface":"multimodal","outputModalities":["IMAGE"]}]}}`))
		default:
			w.Write([]byte(`{"data":null,"errors":[{"message":"not authorized"}]}`))
		}
	}))
	defer srv.Close()

	src := NewGraphQLSource(srv.URL, "token-1", srv.Client())

	models, err := src.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, model.InterfaceMultimodal, models[0].Interface)
	assert.Equal(t, model.ModalityImage, models[0].PrimaryOutput())

	_, err = src.Workspaces(context.Background())
	assert.EqualError(t, err, "not authorized")
}

func TestGraphQLSourceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewGraphQLSource(srv.URL, "", srv.Client()).Models(context.Background())
	assert.ErrorContains(t, err, "status 502")
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - name: anthropic.claude-v2
    provider: bedrock
    interface: langchain
    ragSupported: true
    streaming: true
    inputModalities: [TEXT]
    outputModalities: [TEXT]
workspaces:
  - id: ws-1
    name: docs
    engine: aurora
    status: ready
`), 0o600))

	cat, err := Load(context.Background(), NewFileSource(path), true, logger.NewNop())
	require.NoError(t, err)
	require.Len(t, cat.Models, 1)
	assert.True(t, cat.Models[0].RagSupported)
	assert.Equal(t, "bedrock::anthropic.claude-v2", cat.Models[0].Ref().Value())
	assert.Equal(t, []model.Workspace{{ID: "ws-1", Name: "docs", Engine: "aurora", Status: "ready"}}, cat.Workspaces)
}

func TestFileSourceMissing(t *testing.T) {
	cat, err := Load(context.Background(), NewFileSource(filepath.Join(t.TempDir(), "nope.yaml")), false, logger.NewNop())
	assert.Error(t, err)
	assert.Equal(t, StatusError, cat.ModelsStatus)
	assert.Empty(t, cat.Models)
}

func TestOpenAISource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[
			{"id":"gpt-4o","object":"model","owned_by":"openai"},
			{"id":"dall-e-3","object":"model","owned_by":"openai"},
			{"id":"text-embedding-3-small","object":"model","owned_by":"openai"}
		]}`))
	}))
	defer srv.Close()

	src := NewOpenAISource("sk-test", srv.URL+"/v1")
	models, err := src.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 3)

	assert.Equal(t, model.ModelRef{Provider: ProviderOpenAI, Name: "gpt-4o"}, models[0].Ref())
	assert.Equal(t, model.ModeChain, model.ModeFor(models[0].PrimaryOutput()))
	assert.Equal(t, model.ModeImageGeneration, model.ModeFor(models[1].PrimaryOutput()))
	assert.Equal(t, model.InterfaceMultimodal, models[1].Interface)
	assert.Equal(t, model.ModalityEmbedding, models[2].PrimaryOutput())

	ws, err := src.Workspaces(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ws)
}
