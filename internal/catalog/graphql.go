package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/capitalize-ai/multichat/internal/model"
)

const (
	listModelsQuery = `query ListModels {
  listModels { name provider interface ragSupported streaming inputModalities outputModalities }
}`
	listWorkspacesQuery = `query ListWorkspaces {
  listWorkspaces { id name engine status }
}`
)

// GraphQLSource reads the catalog from the chatbot GraphQL API.
type GraphQLSource struct {
	url    string
	token  string
	client *http.Client
}

// NewGraphQLSource creates a source for url. token, when set, is sent as the
// Authorization header.
func NewGraphQLSource(url, token string, client *http.Client) *GraphQLSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GraphQLSource{url: url, token: token, client: client}
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Models runs listModels.
func (s *GraphQLSource) Models(ctx context.Context) ([]model.Model, error) {
	var data struct {
		ListModels []model.Model `json:"listModels"`
	}
	if err := s.query(ctx, listModelsQuery, &data); err != nil {
		return nil, err
	}
	return data.ListModels, nil
}

// Workspaces runs listWorkspaces.
func (s *GraphQLSource) Workspaces(ctx context.Context) ([]model.Workspace, error) {
	var data struct {
		ListWorkspaces []model.Workspace `json:"listWorkspaces"`
	}
	if err := s.query(ctx, listWorkspacesQuery, &data); err != nil {
		return nil, err
	}
	return data.ListWorkspaces, nil
}

func (s *GraphQLSource) query(ctx context.Context, query string, out any) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var gql graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gql); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	if len(gql.Errors) > 0 {
		msgs := make([]string, len(gql.Errors))
		for i, e := range gql.Errors {
			msgs[i] = e.Message
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	if len(gql.Data) == 0 || string(gql.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(gql.Data, out); err != nil {
		return fmt.Errorf("failed to decode catalog data: %w", err)
	}
	return nil
}
