// Package catalog loads the models and workspaces a session can select.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/pkg/logger"
	"github.com/capitalize-ai/multichat/pkg/metrics"
)

// ErrModelNotFound is returned when a reference has no catalog record.
var ErrModelNotFound = errors.New("model not found in catalog")

// ErrWorkspaceNotFound is returned when a workspace id has no catalog record.
var ErrWorkspaceNotFound = errors.New("workspace not found in catalog")

// Status is the load status of one catalog list.
type Status string

const (
	StatusLoading  Status = "loading"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
)

// Source lists catalog entries.
type Source interface {
	Models(ctx context.Context) ([]model.Model, error)
	Workspaces(ctx context.Context) ([]model.Workspace, error)
}

// Catalog is a read-only snapshot of the available models and workspaces.
type Catalog struct {
	Models           []model.Model     `json:"models"`
	Workspaces       []model.Workspace `json:"workspaces"`
	ModelsStatus     Status            `json:"models_status"`
	WorkspacesStatus Status            `json:"workspaces_status"`
}

// Loading returns the catalog shown before any fetch completed.
func Loading() *Catalog {
	return &Catalog{
		Models:           []model.Model{},
		Workspaces:       []model.Workspace{},
		ModelsStatus:     StatusLoading,
		WorkspacesStatus: StatusLoading,
	}
}

// Find returns the record for ref.
func (c *Catalog) Find(ref model.ModelRef) (*model.Model, error) {
	for i := range c.Models {
		if c.Models[i].Provider == ref.Provider && c.Models[i].Name == ref.Name {
			m := c.Models[i].Clone()
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", ref.Value(), ErrModelNotFound)
}

// FindWorkspace returns the workspace with id.
func (c *Catalog) FindWorkspace(id string) (*model.Workspace, error) {
	for i := range c.Workspaces {
		if c.Workspaces[i].ID == id {
			ws := c.Workspaces[i]
			return &ws, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrWorkspaceNotFound)
}

// Clone returns a deep copy.
func (c *Catalog) Clone() *Catalog {
	out := *c
	out.Models = make([]model.Model, len(c.Models))
	for i, m := range c.Models {
		out.Models[i] = m.Clone()
	}
	out.Workspaces = append([]model.Workspace{}, c.Workspaces...)
	return &out
}

// Load fetches models and, when ragEnabled, workspaces concurrently. A failed
// list keeps its entries empty and is marked StatusError; the returned error
// joins every failure while the catalog still carries whatever loaded.
func Load(ctx context.Context, src Source, ragEnabled bool, log *logger.Logger) (*Catalog, error) {
	log = log.Named("catalog")
	cat := Loading()

	var (
		g                errgroup.Group
		modelsErr, wsErr error
	)

	g.Go(func() error {
		models, err := src.Models(ctx)
		if err != nil {
			modelsErr = fmt.Errorf("failed to load models: %w", err)
			return nil
		}
		if models != nil {
			cat.Models = models
		}
		return nil
	})

	if ragEnabled {
		g.Go(func() error {
			workspaces, err := src.Workspaces(ctx)
			if err != nil {
				wsErr = fmt.Errorf("failed to load workspaces: %w", err)
				return nil
			}
			if workspaces != nil {
				cat.Workspaces = workspaces
			}
			return nil
		})
	}

	_ = g.Wait()

	cat.ModelsStatus = statusOf(modelsErr)
	cat.WorkspacesStatus = statusOf(wsErr)
	metrics.CatalogFetchTotal.WithLabelValues("models", string(cat.ModelsStatus)).Inc()
	if ragEnabled {
		metrics.CatalogFetchTotal.WithLabelValues("workspaces", string(cat.WorkspacesStatus)).Inc()
	}

	err := errors.Join(modelsErr, wsErr)
	if err != nil {
		log.Error("catalog load failed", zap.Error(err))
	} else {
		log.Info("catalog loaded",
			zap.Int("models", len(cat.Models)),
			zap.Int("workspaces", len(cat.Workspaces)),
		)
	}
	return cat, err
}

func statusOf(err error) Status {
	if err != nil {
		return StatusError
	}
	return StatusFinished
}
