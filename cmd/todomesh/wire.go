package main

import (
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/todomesh"
	"github.com/hupe1980/todomesh/config"
	"github.com/hupe1980/todomesh/document"
	"github.com/hupe1980/todomesh/embedding"
	"github.com/hupe1980/todomesh/flow"
	"github.com/hupe1980/todomesh/httpapi"
	"github.com/hupe1980/todomesh/logging"
	"github.com/hupe1980/todomesh/memory"
	"github.com/hupe1980/todomesh/model"
	"github.com/hupe1980/todomesh/model/anthropic"
	"github.com/hupe1980/todomesh/model/openai"
	"github.com/hupe1980/todomesh/store/sqlstore"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// app holds the wired services of one process.
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	mesh    *todomesh.TodoMesh
	closers []func() error
}

// build wires the mesh described by cfg. A nil m selects the configured
// provider.
func build(cfg *config.Config, m model.Model) (*app, error) {
	logger := cfg.Logger()
	a := &app{cfg: cfg, logger: logger}

	if m == nil {
		m = newModel(cfg)
	}

	opts := []func(o *todomesh.Options){
		func(o *todomesh.Options) {
			o.Catalog = cfg.Flow.Catalog
			o.MaxRounds = cfg.Flow.MaxRounds
			o.Stream = cfg.Flow.Stream
			// Anthropic rejects tool histories in requests without tools.
			o.FinalWithTools = cfg.Model.Provider == "anthropic"
			o.Embedder = newEmbedder(cfg)
			o.Logger = logger
		},
	}

	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sqlstore.Open(sqlstore.Config{Path: cfg.Store.Path, Logger: logger.WithComponent("sqlstore")})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		opts = append(opts, func(o *todomesh.Options) {
			o.Repository = db
			o.QueryExecutor = db
			o.Schema = sqlstore.Schema
		})
	default:
		opts = append(opts, func(o *todomesh.Options) { o.Repository = memory.NewInMemoryStore() })
	}

	if cfg.Documents.DocumentPath != "" || cfg.Documents.ReportPath != "" {
		docs := document.Files{DocumentPath: cfg.Documents.DocumentPath, ReportPath: cfg.Documents.ReportPath}
		opts = append(opts, func(o *todomesh.Options) { o.Documents = docs })
	}

	if enc := cfg.Flow.TokenEncoding; enc != "" {
		counter, err := flow.NewTiktokenCounter(enc)
		if err != nil {
			logger.Warn("token counter unavailable, using estimate", "encoding", enc, "error", err.Error())
		} else {
			opts = append(opts, func(o *todomesh.Options) { o.TokenCounter = counter })
		}
	}

	mesh, err := todomesh.New(m, opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("creating mesh: %w", err)
	}
	a.mesh = mesh

	logger.Info("todomesh wired",
		"catalog", mesh.CatalogName(),
		"store", cfg.Store.Driver,
		"embedding", cfg.Embedding.Provider,
		"model", m.Info().Name,
	)
	return a, nil
}

// handler builds the HTTP front-end.
func (a *app) handler() *httpapi.Handler {
	return httpapi.New(a.mesh, func(o *httpapi.Options) {
		o.Mode = a.cfg.Server.ResponseMode
		o.Auth = httpapi.NewAuthenticator(a.cfg.Server.JWTSecret)
		o.Logger = a.logger.WithComponent("httpapi")
	})
}

// Close releases everything build opened.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newModel(cfg *config.Config) model.Model {
	switch cfg.Model.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model.Name)
			o.Temperature = cfg.Model.Temperature
			o.MaxTokens = cfg.Model.MaxTokens
			o.APIKey = cfg.Model.APIKey
		})
	default:
		client := openaisdk.NewClient(openAIOptions(cfg.Model.APIKey)...)
		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			o.Model = cfg.Model.Name
			o.Temperature = cfg.Model.Temperature
			o.MaxCompletionTokens = cfg.Model.MaxTokens
		})
	}
}

func newEmbedder(cfg *config.Config) embedding.Embedder {
	if cfg.Embedding.Provider == "hash" {
		return embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	}

	var key string
	if cfg.Model.Provider == "openai" {
		key = cfg.Model.APIKey
	}
	client := openaisdk.NewClient(openAIOptions(key)...)
	return embedding.NewOpenAIEmbedderFromClient(&client, func(o *embedding.OpenAIOptions) {
		o.Model = openaisdk.EmbeddingModel(cfg.Embedding.Model)
		o.Dimensions = cfg.Embedding.Dimensions
	})
}

func openAIOptions(apiKey string) []option.RequestOption {
	if apiKey == "" {
		return nil
	}
	return []option.RequestOption{option.WithAPIKey(apiKey)}
}
