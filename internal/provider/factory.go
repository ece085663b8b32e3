package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"modbot/internal/config"
	"modbot/internal/domain"
)

// Constructor builds an oracle from one provider entry.
type Constructor func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) (domain.Oracle, error)

// Factory creates and caches oracles from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	client       *http.Client
	constructors map[string]Constructor
	cache        map[string]domain.Oracle
	mu           sync.Mutex
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		client:       SharedHTTPClient(time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second),
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.Oracle),
	}
	f.constructors["ollama"] = func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) (domain.Oracle, error) {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, DefaultModel: pc.DefaultModel, Logger: logger}, client), nil
	}
	f.constructors["openai"] = func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) (domain.Oracle, error) {
		return NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, HTTPClient: client, Logger: logger})
	}
	return f
}

// RegisterConstructor adds (or replaces) a constructor by provider name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
	delete(f.cache, name)
}

// Get returns the oracle for name, or the configured one if name is empty.
// Instances are cached.
func (f *Factory) Get(name string) (domain.Oracle, error) {
	if name == "" {
		name = f.cfg.Oracle.Provider
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}
	ctor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	o, err := ctor(f.cfg.Provider(name), f.client, f.logger)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	f.cache[name] = o
	return o, nil
}

// Model returns the model requested by oracle.model, falling back to the
// provider's default.
func (f *Factory) Model() string {
	if f.cfg.Oracle.Model != "" {
		return f.cfg.Oracle.Model
	}
	return f.cfg.Provider(f.cfg.Oracle.Provider).DefaultModel
}
