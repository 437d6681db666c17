package translation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultProviderName is used when no provider is configured.
const DefaultProviderName = "local"

// Settings carries the provider configuration loaded by internal/config.
type Settings struct {
	Provider string
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Registry stores translation providers and resolves a default provider.
type Registry struct {
	providers       map[string]Provider
	defaultProvider string
}

func NewRegistry(defaultProvider string) *Registry {
	normalizedDefault := normalizeProviderName(defaultProvider)
	if normalizedDefault == "" {
		normalizedDefault = DefaultProviderName
	}

	return &Registry{
		providers:       make(map[string]Provider),
		defaultProvider: normalizedDefault,
	}
}

// NewRegistryFromSettings registers every built-in provider. The http provider
// is only registered when an endpoint is configured for it.
func NewRegistryFromSettings(settings Settings) *Registry {
	registry := NewRegistry(settings.Provider)
	_ = registry.Register(NewLocalProvider(LocalProviderOptions{
		Endpoint:   localEndpoint(settings),
		Model:      settings.Model,
		APIKey:     settings.APIKey,
		Timeout:    settings.Timeout,
		MaxRetries: 2,
	}))
	if normalizeProviderName(settings.Provider) == "http" {
		_ = registry.Register(NewHTTPProvider(settings.Endpoint, settings.APIKey, settings.Timeout))
	}
	_ = registry.Register(NewPseudoProvider())

	if _, exists := registry.providers[registry.defaultProvider]; !exists {
		registry.defaultProvider = DefaultProviderName
	}

	return registry
}

func localEndpoint(settings Settings) string {
	if normalizeProviderName(settings.Provider) == "http" {
		return DefaultLocalEndpoint
	}
	return settings.Endpoint
}

// Register adds one provider.
func (r *Registry) Register(provider Provider) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if provider == nil {
		return fmt.Errorf("provider is nil")
	}
	name := normalizeProviderName(provider.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	r.providers[name] = provider
	return nil
}

// Provider resolves a provider by name. Empty names use the configured default provider.
func (r *Registry) Provider(name string) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no translation providers are registered")
	}

	resolvedName := normalizeProviderName(name)
	if resolvedName == "" {
		resolvedName = r.defaultProvider
	}
	provider, ok := r.providers[resolvedName]
	if ok {
		return provider, nil
	}

	return nil, fmt.Errorf("translation provider %q is not registered (available: %s)", resolvedName, strings.Join(r.ProviderNames(), ", "))
}

func (r *Registry) DefaultProvider() string {
	if r == nil {
		return ""
	}
	return r.defaultProvider
}

func (r *Registry) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeProviderName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
