package translation

import (
	"slices"
	"testing"
)

func TestRegistryFromSettingsDefaults(t *testing.T) {
	t.Parallel()

	registry := NewRegistryFromSettings(Settings{})
	if registry.DefaultProvider() != DefaultProviderName {
		t.Fatalf("unexpected default provider: got %q want %q", registry.DefaultProvider(), DefaultProviderName)
	}
	names := registry.ProviderNames()
	if !slices.Equal(names, []string{"local", "pseudo"}) {
		t.Fatalf("unexpected providers: %v", names)
	}

	provider, err := registry.Provider("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "local" {
		t.Fatalf("unexpected provider: got %q want local", provider.Name())
	}
}

func TestRegistryFromSettingsHTTP(t *testing.T) {
	t.Parallel()

	registry := NewRegistryFromSettings(Settings{Provider: " HTTP ", Endpoint: "http://translate.internal/batch"})
	provider, err := registry.Provider("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "http" {
		t.Fatalf("unexpected provider: got %q want http", provider.Name())
	}
}

func TestRegistryUnknownDefaultFallsBack(t *testing.T) {
	t.Parallel()

	registry := NewRegistryFromSettings(Settings{Provider: "google"})
	if registry.DefaultProvider() != DefaultProviderName {
		t.Fatalf("unexpected default provider: got %q", registry.DefaultProvider())
	}
	if _, err := registry.Provider("google"); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("")
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if err := registry.Register(&stubProvider{name: "  "}); err == nil {
		t.Fatalf("expected error for blank provider name")
	}
	if _, err := registry.Provider(""); err == nil {
		t.Fatalf("expected error for empty registry")
	}
}

func TestTranslationLanguageOptionsIncludeNativeLabels(t *testing.T) {
	t.Parallel()

	options := ViewerLanguageOptions(nil)
	if options[0].Code != "original" {
		t.Fatalf("unexpected first option: %+v", options[0])
	}
	for _, option := range options {
		if option.Code == "ko" {
			if option.Label != "Korean" || option.Native != "한국어" {
				t.Fatalf("unexpected korean option: %+v", option)
			}
			return
		}
	}
	t.Fatalf("korean option missing")
}
