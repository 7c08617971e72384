package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultProvider reads secrets from a HashiCorp Vault KV v2 engine.
// Each secret lives at <path>/<key> and stores its value under "value".
type VaultProvider struct {
	kv   *vault.KVv2
	base string
}

// NewVaultProvider creates a new HashiCorp Vault provider
func NewVaultProvider(cfg *Config) (*VaultProvider, error) {
	if cfg.VaultAddr == "" {
		return nil, fmt.Errorf("%w: vault address is required", ErrProviderError)
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.VaultAddr

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.VaultToken != "" {
		client.SetToken(cfg.VaultToken)
	}
	if cfg.VaultNamespace != "" {
		client.SetNamespace(cfg.VaultNamespace)
	}

	path := cfg.VaultPath
	if path == "" {
		path = "secret/data/broker-console"
	}
	mount, base := splitKVPath(path)

	return &VaultProvider{
		kv:   client.KVv2(mount),
		base: base,
	}, nil
}

// splitKVPath splits "secret/data/app" into the mount "secret" and the
// secret path "app". The "data/" segment is added back by the KV v2 client.
func splitKVPath(path string) (mount, base string) {
	path = strings.Trim(path, "/")
	mount, rest, _ := strings.Cut(path, "/")
	rest = strings.TrimPrefix(rest, "data/")
	if rest == "data" {
		rest = ""
	}
	return mount, rest
}

// Get retrieves a secret from Vault
func (p *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	secretPath := key
	if p.base != "" {
		secretPath = p.base + "/" + key
	}

	secret, err := p.kv.Get(ctx, secretPath)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) || strings.Contains(err.Error(), "secret not found") {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrProviderError, err)
	}

	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}
	if value, ok := secret.Data["value"].(string); ok {
		return value, nil
	}
	return "", ErrSecretNotFound
}

// Name returns the provider name
func (p *VaultProvider) Name() string {
	return "vault"
}
