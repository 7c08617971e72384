package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

func TestEnvProvider_Get(t *testing.T) {
	t.Setenv("CONSOLE_SECRET_BROKER_TOKEN", "s3cret")
	p := NewEnvProvider(EnvSecretPrefix)

	value, err := p.Get(context.Background(), "broker-token")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "s3cret" {
		t.Errorf("Expected s3cret, got %s", value)
	}

	if _, err := p.Get(context.Background(), "missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Expected ErrSecretNotFound, got %v", err)
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(&Config{Provider: ProviderTypeEnv})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Name() != "env" {
		t.Errorf("Expected env provider, got %s", p.Name())
	}

	if _, err := NewProvider(&Config{Provider: "encrypted"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
	if _, err := NewProvider(&Config{Provider: ProviderTypeVault}); !errors.Is(err, ErrProviderError) {
		t.Errorf("Expected ErrProviderError without a vault address, got %v", err)
	}
	if _, err := NewProvider(&Config{Provider: ProviderTypeGCPSM}); !errors.Is(err, ErrProviderError) {
		t.Errorf("Expected ErrProviderError without a GCP project, got %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CONSOLE_SECRETS_PROVIDER", "VAULT")
	t.Setenv("CONSOLE_SECRETS_VAULT_ADDR", "http://vault:8200")
	t.Setenv("VAULT_TOKEN", "root")

	cfg := LoadConfigFromEnv()
	if cfg.Provider != ProviderTypeVault {
		t.Errorf("Expected provider vault, got %s", cfg.Provider)
	}
	if cfg.VaultAddr != "http://vault:8200" {
		t.Errorf("Expected vault address, got %s", cfg.VaultAddr)
	}
	if cfg.VaultToken != "root" {
		t.Errorf("Expected token from VAULT_TOKEN, got %s", cfg.VaultToken)
	}
	if cfg.VaultPath != "secret/data/broker-console" {
		t.Errorf("Expected default vault path, got %s", cfg.VaultPath)
	}
}

func TestSplitKVPath(t *testing.T) {
	tests := []struct {
		path, mount, base string
	}{
		{"secret/data/broker-console", "secret", "broker-console"},
		{"secret/broker-console", "secret", "broker-console"},
		{"/kv/data/team/console/", "kv", "team/console"},
		{"secret/data", "secret", ""},
		{"secret", "secret", ""},
	}

	for _, tt := range tests {
		mount, base := splitKVPath(tt.path)
		if mount != tt.mount || base != tt.base {
			t.Errorf("splitKVPath(%q) = (%q, %q), expected (%q, %q)", tt.path, mount, base, tt.mount, tt.base)
		}
	}
}

type fakeSecretsManager struct {
	values map[string]string
	err    error
	asked  []string
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	id := aws.ToString(in.SecretId)
	f.asked = append(f.asked, id)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[id]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestAWSProvider_Get(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]string{"/console/broker-token": "abc"}}
	p := newAWSProvider(fake, "/console")

	value, err := p.Get(context.Background(), "broker-token")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "abc" {
		t.Errorf("Expected abc, got %s", value)
	}
	if fake.asked[0] != "/console/broker-token" {
		t.Errorf("Expected prefixed secret id, got %s", fake.asked[0])
	}

	if _, err := p.Get(context.Background(), "other"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Expected ErrSecretNotFound, got %v", err)
	}

	fake.err = errors.New("throttled")
	if _, err := p.Get(context.Background(), "broker-token"); !errors.Is(err, ErrProviderError) {
		t.Errorf("Expected ErrProviderError, got %v", err)
	}
}

type countingProvider struct {
	values []string
	errs   []error
	calls  int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Get(ctx context.Context, key string) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.values) {
		return p.values[i], nil
	}
	return p.values[len(p.values)-1], nil
}

func TestCachedSecret_RefreshesAfterTTL(t *testing.T) {
	provider := &countingProvider{values: []string{"first", "second"}}
	cached := NewCachedSecret(provider, "broker-token", time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		token, err := cached.Token(context.Background())
		if err != nil || token != "first" {
			t.Fatalf("Expected first, got %q (%v)", token, err)
		}
	}
	if provider.calls != 1 {
		t.Errorf("Expected 1 provider call, got %d", provider.calls)
	}

	now = now.Add(2 * time.Minute)
	token, _ := cached.Token(context.Background())
	if token != "second" {
		t.Errorf("Expected refreshed token second, got %s", token)
	}
}

func TestCachedSecret_KeepsValueOnRefreshError(t *testing.T) {
	provider := &countingProvider{
		values: []string{"first", "", "third"},
		errs:   []error{nil, errors.New("vault sealed")},
	}
	cached := NewCachedSecret(provider, "broker-token", time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	cached.Token(context.Background())
	now = now.Add(2 * time.Minute)

	token, err := cached.Token(context.Background())
	if err != nil {
		t.Fatalf("Expected cached value on refresh error, got %v", err)
	}
	if token != "first" {
		t.Errorf("Expected first, got %s", token)
	}
}

func TestCachedSecret_FirstLookupError(t *testing.T) {
	provider := &countingProvider{errs: []error{ErrSecretNotFound}, values: []string{"late"}}
	cached := NewCachedSecret(provider, "broker-token", 0)

	if _, err := cached.Token(context.Background()); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Expected ErrSecretNotFound, got %v", err)
	}

	token, err := cached.Token(context.Background())
	if err != nil || token != "late" {
		t.Errorf("Expected retry to resolve late, got %q (%v)", token, err)
	}
}
