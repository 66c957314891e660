package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/fpang/video-screen/internal/auth"
	"github.com/fpang/video-screen/internal/classify"
	"github.com/fpang/video-screen/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	for _, name := range ProviderNames {
		t.Setenv(auth.EnvVar(name), "")
	}
	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

func noAWS(context.Context) (aws.Config, error) {
	return aws.Config{}, errors.New("no AWS in tests")
}

func TestNew_BuildsScreener(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv("OPENAI_API_KEY", "openai-key")

	a, err := New(context.Background(), cfg, WithAWSConfig(noAWS))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Screener == nil || a.Client == nil || a.Store == nil {
		t.Fatalf("New() left components unset: %+v", a)
	}
	if a.Provider.Name() != "zhipu" || !a.Client.Ready() {
		t.Errorf("Provider = %s, Ready() = %v, want zhipu and ready", a.Provider.Name(), a.Client.Ready())
	}
	if got := len(a.Registry.List()); got != len(ProviderNames) {
		t.Errorf("Registry has %d providers, want %d", got, len(ProviderNames))
	}
	if a.Sources["zhipu"] != auth.SourceConfig {
		t.Errorf("Sources[zhipu] = %q, want config", a.Sources["zhipu"])
	}
	if a.Sources["openai"] != auth.SourceEnv {
		t.Errorf("Sources[openai] = %q, want env", a.Sources["openai"])
	}
	if _, ok := a.Sources["gemini"]; ok {
		t.Errorf("Sources[gemini] set without a key")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"invalid config", func(c *config.Config) { c.Sensitivity = 2 }},
		{"unknown provider", func(c *config.Config) { c.Provider = "llava" }},
		{"dynamo without AWS", func(c *config.Config) {
			c.Store.Driver = config.StoreDynamo
			c.Store.DynamoTable = "video-screen"
		}},
		{"s3 without AWS", func(c *config.Config) { c.Report.S3Bucket = "reports" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			if a, err := New(context.Background(), cfg, WithAWSConfig(noAWS)); err == nil {
				a.Close()
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestNew_NoStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreNone

	a, err := New(context.Background(), cfg, WithAWSConfig(noAWS))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Store != nil {
		t.Errorf("Store = %v, want nil", a.Store)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if _, err := OpenStore(context.Background(), cfg); !errors.Is(err, ErrNoHistory) {
		t.Errorf("OpenStore() error = %v, want ErrNoHistory", err)
	}
}

func TestRegistry_ModelAppliesToSelectedProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider = "gemini"
	cfg.Model = "gemini-custom"

	reg, sources := Registry(context.Background(), cfg, WithAWSConfig(noAWS))
	p, err := reg.Get("gemini")
	if err != nil {
		t.Fatalf("Get(gemini) error = %v", err)
	}
	if p.DisplayName() != "Google gemini-custom" {
		t.Errorf("DisplayName() = %q, want Google gemini-custom", p.DisplayName())
	}
	z, _ := reg.Get("zhipu")
	if z.IsConfigured() {
		t.Error("zhipu configured from the gemini key")
	}
	chat, ok := z.(*classify.ChatProvider)
	if !ok {
		t.Fatalf("zhipu provider is %T, want *classify.ChatProvider", z)
	}
	if chat.Model() != "glm-4v-flash" {
		t.Errorf("zhipu Model() = %q, want glm-4v-flash", chat.Model())
	}
	if sources["gemini"] != auth.SourceConfig {
		t.Errorf("sources[gemini] = %q, want config", sources["gemini"])
	}
}
