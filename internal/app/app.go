// Package app wires configuration into a ready-to-run screener: provider
// credentials, the classifier client, the frame source, report export and
// session history. Each subcommand builds what it needs from these helpers.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-screen/internal/auth"
	"github.com/fpang/video-screen/internal/classify"
	"github.com/fpang/video-screen/internal/config"
	"github.com/fpang/video-screen/internal/frames"
	"github.com/fpang/video-screen/internal/metrics"
	"github.com/fpang/video-screen/internal/pipeline"
	"github.com/fpang/video-screen/internal/report"
	"github.com/fpang/video-screen/internal/store"
)

// ProviderNames lists the built-in providers in display order.
var ProviderNames = []string{"zhipu", "openai", "gemini"}

// App holds everything a screening command needs.
type App struct {
	Config   config.Config
	Registry *classify.Registry
	// Sources records where each provider's key came from; a provider
	// without a key is absent.
	Sources  map[string]auth.Source
	Provider classify.Provider
	Client   *classify.Client
	Store    store.SessionStore
	Screener *pipeline.Screener

	aws *awsLoader
}

// Option adjusts how an App is built.
type Option func(*buildOptions)

type buildOptions struct {
	metricsOut io.Writer
	observers  []pipeline.Observer
	awsLoad    func(ctx context.Context) (aws.Config, error)
}

// WithMetricsOutput sends EMF metrics to w when metrics are enabled. The
// default is stdout; the MCP server uses stderr because stdout carries the
// protocol.
func WithMetricsOutput(w io.Writer) Option {
	return func(o *buildOptions) { o.metricsOut = w }
}

// WithObserver subscribes o to the screener's session notifications.
func WithObserver(obs pipeline.Observer) Option {
	return func(o *buildOptions) { o.observers = append(o.observers, obs) }
}

// WithAWSConfig replaces the default AWS config loader, for tests.
func WithAWSConfig(fn func(ctx context.Context) (aws.Config, error)) Option {
	return func(o *buildOptions) { o.awsLoad = fn }
}

// awsLoader loads the shared AWS config at most once, and only when a
// component needs it.
type awsLoader struct {
	load func(ctx context.Context) (aws.Config, error)
	once sync.Once
	cfg  aws.Config
	err  error
}

func (l *awsLoader) get(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = l.load(ctx)
		if l.err == nil {
			log.Debug().Str("region", l.cfg.Region).Msg("AWS config loaded")
		}
	})
	return l.cfg, l.err
}

func defaultAWSConfig(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

func newOptions(options []Option) buildOptions {
	o := buildOptions{metricsOut: os.Stdout, awsLoad: defaultAWSConfig}
	for _, opt := range options {
		opt(&o)
	}
	return o
}

// New validates cfg and builds the full screening stack. The caller must
// Close the App.
func New(ctx context.Context, cfg config.Config, options ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	o := newOptions(options)

	if cfg.Metrics {
		metrics.SetOutput(o.metricsOut)
	} else {
		metrics.SetOutput(nil)
	}

	a := &App{Config: cfg, aws: &awsLoader{load: o.awsLoad}}

	a.Registry, a.Sources = a.buildRegistry(ctx)
	provider, err := a.Registry.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	a.Provider = provider
	a.Client = classify.NewClient(provider,
		classify.WithMaxAttempts(cfg.MaxAttempts),
		classify.WithBaseDelay(cfg.RetryBaseDelay),
	)

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = st

	exporter, err := a.exporter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	source := frames.NewSource()
	source.PollInterval = cfg.PollInterval

	opts := pipeline.Options{
		Concurrency: cfg.Concurrency,
		Sensitivity: cfg.Sensitivity,
		OutputDir:   cfg.OutputDir,
		UseVideoDir: cfg.UseVideoDir,
		EnableAI:    cfg.EnableAI,
		Provider:    provider.Name(),
	}
	pipeOpts := []pipeline.Option{pipeline.WithExporter(exporter)}
	if st != nil {
		pipeOpts = append(pipeOpts, pipeline.WithHistory(st))
	}
	for _, obs := range o.observers {
		pipeOpts = append(pipeOpts, pipeline.WithObserver(obs))
	}
	a.Screener = pipeline.New(source, a.Client, opts, pipeOpts...)
	return a, nil
}

// Close releases the history store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// buildRegistry resolves a key for every built-in provider. The configured
// provider goes through the full resolver chain; the others are only looked
// up in the environment so listing them never prompts for a GPG passphrase.
// Model, base URL, explicit key and SSM parameter apply to the configured
// provider only.
func (a *App) buildRegistry(ctx context.Context) (*classify.Registry, map[string]auth.Source) {
	cfg := a.Config
	sources := make(map[string]auth.Source)
	reg := classify.NewRegistry()

	for _, name := range ProviderNames {
		if name != cfg.Provider {
			key := strings.TrimSpace(os.Getenv(auth.EnvVar(name)))
			if key != "" {
				sources[name] = auth.SourceEnv
			}
			reg.Register(newProvider(name, key, "", ""))
			continue
		}

		resolver := &auth.Resolver{}
		if cfg.APIKeySSMParam != "" {
			if awsCfg, err := a.aws.get(ctx); err != nil {
				log.Warn().Err(err).Msg("AWS config unavailable, skipping SSM key lookup")
			} else {
				resolver.SSM = ssm.NewFromConfig(awsCfg)
				resolver.SSMParam = cfg.APIKeySSMParam
			}
		}
		key, src, err := resolver.Resolve(ctx, name, cfg.APIKey)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("No API key for the selected provider")
		} else {
			sources[name] = src
		}
		reg.Register(newProvider(name, key, cfg.Model, cfg.BaseURL))
	}
	return reg, sources
}

func newProvider(name, key, model, baseURL string) classify.Provider {
	switch name {
	case "openai":
		return classify.NewOpenAI(key, model, baseURL)
	case "gemini":
		return classify.NewGemini(key, model)
	default:
		return classify.NewZhipu(key, model)
	}
}

// openStore returns the configured history store, or nil for "none".
func (a *App) openStore(ctx context.Context) (store.SessionStore, error) {
	sc := a.Config.Store
	switch sc.Driver {
	case config.StoreSQLite:
		st, err := store.OpenSQLite(sc.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", sc.SQLitePath).Msg("History store opened")
		return st, nil
	case config.StoreDynamo:
		awsCfg, err := a.aws.get(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config for DynamoDB history: %w", err)
		}
		return store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), sc.DynamoTable), nil
	default:
		return nil, nil
	}
}

// OpenStore opens only the history store, for commands that do not screen.
func OpenStore(ctx context.Context, cfg config.Config, options ...Option) (store.SessionStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	o := newOptions(options)
	a := &App{Config: cfg, aws: &awsLoader{load: o.awsLoad}}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNoHistory
	}
	return st, nil
}

// ErrNoHistory is returned by OpenStore when the store driver is "none".
var ErrNoHistory = errors.New("session history is disabled (store.driver: none)")

// Registry resolves keys for all providers without building a screener.
func Registry(ctx context.Context, cfg config.Config, options ...Option) (*classify.Registry, map[string]auth.Source) {
	o := newOptions(options)
	a := &App{Config: cfg, aws: &awsLoader{load: o.awsLoad}}
	return a.buildRegistry(ctx)
}

func (a *App) exporter(ctx context.Context) (*report.FileExporter, error) {
	rc := a.Config.Report
	exp := &report.FileExporter{
		ThumbnailMax: rc.ThumbnailMax,
		Bundle:       rc.Bundle,
	}
	if rc.S3Bucket == "" {
		return exp, nil
	}
	awsCfg, err := a.aws.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for report upload: %w", err)
	}
	exp.Publisher = &report.S3Publisher{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: rc.S3Bucket,
		Prefix: rc.S3Prefix,
	}
	return exp, nil
}
