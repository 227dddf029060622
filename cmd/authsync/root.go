package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/credstore"
	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/identity/kratos"
	"github.com/MrEthical07/authsync/identity/memory"
)

const (
	providerKratos = "kratos"
	providerMemory = "memory"
)

// cliConfig holds provider wiring. Engine settings come from
// authsync.LoadConfigFromEnv.
type cliConfig struct {
	KratosURL        string        `env:"AUTHSYNC_KRATOS_URL" envDefault:"http://127.0.0.1:4433"`
	TokenizeTemplate string        `env:"AUTHSYNC_KRATOS_TOKENIZE_TEMPLATE"`
	RedisAddr        string        `env:"AUTHSYNC_REDIS_ADDR"`
	CredentialsKey   string        `env:"AUTHSYNC_CREDENTIALS_KEY" envDefault:"authsync:credentials"`
	CredentialsTTL   time.Duration `env:"AUTHSYNC_CREDENTIALS_TTL" envDefault:"720h"`
	LogLevel         string        `env:"AUTHSYNC_LOG_LEVEL" envDefault:"warn"`
}

var (
	providerName string
	verbose      bool
	timeout      time.Duration
	cfg          cliConfig
	logger       *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "authsync",
	Short: "Client session synchronization CLI",
	Long: `authsync runs the client session engine against an identity provider.

Example usage:
  authsync signup --email a@example.com --username alice
  authsync signin --username alice
  authsync whoami
  authsync demo                 # full flow against the in-memory provider
  authsync stress --writers 8   # concurrent store writers`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", providerKratos, "identity provider: kratos or memory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")
}

func initConfig() error {
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	level := slog.LevelWarn
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

// runtime is one started engine plus the resources behind its provider.
type runtime struct {
	engine  *authsync.Engine
	flow    *authsync.AuthFlow
	memory  *memory.Provider
	cleanup []func()
}

func (r *runtime) Close() {
	if r.flow != nil {
		r.flow.Close()
	}
	if r.engine != nil {
		r.engine.Close()
	}
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		r.cleanup[i]()
	}
}

type runtimeOptions struct {
	metrics     bool
	diagnostics authsync.DiagnosticsSink
	memoryOpts  []memory.Option
}

// openRuntime builds the selected provider, builds the engine and waits for
// bootstrap to finish.
func openRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	engineCfg, err := authsync.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if opts.diagnostics != nil {
		engineCfg.Diagnostics.Enabled = true
	}

	rt := &runtime{}
	var provider identity.Provider
	switch providerName {
	case providerMemory:
		p, err := memory.New(opts.memoryOpts...)
		if err != nil {
			return nil, fmt.Errorf("memory provider: %w", err)
		}
		rt.memory = p
		provider = p
	case providerKratos:
		store, closeStore, err := openCredentials()
		if err != nil {
			return nil, err
		}
		rt.cleanup = append(rt.cleanup, closeStore)
		p, err := kratos.New(kratos.Config{
			BaseURL:          cfg.KratosURL,
			TokenizeTemplate: cfg.TokenizeTemplate,
			Credentials:      store,
			Logger:           logger,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}

	b := authsync.New().
		WithConfig(engineCfg).
		WithProvider(provider).
		WithLogger(logger)
	if opts.metrics {
		b = b.WithMetricsEnabled(true).WithLatencyHistograms(true)
	}
	if opts.diagnostics != nil {
		b = b.WithDiagnosticsSink(opts.diagnostics)
	}
	e, err := b.Build()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine = e
	if err := e.Start(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	rt.flow = e.NewAuthFlow()
	return rt, nil
}

// openCredentials connects to AUTHSYNC_REDIS_ADDR, or to an in-process
// miniredis when it is unset.
func openCredentials() (credstore.Store, func(), error) {
	addr := cfg.RedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("AUTHSYNC_REDIS_ADDR unset; credentials last for this process only", "addr", mr.Addr())
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return credstore.NewRedis(client, cfg.CredentialsKey, cfg.CredentialsTTL), func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	return credstore.NewRedis(client, cfg.CredentialsKey, cfg.CredentialsTTL), func() { _ = client.Close() }, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
