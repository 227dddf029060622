package kratos

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	kratos "github.com/ory/kratos-client-go"

	"github.com/MrEthical07/authsync/credstore"
	"github.com/MrEthical07/authsync/identity"
)

// Config configures the adapter.
type Config struct {
	// BaseURL is the Kratos public API URL.
	BaseURL    string
	HTTPClient *http.Client

	// TokenizeTemplate names the session-to-JWT template used for the id
	// token. Empty means the session token doubles as the id token.
	TokenizeTemplate string

	UsernameTrait string
	EmailTrait    string
	NicknameTrait string

	// Credentials persists the session token. Defaults to credstore.NewMemory().
	Credentials credstore.Store
	Logger      *slog.Logger
}

type pendingVerification struct {
	flowID string
	email  string
}

// Provider implements identity.Provider against Kratos.
type Provider struct {
	hub   identity.Hub
	api   *kratos.APIClient
	cfg   Config
	creds credstore.Store
	log   *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingVerification
}

// New returns an adapter for cfg.
func New(cfg Config) (*Provider, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("kratos base url is required")
	}
	if cfg.UsernameTrait == "" {
		cfg.UsernameTrait = "username"
	}
	if cfg.EmailTrait == "" {
		cfg.EmailTrait = "email"
	}
	if cfg.NicknameTrait == "" {
		cfg.NicknameTrait = "nickname"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Credentials == nil {
		cfg.Credentials = credstore.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{{URL: cfg.BaseURL}}
	configuration.HTTPClient = cfg.HTTPClient
	configuration.UserAgent = "authsync"

	return &Provider{
		api:     kratos.NewAPIClient(configuration),
		cfg:     cfg,
		creds:   cfg.Credentials,
		log:     cfg.Logger.With("provider", "kratos"),
		pending: make(map[string]pendingVerification),
	}, nil
}

// Subscribe implements identity.Provider.
func (p *Provider) Subscribe(fn func(identity.Event)) (unsubscribe func()) {
	return p.hub.Subscribe(fn)
}

func (p *Provider) fail(kind identity.EventKind, err *identity.Error) error {
	p.log.Debug("kratos call failed", "op", err.Op, "kind", err.Kind.String())
	if kind != "" {
		p.hub.Publish(identity.NewEvent(kind, err))
	}
	return err
}

func (p *Provider) setPending(username string, v pendingVerification) {
	p.mu.Lock()
	p.pending[username] = v
	p.mu.Unlock()
}

func (p *Provider) getPending(username string) (pendingVerification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.pending[username]
	return v, ok
}

func (p *Provider) clearPending(username string) {
	p.mu.Lock()
	delete(p.pending, username)
	p.mu.Unlock()
}

func traitString(traits any, name string) string {
	m, ok := traits.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := m[name].(string)
	return s
}

var _ identity.Provider = (*Provider)(nil)
