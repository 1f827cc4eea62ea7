package goSession

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/goSession/idempotency"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/tokenstore"
)

// Builder assembles a Client. A Builder can be built once.
type Builder struct {
	config     Config
	store      tokenstore.Store
	httpClient *http.Client
	auditSink  AuditSink
	logger     *slog.Logger
	navigator  Navigator
	keyFunc    idempotency.KeyFunc
	extra      []middleware.Middleware

	built bool
}

// New returns a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore injects the token store. Without one, Build opens the backend named
// by Config.Store and the Client closes it on Close.
func (b *Builder) WithStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

// WithHTTPClient sets the client used for API calls. Its Transport is shared
// with the refresh exchange, which never passes through the session pipeline.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithNavigator sets what happens after logout and forced logout.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithKeyGenerator replaces the UUID v4 idempotency key generator.
func (b *Builder) WithKeyGenerator(fn func() (string, error)) *Builder {
	b.keyFunc = fn
	return b
}

// WithMiddleware appends request middleware inside the session pipeline. They
// run for every attempt, after the Authorization and Idempotency-Key headers
// are set.
func (b *Builder) WithMiddleware(mws ...middleware.Middleware) *Builder {
	b.extra = append(b.extra, mws...)
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- STORE --------
	store := b.store
	closeStore := func() error { return nil }
	if store == nil {
		opened, closer, err := OpenStore(context.Background(), cfg.Store)
		if err != nil {
			return nil, err
		}
		store, closeStore = opened, closer
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	navigator := b.navigator
	if navigator == nil {
		navigator = noopNavigator{}
	}

	hc := b.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.API.Timeout}
	}
	bare := &http.Client{
		Transport: hc.Transport,
		Timeout:   hc.Timeout,
		Jar:       hc.Jar,
	}
	if bare.Timeout == 0 {
		bare.Timeout = cfg.API.Timeout
	}

	c := &Client{
		config:     cfg,
		baseURL:    strings.TrimRight(cfg.API.BaseURL, "/"),
		store:      store,
		closeStore: closeStore,
		bare:       bare,
		logger:     logger,
		navigator:  navigator,
		terminal:   middleware.StatusSet(cfg.Idempotency.TerminalStatusCodes...),
	}
	c.session = &Session{c: c}

	c.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   cfg.Audit.CriticalEvents,
	}, b.auditSink)
	c.metrics = internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Metrics.Enabled,
		EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
	})

	// -------- IDEMPOTENCY --------
	keyOpts := []idempotency.Option{idempotency.WithLogger(logger), idempotency.WithKeyFunc(b.keyFunc)}
	c.transfers = idempotency.NewManager(store, append(keyOpts, idempotency.WithScope(cfg.Idempotency.TransferScope))...)
	c.accounts = idempotency.NewManager(store, append(keyOpts, idempotency.WithScope(cfg.Idempotency.AccountScope))...)

	// -------- FLOWS --------
	exchanger := refresh.NewExchanger(bare, c.endpoint(cfg.API.RefreshPath))
	c.flows = flows.Deps{
		Login: flows.LoginDeps{
			Store:        store,
			Authenticate: c.authenticate,
		},
		Refresh: flows.RefreshDeps{
			Store:            store,
			Rotate:           flows.NewRotateFunc(exchanger, store, cfg.Pipeline.SingleFlightRefresh),
			ReuseNewerAccess: cfg.Pipeline.SingleFlightRefresh,
		},
		Logout: flows.LogoutDeps{
			Store:    store,
			PurgeAll: cfg.Session.PurgeStoreOnLogout,
			Navigate: navigator.ToLogin,
			Warn:     logger.Warn,
		},
	}

	// -------- PIPELINE --------
	excluded := make([]middleware.PathMatcher, 0, len(cfg.Pipeline.ExcludedPaths))
	for _, p := range cfg.Pipeline.ExcludedPaths {
		excluded = append(excluded, middleware.Contains(p))
	}
	pipelineCfg := middleware.Config{
		ExcludedPaths:          excluded,
		AuthFailureStatusCodes: middleware.StatusSet(cfg.Pipeline.AuthFailureStatusCodes...),
	}
	mws := []middleware.Middleware{
		middleware.Logging(logger),
		middleware.Observe(c.observeLatency),
		middleware.Authenticate(pipelineCfg, c.session, c.session, c.session, middleware.WithHooks(middleware.Hooks{
			OnReplayed: c.onReplayed,
		})),
		middleware.IdempotencyHeader(cfg.Idempotency.Header),
	}
	c.doer = middleware.Chain(hc, append(mws, b.extra...)...)

	b.built = true

	return c, nil
}
