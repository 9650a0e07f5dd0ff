package stepAuth

import (
	"errors"
	"io"
	"log/slog"

	"github.com/MrEthical07/stepAuth/cipher"
	"github.com/MrEthical07/stepAuth/internal/audit"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine.
//
// Builder instances are intended to be configured during initialization and used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	provider   IdentityProvider
	emailCache EmailCache
	auditSink  AuditSink
	logger     *slog.Logger
	random     io.Reader

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the Redis-backed email cache unless WithEmailCache is
// also used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

func (b *Builder) WithEmailCache(c EmailCache) *Builder {
	b.emailCache = c
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger used for best-effort failures. Defaults to
// slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithRandom sets the entropy source for puzzle generation. Defaults to
// crypto/rand.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
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

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, requires a provider and starts the
// audit dispatcher when auditing is enabled. A Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}

	gen, err := cipher.NewGenerator(cfg.Cipher.Words, cfg.Cipher.MaxShift, b.random)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		provider:  b.provider,
		generator: gen,
		logger:    logger,
		metrics:   NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		newTicker: newRealTicker,
	}

	if cfg.EmailCache.Enabled {
		switch {
		case b.emailCache != nil:
			engine.emailCache = b.emailCache
		case b.redis != nil:
			engine.emailCache = NewRedisEmailCache(b.redis, cfg.EmailCache.RedisPrefix, cfg.EmailCache.TTL)
		default:
			engine.emailCache = NewMemoryEmailCache()
		}
	}

	engine.initFlowDeps()

	b.built = true

	return engine, nil
}
