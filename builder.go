package authcore

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heliosuite/authcore/apikey"
	"github.com/heliosuite/authcore/internal/audit"
	"github.com/heliosuite/authcore/internal/stores"
	"github.com/heliosuite/authcore/password"
	"github.com/heliosuite/authcore/session"
	"github.com/heliosuite/authcore/token"
	"github.com/heliosuite/authcore/totp"
)

// Builder assembles an [Engine]. A Builder is single-use; Build consumes it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	apiKeyStore apikey.Store
	sessions    SessionRecorder
	auditSink   AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis provides the Redis client backing the OAuth state guard and the
// default session recorder.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore provides the host application's user database.
// Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithAPIKeyStore provides the durable backend for API keys. Without it the
// API-key operations are unavailable.
func (b *Builder) WithAPIKeyStore(store apikey.Store) *Builder {
	b.apiKeyStore = store
	return b
}

// WithSessionRecorder overrides the default Redis session recorder.
func (b *Builder) WithSessionRecorder(rec SessionRecorder) *Builder {
	b.sessions = rec
	return b
}

// WithAuditSink routes audit events to the given sink. Without a sink,
// events are dispatched to a no-op.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires every subsystem, and returns the
// engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.redis == nil && b.sessions == nil {
		return nil, errors.New("redis client required (or provide a session recorder)")
	}
	if b.redis == nil && len(cfg.OAuth.Providers) > 0 {
		return nil, errors.New("oauth providers require a redis client")
	}

	tokenCfg := token.Config{
		SigningMethod: token.SigningMethod(strings.ToLower(cfg.Token.SigningMethod)),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	}
	if tokenCfg.SigningMethod == token.MethodEd25519 &&
		len(tokenCfg.PublicKey) == 0 &&
		len(tokenCfg.PrivateKey) == ed25519.PrivateKeySize {
		pub := ed25519.PrivateKey(tokenCfg.PrivateKey).Public().(ed25519.PublicKey)
		tokenCfg.PublicKey = append([]byte(nil), pub...)
	}
	codec, err := token.NewCodec(tokenCfg)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	totpEngine, err := totp.NewEngine(totp.Config{
		Issuer: cfg.TOTP.Issuer,
		Digits: cfg.TOTP.Digits,
		Period: cfg.TOTP.Period,
		Skew:   cfg.TOTP.Skew,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		credentials: b.credentials,
		codec:       codec,
		hasher:      hasher,
		totp:        totpEngine,
		metrics:     NewMetrics(cfg.Metrics),
		now:         time.Now,
	}

	engine.sessions = b.sessions
	if engine.sessions == nil {
		store, err := session.NewStore(b.redis, cfg.Session.RedisPrefix)
		if err != nil {
			return nil, err
		}
		engine.sessions = store
	}

	if b.redis != nil {
		engine.oauthStates = stores.NewOAuthStateStore(b.redis, cfg.OAuth.RedisPrefix)
	}

	if b.apiKeyStore != nil {
		mgr, err := apikey.NewManager(b.apiKeyStore, apikey.Config{
			KeyPrefix:    cfg.APIKey.KeyPrefix,
			SecretBytes:  cfg.APIKey.SecretBytes,
			PrefixLength: cfg.APIKey.PrefixLength,
		})
		if err != nil {
			return nil, err
		}
		engine.apiKeys = mgr
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	return engine, nil
}
