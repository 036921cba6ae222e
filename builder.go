package typeshield

import (
	"errors"

	"github.com/typeshield/typeshield/store"
)

// Builder wires the engine's dependencies. Construct with New, chain
// With* calls, then Build once.
type Builder struct {
	config Config

	adapter   store.Adapter
	biometric BiometricProvider
	sms       SMSGateway
	texts     *TextPool
	auditSink AuditSink

	built bool
}

// New returns a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAdapter sets the persistence backend. Required.
func (b *Builder) WithAdapter(adapter store.Adapter) *Builder {
	b.adapter = adapter
	return b
}

// WithBiometric sets the behavioral-biometric provider. Required.
func (b *Builder) WithBiometric(provider BiometricProvider) *Builder {
	b.biometric = provider
	return b
}

// WithSMS sets the SMS gateway. Required.
func (b *Builder) WithSMS(gateway SMSGateway) *Builder {
	b.sms = gateway
	return b
}

// WithTextPool sets a pre-loaded challenge sentence pool. Optional; an
// empty pool serving the configured default text is used otherwise.
func (b *Builder) WithTextPool(pool *TextPool) *Builder {
	b.texts = pool
	return b
}

// WithAuditSink sets the audit destination. Optional; events are
// dropped unless auditing is enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and assembles the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.adapter == nil {
		return nil, errors.New("a persistence adapter is required")
	}
	if b.biometric == nil {
		return nil, errors.New("a biometric provider is required")
	}
	if b.sms == nil {
		return nil, errors.New("an sms gateway is required")
	}

	texts := b.texts
	if texts == nil {
		texts = NewTextPool(b.config.Text.DefaultText)
	}

	db := store.Open(b.adapter, b.config.Service.HashSalt)

	engine := &Engine{
		config:    b.config,
		db:        db,
		biometric: b.biometric,
		sms:       b.sms,
		texts:     texts,
		audit:     newAuditDispatcher(b.config.Audit, b.auditSink),
	}
	if b.config.Metrics.Enabled {
		engine.metrics = NewMetrics()
	}

	b.built = true
	return engine, nil
}
