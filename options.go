package scanrelay

// Option configures a Producer or Consumer with optional dependencies.
type Option func(*relayOptions)

// relayOptions holds optional Producer and Consumer configuration.
type relayOptions struct {
	hooks    *Hooks
	metrics  MetricsCollector
	logger   Logger
	renderer Renderer
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewProducer and NewConsumer
//
// Example:
//
//	hooks := &scanrelay.Hooks{
//	    OnDocumentReassembled: func(ctx context.Context, doc scanrelay.DocumentInfo) error {
//	        return archive(doc.Path)
//	    },
//	}
//	consumer, err := scanrelay.NewConsumer(&cfg, conn, scanrelay.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *relayOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewProducer and NewConsumer
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "")
//	producer, err := scanrelay.NewProducer(&cfg, conn, scanrelay.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *relayOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - Option: Functional option for NewProducer and NewConsumer
func WithLogger(logger Logger) Option {
	return func(o *relayOptions) {
		o.logger = logger
	}
}

// WithRenderer replaces the PDF renderer used by the producer.
//
// Parameters:
//   - renderer: Renderer implementation
//
// Returns:
//   - Option: Functional option for NewProducer (ignored by NewConsumer)
func WithRenderer(renderer Renderer) Option {
	return func(o *relayOptions) {
		o.renderer = renderer
	}
}
