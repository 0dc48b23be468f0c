package boxblur

import "log/slog"

// Option configures an Engine during creation.
//
// Example:
//
//	// Heuristics for the device vendor
//	e, err := boxblur.NewEngine(dev, 1920, 1080, 4)
//
//	// A table measured by Calibrate
//	e, err := boxblur.NewEngine(dev, 1920, 1080, 4, boxblur.WithTable(report.Table("lab")))
type Option func(*options)

// options holds optional configuration for Engine creation.
type options struct {
	table  *Table
	vendor string
	logger *slog.Logger
}

// defaultOptions returns the default engine options.
func defaultOptions() options {
	return options{
		table:  nil, // built from the device vendor if nil
		logger: nil, // package logger if nil
	}
}

// WithTable sets the strategy table instead of the vendor heuristics.
func WithTable(t *Table) Option {
	return func(o *options) {
		o.table = t
	}
}

// WithVendor selects the heuristics of vendor instead of the vendor the
// device reports. Ignored when WithTable is also given.
func WithVendor(vendor string) Option {
	return func(o *options) {
		o.vendor = vendor
	}
}

// WithLogger sets the engine's logger instead of the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
