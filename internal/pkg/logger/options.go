package logger

// Option modifies a logger Config.
type Option func(*Config)

func WithLevel(level string) Option {
	return func(c *Config) {
		c.Level = level
	}
}

func WithFormat(format string) Option {
	return func(c *Config) {
		c.Format = format
	}
}

func WithOutput(output string) Option {
	return func(c *Config) {
		c.Output = output
	}
}

func WithFilename(filename string) Option {
	return func(c *Config) {
		c.File.Filename = filename
	}
}

func WithStacktrace(enabled bool) Option {
	return func(c *Config) {
		c.EnableStacktrace = enabled
	}
}

// NewWithOptions starts from DefaultConfig and applies opts.
func NewWithOptions(opts ...Option) (*Logger, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// CLI returns a console logger on stderr so that command output on stdout stays machine-readable.
func CLI(level string) (*Logger, error) {
	return NewWithOptions(
		WithLevel(level),
		WithFormat("console"),
		WithOutput("stderr"),
		WithStacktrace(false),
	)
}
