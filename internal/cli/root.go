package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/llm-field-extractor/internal/conf"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/injector"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// AppFactory builds the application for a loaded config.
type AppFactory func(cfg *conf.Config, log *logger.Logger) (*injector.App, error)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	newApp     AppFactory
}

// load reads the config and builds the app. Callers must call Cleanup.
func (o *rootOptions) load() (*injector.App, error) {
	cfg, err := conf.Load(o.configPath, o.envFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.CLI(o.logLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(log)

	app, err := o.newApp(cfg, log)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// NewRootCmd builds the extractor command tree. A nil factory uses the
// production wiring.
func NewRootCmd(newApp AppFactory) *cobra.Command {
	if newApp == nil {
		newApp = injector.InitializeExtractor
	}
	opts := &rootOptions{newApp: newApp}

	root := &cobra.Command{
		Use:   "extractor",
		Short: "Extract structured fields from documents with an LLM",
		Long: `Splits a document into overlapping chunks, asks an OpenAI-compatible
model for the requested fields in every chunk and merges the answers
into one record.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", conf.DefaultConfigPath, "config file path")
	pf.StringVar(&opts.envFile, "env-file", conf.DefaultEnvFile, "dotenv file with DUDOXX_* settings")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(newExtractCmd(opts))
	root.AddCommand(newModelsCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd(nil).Execute()
}
