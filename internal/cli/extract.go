package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/biz"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/formatter"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/loader"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
)

// stdinName picks the plain text loader for piped input.
const stdinName = "stdin.txt"

type extractOptions struct {
	input  string
	output string
	format string

	fields     string
	dateFields string
	listFields string

	chunkMethod   string
	chunkSize     int
	chunkOverlap  int
	minChunkSize  int
	maxThreads    int
	dateFormat    string
	unknownValue  string
	systemPrompt  string
	listSeparator string
	provenance    bool
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract fields from a document",
		Long: `Reads a document (txt, md, pdf, docx or json) from --input or stdin and
prints the extracted fields. Options left unset fall back to the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "-", "document to read, - for stdin")
	f.StringVarP(&opts.output, "output", "o", "", "write the result to this file instead of stdout")
	f.StringVar(&opts.format, "format", "", "output format: "+strings.Join(formatter.Formats(), ", "))
	f.StringVarP(&opts.fields, "fields", "f", "", "comma separated fields to extract")
	f.StringVar(&opts.dateFields, "date-fields", "", "comma separated fields holding dates")
	f.StringVar(&opts.listFields, "list-fields", "", "comma separated fields holding lists")
	f.StringVar(&opts.chunkMethod, "chunk-method", "", "chunking method: words or paragraphs")
	f.IntVar(&opts.chunkSize, "chunk-size", 0, "words per chunk")
	f.IntVar(&opts.chunkOverlap, "chunk-overlap", 0, "words shared by adjacent chunks")
	f.IntVar(&opts.minChunkSize, "min-chunk-size", 0, "smallest trailing chunk kept on its own")
	f.IntVar(&opts.maxThreads, "max-threads", 0, "concurrent LLM calls")
	f.StringVar(&opts.dateFormat, "date-format", "", "date output pattern, e.g. dd/mm/YYYY")
	f.StringVar(&opts.unknownValue, "unknown-value", "", "value written for fields not found")
	f.StringVar(&opts.systemPrompt, "system-prompt", "", "system prompt sent with every chunk")
	f.StringVar(&opts.listSeparator, "list-separator", "", "separator between list items")
	f.BoolVar(&opts.provenance, "provenance", false, "include per-field provenance in json and xlsx output")
	_ = cmd.MarkFlagRequired("fields")

	return cmd
}

func runExtract(cmd *cobra.Command, root *rootOptions, opts *extractOptions) error {
	fields := types.SplitList(opts.fields)
	if len(fields) == 0 {
		return errors.New("--fields must name at least one field")
	}

	app, err := root.load()
	if err != nil {
		return err
	}
	defer app.Cleanup()

	format, err := outputFormat(opts.format, app.Config.Extraction.OutputFormat)
	if err != nil {
		return err
	}
	if format == formatter.FormatXLSX && opts.output == "" {
		return errors.New("xlsx output needs --output")
	}

	cfg := runConfig(app.Config.RunDefaults(), cmd.Flags(), opts)
	cfg.Fields = fields

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc, err := readInput(ctx, cmd, app.Loaders, opts.input)
	if err != nil {
		return err
	}

	report, err := app.Extractor.Extract(ctx, biz.Request{Document: doc, Config: cfg})
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	for _, f := range report.Result.Failures {
		cmd.PrintErrf("warning: chunk %d failed: %s\n", f.ChunkIndex, f.Reason)
	}
	for _, w := range report.Result.Warnings {
		cmd.PrintErrf("warning: %s\n", w.String())
	}

	out, err := formatter.Format(report.Result, format, formatter.OptionsFrom(cfg, opts.provenance))
	if err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	return writeOutput(cmd, opts.output, format, out)
}

func outputFormat(flag, fallback string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(flag))
	if format == "" {
		format = strings.ToLower(fallback)
	}
	if format == "" {
		format = formatter.FormatJSON
	}
	if !formatter.Valid(format) {
		return "", fmt.Errorf("unsupported output format %q, expected one of %s", format, strings.Join(formatter.Formats(), ", "))
	}
	return format, nil
}

// runConfig overlays the flags the user set on the configured defaults.
func runConfig(cfg types.RunConfig, flags *pflag.FlagSet, opts *extractOptions) types.RunConfig {
	if flags.Changed("chunk-method") {
		cfg.ChunkMethod = opts.chunkMethod
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = opts.chunkSize
	}
	if flags.Changed("chunk-overlap") {
		cfg.ChunkOverlap = opts.chunkOverlap
	}
	if flags.Changed("min-chunk-size") {
		cfg.MinChunkSize = opts.minChunkSize
	}
	if flags.Changed("max-threads") {
		cfg.MaxThreads = opts.maxThreads
	}
	if flags.Changed("date-fields") {
		cfg.DateFields = types.SplitList(opts.dateFields)
	}
	if flags.Changed("date-format") {
		cfg.DateFormat = opts.dateFormat
	}
	if flags.Changed("unknown-value") {
		cfg.UnknownValue = opts.unknownValue
	}
	if flags.Changed("system-prompt") {
		cfg.SystemPrompt = opts.systemPrompt
	}
	if flags.Changed("list-fields") {
		cfg.ListFields = types.SplitList(opts.listFields)
	}
	if flags.Changed("list-separator") {
		cfg.ListSeparator = opts.listSeparator
	}
	return cfg
}

func readInput(ctx context.Context, cmd *cobra.Command, loaders *loader.Factory, input string) (*types.Document, error) {
	if input == "" || input == "-" {
		return loaders.Load(ctx, stdinName, cmd.InOrStdin())
	}

	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return loaders.Load(ctx, filepath.Base(input), f)
}

func writeOutput(cmd *cobra.Command, path, format string, out []byte) error {
	if format != formatter.FormatXLSX && len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}

	var w io.Writer = cmd.OutOrStdout()
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if path != "" {
		cmd.PrintErrf("wrote %s\n", path)
	}
	return nil
}
