package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raine/listing-studio/internal/clipboard"
	"github.com/raine/listing-studio/internal/config"
	"github.com/raine/listing-studio/internal/export"
	"github.com/raine/listing-studio/internal/listing"
	"github.com/raine/listing-studio/internal/llm"
	"github.com/raine/listing-studio/internal/media"
	"github.com/raine/listing-studio/internal/session"
	"github.com/raine/listing-studio/internal/storage"
)

var (
	verbose bool
	version = "dev"
)

type generateOptions struct {
	file     string
	url      string
	platform string
	format   string
	copy     string
	model    string
	noCache  bool
}

var rootCmd = &cobra.Command{
	Use:   "listing-gen",
	Short: "Generate Amazon and Trendyol listing copy from a product photo",
	Long: `listing-gen sends a product photo to Gemini and prints SEO copy and
photography prompts for Amazon and Trendyol.

Quick Start:
  listing-gen generate --file basket.jpg
  listing-gen generate --url https://example.com/basket.jpg --platform trendyol
  listing-gen generate --file basket.jpg --format yaml
  listing-gen generate --file basket.jpg --copy prompts.sizing`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
	},
	SilenceUsage: true,
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate listing copy for one image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFile()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.model != "" {
				cfg.GeminiModel = opts.model
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			gemini, err := llm.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return fmt.Errorf("failed to initialize gemini generator: %w", err)
			}
			var generator llm.Generator = gemini
			if cfg.DBPath != "" && !opts.noCache {
				store, err := storage.NewSQLiteStore(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("failed to open cache: %w", err)
				}
				defer store.Close()
				generator = llm.NewCachedGenerator(gemini, store.WithCacheTTL(cfg.CacheTTL))
			}

			fetcher := media.NewDownloader().
				WithMaxSize(cfg.ImageMaxBytes).
				WithTimeout(cfg.ImageFetchTimeout)

			styled := isTerminal(cmd.OutOrStdout())
			return runGenerate(ctx, opts, generator, fetcher, clipboard.Detect(), cmd.OutOrStdout(), cmd.ErrOrStderr(), styled)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.file, "file", "", "path to the product image")
	f.StringVar(&opts.url, "url", "", "URL of the product image")
	f.StringVar(&opts.platform, "platform", "all", "marketplace to print: amazon, trendyol or all")
	f.StringVar(&opts.format, "format", "text", "output format: "+strings.Join(export.Formats, ", "))
	f.StringVar(&opts.copy, "copy", "", "copy one field to the clipboard, e.g. seo.title or prompts.sizing")
	f.StringVar(&opts.model, "model", "", "model override: "+strings.Join(llm.KnownModels(), ", "))
	f.BoolVar(&opts.noCache, "no-cache", false, "skip the generation cache")
	cmd.MarkFlagsMutuallyExclusive("file", "url")
	cmd.MarkFlagsOneRequired("file", "url")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func parsePlatforms(s string) ([]listing.Platform, error) {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return listing.Platforms(), nil
	}
	p, err := listing.ParsePlatform(s)
	if err != nil {
		return nil, err
	}
	return []listing.Platform{p}, nil
}

// runGenerate acquires the image, generates once and prints the selected
// marketplace records. One generation always covers both marketplaces.
func runGenerate(ctx context.Context, opts *generateOptions, generator llm.Generator, fetcher session.ImageFetcher, clip clipboard.Clipboard, stdout, stderr io.Writer, styled bool) error {
	platforms, err := parsePlatforms(opts.platform)
	if err != nil {
		return err
	}
	exporter, err := export.ForFormat(opts.format, styled)
	if err != nil {
		return err
	}

	workspace := session.NewWorkspace(generator, fetcher)
	target := platforms[0]

	if opts.url != "" {
		if _, err := workspace.AcquireFromURL(ctx, target, opts.url); err != nil {
			return fmt.Errorf("%s: %w", session.MsgURLLoadFailed, err)
		}
	} else {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		accepted, err := workspace.AcquireFromFile(target, data, mime.TypeByExtension(filepath.Ext(opts.file)))
		if err != nil {
			return err
		}
		if !accepted {
			return fmt.Errorf("%s is not an image", opts.file)
		}
	}

	if err := workspace.Generate(ctx, target); err != nil {
		return fmt.Errorf("%s: %w", session.MsgGenerationFailed, err)
	}
	st, err := workspace.Snapshot(target)
	if err != nil {
		return err
	}

	if err := exporter.Export(stdout, st.Result, platforms); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if opts.copy != "" {
		field, ok := listing.LookupField(st.Result, target, opts.copy)
		if !ok {
			return fmt.Errorf("no field %q for %s", opts.copy, target)
		}
		copier := clipboard.NewCopier(clip, 0)
		defer copier.Stop()
		if err := copier.Copy(string(target)+"/"+field.Key, field.Label, field.Text); err != nil {
			return fmt.Errorf("clipboard write failed: %w", err)
		}
		fmt.Fprintln(stderr, copier.Toast())
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(newGenerateCmd())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
