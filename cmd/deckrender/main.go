package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/iago/pptx-generator-back/internal/deck"
	"github.com/iago/pptx-generator-back/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "deckrender",
		Short:         "Render HTML slide fragments into a PowerPoint deck",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRenderCommand(&logLevel),
		newBrandsCommand(),
	)
	return cmd
}

type renderOptions struct {
	output       string
	logo         string
	brand        string
	title        string
	maxCards     int
	bulletBudget float64
}

// newRenderCommand converts every *.html file of a directory, in file name
// order, into one .pptx.
func newRenderCommand(logLevel *string) *cobra.Command {
	opts := renderOptions{}

	cmd := &cobra.Command{
		Use:   "render [fragments-dir]",
		Short: "Render a directory of slide fragments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fragments, err := collectFragments(args[0])
			if err != nil {
				return err
			}
			if len(fragments) == 0 {
				return fmt.Errorf("no .html fragments found in %s", args[0])
			}

			logger := logging.NewWithWriter(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}, "cli", *logLevel)
			engine := deck.NewEngine(deck.Config{
				Layout: deck.LayoutConfig{
					MaxCards:     opts.maxCards,
					BulletBudget: opts.bulletBudget,
				},
			}, logger)

			report, err := engine.Render(cmd.Context(), deck.RenderRequest{
				Fragments:  fragments,
				OutputPath: opts.output,
				LogoPath:   opts.logo,
				Brand:      strings.ToLower(strings.TrimSpace(opts.brand)),
				Title:      opts.title,
			})
			if err != nil {
				return fmt.Errorf("render deck: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d slides rendered\n", report.OutputPath, report.SlidesRendered, len(fragments))
			for _, issue := range report.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s: %v\n", filepath.Base(issue.Path), issue.Err)
			}
			return nil
		},
	}

	defaults := deck.DefaultLayoutConfig()
	cmd.Flags().StringVarP(&opts.output, "output", "o", "presentation.pptx", "output .pptx path")
	cmd.Flags().StringVar(&opts.logo, "logo", "", "watermark image (png, jpeg or gif)")
	cmd.Flags().StringVarP(&opts.brand, "brand", "b", "traefik", "brand palette")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "Presentation", "deck title")
	cmd.Flags().IntVar(&opts.maxCards, "max-cards", defaults.MaxCards, "maximum card shapes per slide")
	cmd.Flags().Float64Var(&opts.bulletBudget, "bullet-budget", defaults.BulletBudget, "cursor position past which bullets are dropped")
	return cmd
}

func newBrandsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "brands",
		Short: "List the known brand palettes",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, brand := range deck.Brands() {
				fmt.Fprintln(cmd.OutOrStdout(), brand)
			}
			return nil
		},
	}
}

func collectFragments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fragments dir: %w", err)
	}
	fragments := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".html") {
			continue
		}
		fragments = append(fragments, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(fragments)
	return fragments, nil
}
