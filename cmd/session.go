package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Yates-Labs/respin/internal/console"
	"github.com/Yates-Labs/respin/internal/orchestrator"
	"github.com/Yates-Labs/respin/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sessionChapter chapterFlags
	metricsAddr    string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Review a chapter interactively",
	Long: `Start a review session for one chapter.

The chapter is scraped on first use and rewritten with the best-scoring
prompt. You then rate the rewrite and choose to edit it, finalize it,
re-spin it, search earlier versions or listen to it. A session on a chapter
with history resumes where the last one stopped.

Examples:
  respin session
  respin session --book-slug The_Gates_of_Morning --book 1 --chapter 2
  respin session --url https://en.wikisource.org/wiki/The_Gates_of_Morning/Book_1/Chapter_1
  respin session --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionChapter.bind(sessionCmd)
	sessionCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
}

func runSession(cmd *cobra.Command, args []string) error {
	target, err := sessionChapter.target(appConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := orchestrator.Open(ctx, appConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer rt.Close()

	addr := appConfig.MetricsAddr
	if metricsAddr != "" {
		addr = metricsAddr
	}
	if addr != "" {
		go func() {
			if err := rt.Metrics().Serve(ctx, addr, logger); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	var editor session.Editor
	if e, err := console.NewExternalEditor(appConfig.Editor, "", logger); err != nil {
		logger.Warn("editing disabled", zap.Error(err))
	} else {
		editor = e
	}

	ctrl, err := rt.Session(ctx, console.New(os.Stdin, os.Stdout), editor)
	if err != nil {
		return err
	}
	return ctrl.Run(ctx, target)
}
