// -- cmd/collect.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stockscope/internal/aiservice"
	"stockscope/internal/browser"
	"stockscope/internal/collector"
	"stockscope/internal/prompt"
)

// stockCodePattern matches the six-digit exchange ticker format.
var stockCodePattern = regexp.MustCompile(`^\d{6}$`)

func newCollectCommand(state *appState) *cobra.Command {
	var (
		strategy string
		upload   bool
	)

	collectCmd := &cobra.Command{
		Use:   "collect <stock-code>",
		Short: "Collect data and screenshots for one stock code.",
		Long: `Collect drives a browser through the portal pages of one stock code
(overview, company analysis, news, investor flows, advanced charts),
saves the screenshots and a JSON report, and optionally renders a
strategy prompt and relays it to the enabled AI front-ends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]
			if !stockCodePattern.MatchString(code) {
				return fmt.Errorf("invalid stock code %q: expected six digits", code)
			}
			return runCollect(cmd.Context(), state, code, strategy, upload)
		},
	}

	collectCmd.Flags().StringVarP(&strategy, "strategy", "s", "", "analysis strategy to render a prompt for")
	collectCmd.Flags().BoolVarP(&upload, "upload", "u", false, "relay the rendered prompt to the enabled AI services")
	return collectCmd
}

func runCollect(ctx context.Context, state *appState, code, strategy string, upload bool) error {
	cfg, logger := state.cfg, state.logger

	if upload && strategy == "" {
		return fmt.Errorf("--upload requires --strategy")
	}
	if strategy != "" {
		if err := validStrategy(cfg.Prompts.Strategies, strategy); err != nil {
			return err
		}
	}

	launcher, err := browser.NewLauncher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("browser launch failed: %w", err)
	}
	defer launcher.Shutdown()

	factory := func(ctx context.Context) (collector.Session, error) {
		return launcher.NewSession(ctx)
	}

	coll := collector.New(factory, cfg, logger)
	report, err := coll.Collect(ctx, code)
	if err != nil {
		return fmt.Errorf("collection failed for %s: %w", code, err)
	}

	reportPath, err := collector.SaveReport(report, cfg.Data.SavePath)
	if err != nil {
		return err
	}
	logger.Info("Report saved",
		zap.String("path", reportPath),
		zap.Int("artifacts", len(report.Artifacts)))

	if strategy == "" {
		return nil
	}

	manager := prompt.NewManager(cfg.Prompts.TemplatesPath, logger)
	text, err := manager.Render(strategy, report)
	if err != nil {
		return err
	}
	logger.Info("Prompt rendered", zap.String("strategy", strategy), zap.Int("length", len(text)))

	if !upload {
		fmt.Fprintln(os.Stdout, text)
		return nil
	}

	targets := aiservice.EnabledTargets(cfg.AIServices)
	if len(targets) == 0 {
		return fmt.Errorf("no AI services enabled in configuration")
	}

	sess, err := launcher.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to open upload session: %w", err)
	}
	defer sess.Close()

	automator := aiservice.NewAutomator(sess, cfg, logger)
	results := automator.UploadAll(ctx, targets, text, report.ArtifactPaths())

	failed := 0
	for _, result := range results {
		if !result.Submitted {
			failed++
		}
	}
	if failed == len(results) {
		return fmt.Errorf("relay failed for all %d services", len(results))
	}
	return nil
}

func validStrategy(strategies []string, name string) error {
	for _, s := range strategies {
		if s == name {
			return nil
		}
	}
	return fmt.Errorf("unknown strategy %q (configured: %v)", name, strategies)
}
