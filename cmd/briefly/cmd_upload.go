package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"briefly/internal/api"
	"briefly/internal/config"
	"briefly/internal/controller"
	"briefly/internal/poll"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	waitSummary  bool
	askSessionID string
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE.pdf",
	Short: "Upload a PDF and print the backend reply",
	Long: `Uploads a PDF to the backend and prints the session id.

With --wait the command keeps polling until the summary of the first block
is ready, using the same backoff as the interactive client.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var askCmd = &cobra.Command{
	Use:   "ask QUERY...",
	Short: "Send a query about an uploaded document",
	Example: `  briefly ask --session 4f1c "resumen del bloque 2"
  briefly ask -S 4f1c --wait siguiente bloque`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	uploadCmd.Flags().BoolVarP(&waitSummary, "wait", "w", false, "Wait for the first block summary")
	askCmd.Flags().StringVarP(&askSessionID, "session", "S", "", "Session id returned by upload (required)")
	askCmd.Flags().BoolVarP(&waitSummary, "wait", "w", false, "Wait for a pending block summary after the reply")
	_ = askCmd.MarkFlagRequired("session")
}

// commandContext cancels on Ctrl+C.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return controller.ErrNotPDF
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, controller.MsgUploading)
	logger.Info("uploading", zap.String("file", path))

	resp, err := a.client.UploadFile(ctx, path)
	if err != nil {
		return describeError("upload", err)
	}

	printReply(out, resp)
	color.New(color.FgGreen).Fprintf(out, "%s\n", controller.ToastUploadOK)
	fmt.Fprintf(out, "session: %s\n", resp.SessionID)
	if resp.TotalPages > 0 || resp.TotalBlocks > 0 {
		fmt.Fprintf(out, "pages: %d  blocks: %d\n", resp.TotalPages, resp.TotalBlocks)
	}

	if !waitSummary || resp.SessionID == "" {
		return nil
	}
	fmt.Fprintln(out, controller.MsgGeneratingFirst)
	return waitForSummary(ctx, out, a.client, a.cfg, resp.SessionID)
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return controller.ErrEmptyQuery
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	logger.Debug("query", zap.String("session", askSessionID), zap.String("query", query))
	resp, err := a.client.Query(ctx, query, askSessionID)
	if err != nil {
		return describeError("query", err)
	}

	out := cmd.OutOrStdout()
	printReply(out, resp)
	if resp.Complete {
		color.New(color.FgGreen).Fprintln(out, controller.MsgDocumentComplete)
		return nil
	}

	// A processingBlock without a summary means one is being generated.
	if waitSummary && !resp.IsBlockSummary && resp.HasProcessingBlock {
		return waitForSummary(ctx, out, a.client, a.cfg, askSessionID)
	}
	return nil
}

// summaryFetcher is the subset of the client used while waiting.
type summaryFetcher interface {
	PollSummary(ctx context.Context, sessionID string) (*api.QueryResponse, error)
}

// waitForSummary blocks until the pending block summary arrives or the
// poll cycle gives up.
func waitForSummary(ctx context.Context, out io.Writer, client summaryFetcher, cfg *config.Config, sessionID string) error {
	policy := cfg.PollPolicy()
	var delivered *api.QueryResponse

	runner := &poll.Runner{
		Machine: poll.NewMachine(policy),
		Fetch: func(ctx context.Context, t poll.Task) poll.Outcome {
			resp, err := client.PollSummary(ctx, t.SessionID)
			switch {
			case err != nil:
				logger.Debug("poll failed", zap.Int("attempt", t.Attempt), zap.Error(err))
				return poll.OutcomeFailed
			case !resp.Success:
				return poll.OutcomeFailed
			case resp.IsBlockSummary:
				delivered = resp
				return poll.OutcomeReady
			default:
				return poll.OutcomeNotReady
			}
		},
		OnDecision: func(d poll.Decision) {
			if d.Action == poll.ActionRetry && d.Notice {
				color.New(color.FgYellow).Fprintln(out, controller.ProgressNotice(d.Attempt, policy.MaxAttempts))
			}
		},
	}

	state, err := runner.Run(ctx, sessionID)
	if err != nil {
		return err
	}
	switch state {
	case poll.StateDelivered:
		if delivered.HasBlock && delivered.TotalBlocks > 0 {
			fmt.Fprintf(out, "[bloque %d/%d]\n", delivered.Block, delivered.TotalBlocks)
		}
		fmt.Fprintln(out, delivered.Message)
		fmt.Fprintln(out, controller.MsgNextBlockHint)
		return nil
	case poll.StateExhausted:
		color.New(color.FgRed).Fprintln(out, controller.MsgPollExhausted)
		return errors.New("summary not ready")
	}
	return fmt.Errorf("poll ended in state %s", state)
}

func printReply(out io.Writer, resp *api.QueryResponse) {
	for _, text := range resp.Texts() {
		fmt.Fprintln(out, text)
	}
}

// describeError prefers the backend's own message over transport details.
func describeError(op string, err error) error {
	if msg, ok := api.BackendMessage(err); ok && msg != "" {
		return fmt.Errorf("%s: %s%s", op, controller.MsgErrorPrefix, msg)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
