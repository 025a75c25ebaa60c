package main

import (
	"fmt"
	"time"

	"briefly/internal/controller"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sesion"},
	Short:   "Inspect or delete backend sessions",
}

var sessionInfoCmd = &cobra.Command{
	Use:   "info SESSION_ID",
	Short: "Show the document loaded in a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionInfo,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete SESSION_ID",
	Short: "Delete a session and its document on the backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	sessionCmd.AddCommand(sessionInfoCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
}

func runSessionInfo(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	info, err := a.client.SessionInfo(ctx, args[0])
	if err != nil {
		return describeError("session info", err)
	}

	name := info.DocumentName
	if name == "" {
		name = controller.MsgNoDocumentName
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session:  %s\n", info.SessionID)
	fmt.Fprintf(out, "document: %s\n", name)
	fmt.Fprintf(out, "pages:    %d\n", info.TotalPages)
	fmt.Fprintf(out, "blocks:   %d/%d\n", info.CurrentBlock, info.TotalBlocks)
	if !info.CreatedAt.IsZero() {
		fmt.Fprintf(out, "created:  %s\n", info.CreatedAt.Local().Format(time.DateTime))
	}
	return nil
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	msg, err := a.client.DeleteSession(ctx, args[0])
	if err != nil {
		return describeError("delete session", err)
	}
	logger.Info("session deleted", zap.String("session", args[0]))
	if msg == "" {
		msg = controller.ToastSessionDeleted
	}
	color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	start := time.Now()
	h, err := a.client.Health(ctx)
	if err != nil {
		color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "%s: %s\n", controller.ToastConnection, a.client.BaseURL())
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %v)\n", a.client.BaseURL(), h.Status, h.Timestamp, time.Since(start).Round(time.Millisecond))
	return nil
}
