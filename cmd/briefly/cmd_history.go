package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"briefly/internal/store"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"historial"},
	Short:   "Browse conversations archived on export",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived conversations, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print an archived conversation (id or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of conversations")
	historyShowCmd.Flags().StringVarP(&historyOutput, "output", "o", "", "Write the transcript to a file instead of stdout")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

var errArchiveDisabled = errors.New("transcript archive is disabled (store.enabled: false)")

func (a *app) requireStore() (*store.Store, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errArchiveDisabled
	}
	return st, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.requireStore()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	items, err := st.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No archived conversations.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tDOCUMENT\tMESSAGES\tFILE")
	for _, t := range items {
		doc := t.DocumentName
		if doc == "" {
			doc = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", shortID(t.ID), t.CreatedAt.Local().Format(time.DateTime), doc, t.EntryCount, t.FileName)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.requireStore()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	t, err := st.Get(ctx, args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no archived conversation matches %q", args[0])
		}
		return err
	}

	if historyOutput == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), t.Content)
		return err
	}
	if err := os.WriteFile(historyOutput, []byte(t.Content), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", historyOutput)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
