package main

import (
	"fmt"

	"briefly/cmd/briefly/chat"
	"briefly/internal/controller"
	"briefly/internal/export"
	"briefly/internal/logging"
	"briefly/internal/ux"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

// newExporter wires the export strategy and, when enabled, the archive.
func (a *app) newExporter() *export.Exporter {
	opts := export.Options{Mode: a.cfg.Export.Mode, Dir: a.cfg.Export.Dir}
	st, err := a.openStore()
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("transcript archive unavailable: %v", err)
	}
	if st != nil {
		opts.Archive = st
	}
	return export.New(a.client, opts)
}

func runInteractiveChat(cmd *cobra.Command, args []string) (err error) {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	prefs := ux.NewPreferencesManager(a.dir)
	if err := prefs.Load(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("preferences: %v", err)
	}

	m := chat.New(chat.Config{
		Backend:  a.client,
		Exporter: a.newExporter(),
		Prefs:    prefs,
		Controller: controller.Options{
			Policy: a.cfg.PollPolicy(),
			Pace:   a.cfg.TypingPace(),
		},
		ServerURL: a.client.BaseURL(),
	})

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	final, runErr := p.Run()
	if fm, ok := final.(chat.Model); ok {
		fm.Shutdown()
	} else {
		m.Shutdown()
	}
	if runErr != nil {
		return fmt.Errorf("interactive session: %w", runErr)
	}
	return nil
}
