package chat

import (
	"fmt"
	"strings"

	"briefly/cmd/briefly/ui"
	"briefly/internal/controller"

	tea "github.com/charmbracelet/bubbletea"
)

// slashCommand documents one /command for the help screen.
type slashCommand struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
}

var slashCommands = []slashCommand{
	{Name: "/upload", Aliases: []string{"/cargar"}, Usage: "/upload [ruta.pdf]", Description: "Carga un PDF (sin ruta abre el selector)"},
	{Name: "/clear", Aliases: []string{"/limpiar"}, Usage: "/clear", Description: "Limpia la conversación"},
	{Name: "/export", Aliases: []string{"/descargar"}, Usage: "/export", Description: "Descarga la conversación como texto"},
	{Name: "/theme", Aliases: []string{"/tema"}, Usage: "/theme", Description: "Alterna entre tema claro y oscuro"},
	{Name: "/session", Aliases: []string{"/sesion"}, Usage: "/session", Description: "Actualiza la información del documento"},
	{Name: "/delete", Aliases: []string{"/eliminar"}, Usage: "/delete", Description: "Elimina la sesión en el servidor"},
	{Name: "/help", Aliases: []string{"/ayuda"}, Usage: "/help", Description: "Muestra esta ayuda"},
	{Name: "/quit", Aliases: []string{"/exit", "/salir"}, Usage: "/quit", Description: "Sale de briefly"},
}

// lookupCommand resolves a name or alias to its canonical name.
func lookupCommand(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, c := range slashCommands {
		if c.Name == name {
			return c.Name, true
		}
		for _, a := range c.Aliases {
			if a == name {
				return c.Name, true
			}
		}
	}
	return "", false
}

// handleCommand runs a /command typed into the input box.
func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return m, nil
	}
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	name, ok := lookupCommand(fields[0])
	if !ok {
		return m, m.notify(controller.LevelWarning, fmt.Sprintf("Comando desconocido: %s (usa /help)", fields[0]))
	}

	switch name {
	case "/upload":
		if arg == "" {
			return m, m.openFilePicker()
		}
		return m, m.startUpload(arg)

	case "/clear":
		m.viewMode = ConfirmClearView
		return m, nil

	case "/export":
		return m, m.startExport()

	case "/theme":
		return m, m.toggleTheme()

	case "/session":
		if !m.ctrl.HasSession() {
			return m, m.notify(controller.LevelWarning, controller.ToastNoSession)
		}
		return m, tea.Batch(m.sessionInfoCmd(m.ctrl.Session().ID), m.notify(controller.LevelInfo, sessionSummary(m.ctrl.Session())))

	case "/delete":
		return m, m.startDelete()

	case "/help":
		m.viewMode = HelpView
		return m, nil

	case "/quit":
		m.Shutdown()
		return m, tea.Quit
	}
	return m, nil
}

func sessionSummary(s controller.Session) string {
	name := s.DocumentName
	if name == "" {
		name = controller.MsgNoDocumentName
	}
	return fmt.Sprintf("%s · %d páginas · bloque %d/%d", name, s.TotalPages, s.CurrentBlock, s.TotalBlocks)
}

// setTheme swaps styles and the markdown renderer.
func (m *Model) setTheme(dark bool) {
	m.styles = ui.NewStyles(ui.ThemeFor(dark))
	m.spinner.Style = m.styles.Spinner
	m.renderer = newRenderer(dark, m.width-6)
	m.renderCache = make(map[int]string)
	m.refreshViewport()
}
