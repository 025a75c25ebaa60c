package chat

import (
	"fmt"
	"strings"

	"briefly/internal/controller"
	"briefly/internal/logging"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// VIEW RENDERING
// =============================================================================

func (m Model) View() string {
	if !m.ready {
		return "Inicializando..."
	}

	switch m.viewMode {
	case FilePickerView:
		title := m.styles.Header.Render(" Selecciona un PDF ")
		content := m.styles.Content.Render(m.filepicker.View())
		hint := m.styles.Footer.Render("Enter seleccionar · Esc cancelar")
		return lipgloss.JoinVertical(lipgloss.Left, title, content, hint)
	case HelpView:
		return m.renderHelp()
	}

	input := m.textarea.View()
	if m.viewMode == ConfirmClearView {
		input = m.styles.Dialog.Render("¿Seguro que quieres limpiar la conversación? (s/n)")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderButtons(),
		input,
		m.renderFooter(),
	)
}

// refreshViewport re-renders the feed, following the bottom when the user
// has not scrolled up.
func (m *Model) refreshViewport() {
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderFeed())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderFeed() string {
	var sb strings.Builder
	width := max(m.viewport.Width-4, 10)

	for _, item := range m.ctrl.Feed() {
		switch item.Kind {
		case controller.ItemUser:
			sb.WriteString(m.styles.UserLabel.Render("Tú") + "\n")
			sb.WriteString(m.styles.UserMessage.Width(width).Render(item.Text()))
			sb.WriteString("\n\n")

		case controller.ItemSystem:
			sb.WriteString(m.styles.SystemMessage.Width(width).Render("• " + item.Text()))
			sb.WriteString("\n\n")

		default:
			sb.WriteString(m.styles.BotLabel.Render("Briefly") + "\n")
			if item.Typing() {
				// Partial markdown renders badly; show plain text until done.
				sb.WriteString(m.styles.BotMessage.Width(width).Render(item.Text() + m.styles.Cursor.Render("▌")))
				sb.WriteString("\n\n")
				continue
			}
			sb.WriteString(m.renderBot(item))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (m Model) renderBot(item controller.Item) string {
	if cached, ok := m.renderCache[item.ID]; ok {
		return cached
	}
	out := m.safeRenderMarkdown(item.Text())
	if m.renderCache != nil {
		m.renderCache[item.ID] = out
	}
	return out
}

// safeRenderMarkdown renders markdown with panic recovery
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content + "\n"
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content + "\n"
}

func (m Model) renderHeader() string {
	title := " Briefly "
	s := m.ctrl.Session()
	if s.ID != "" {
		name := s.DocumentName
		if name == "" {
			name = "documento cargado"
		}
		title += "· " + name + " "
	}
	header := m.styles.Header.Render(title)

	if pct, ok := m.ctrl.Progress(); ok {
		label := m.styles.Muted.Render(fmt.Sprintf(" Bloque %d/%d ", s.CurrentBlock, s.TotalBlocks))
		header = lipgloss.JoinHorizontal(lipgloss.Center, header, label, m.progress.ViewAs(pct/100))
	}
	return header
}

func (m Model) renderButtons() string {
	var parts []string
	for i, c := range m.ctrl.Commands() {
		if i >= 9 {
			break
		}
		key := m.styles.ButtonKey.Render(fmt.Sprintf("Alt+%d", i+1))
		parts = append(parts, m.styles.Button.Render(key+" "+c))
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	if m.width > 0 {
		row = lipgloss.NewStyle().MaxWidth(m.width).Render(row)
	}
	return row
}

func (m Model) renderFooter() string {
	if m.toast != nil {
		return m.toastStyle(m.toast.level).Render(m.toast.text)
	}

	var status string
	switch {
	case m.ctrl.Uploading():
		status = m.spinner.View() + " Cargando PDF..."
	case m.ctrl.Processing():
		status = m.spinner.View() + " Procesando consulta..."
	case m.exporting:
		status = m.spinner.View() + " Descargando conversación..."
	case m.deleting:
		status = m.spinner.View() + " Eliminando sesión..."
	case m.ctrl.Polling():
		status = m.pollStatus()
	default:
		status = "Ctrl+O cargar · Ctrl+S descargar · Ctrl+L limpiar · Ctrl+T tema · /help · Ctrl+C salir"
	}
	return m.styles.Footer.Render(status)
}

// pollStatus describes the running poll cycle. Debug mode adds the cycle id
// so it can be matched against the poll log.
func (m Model) pollStatus() string {
	status := fmt.Sprintf("Generando resumen del bloque... (intento %d)", m.ctrl.PollAttempt())
	if id := m.ctrl.PollCycleID(); id != "" && logging.IsDebugMode() {
		status += " · ciclo " + shortCycle(id)
	}
	return status
}

func shortCycle(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m Model) toastStyle(level controller.Level) lipgloss.Style {
	switch level {
	case controller.LevelSuccess:
		return m.styles.Success
	case controller.LevelWarning:
		return m.styles.Warning
	case controller.LevelError:
		return m.styles.Error
	default:
		return m.styles.Info
	}
}

func (m Model) renderHelp() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("Ayuda de Briefly") + "\n\n")

	for _, c := range slashCommands {
		usage := m.styles.Bold.Render(fmt.Sprintf("%-22s", c.Usage))
		sb.WriteString(fmt.Sprintf("  %s %s\n", usage, m.styles.Muted.Render(c.Description)))
	}

	sb.WriteString("\n" + m.styles.Title.Render("Atajos") + "\n\n")
	for _, k := range [][2]string{
		{"Enter", "Enviar consulta"},
		{"Alt+1..9", "Enviar comando rápido"},
		{"Ctrl+O", "Cargar PDF"},
		{"Ctrl+S", "Descargar conversación"},
		{"Ctrl+L", "Limpiar conversación"},
		{"Ctrl+T", "Cambiar tema"},
		{"PgUp/PgDn", "Desplazar historial"},
		{"Ctrl+C", "Salir"},
	} {
		sb.WriteString(fmt.Sprintf("  %s %s\n", m.styles.Bold.Render(fmt.Sprintf("%-22s", k[0])), m.styles.Muted.Render(k[1])))
	}

	if logging.IsDebugMode() {
		sb.WriteString("\n" + m.styles.Muted.Render("Registros: "+logging.Dir()) + "\n")
	}

	sb.WriteString("\n" + m.styles.Subtitle.Render("Pulsa cualquier tecla para volver"))
	return m.styles.Content.Render(sb.String())
}
