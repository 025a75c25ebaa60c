// Package commands holds the query vocabulary understood by the Briefly
// backend and builds the quick-command list shown to the user.
//
// The strings are opaque to the client. They are sent as the query value
// exactly as written.
package commands

import "fmt"

const (
	GetSummary = "obtener resumen"
	NextBlock  = "siguiente bloque"

	// PagesPerBlock is the backend's block size.
	PagesPerBlock = 3
	// MaxButtons caps how many block and page shortcuts are generated.
	MaxButtons = 3
	// DefaultPages is assumed when the page count is unknown.
	DefaultPages = 6
)

// BlockSummary asks for the summary of block n.
func BlockSummary(n int) string { return fmt.Sprintf("bloque %d: resumen", n) }

// BlockContent asks for the raw text of block n.
func BlockContent(n int) string { return fmt.Sprintf("bloque %d: contenido", n) }

// PageContent asks for the raw text of page n.
func PageContent(n int) string { return fmt.Sprintf("pagina %d: contenido", n) }

// Default is the command list before any document is loaded.
func Default() []string {
	return []string{GetSummary, NextBlock, BlockSummary(1), PageContent(1)}
}

// BlocksFor derives the block count: totalBlocks when known, otherwise
// ceil(totalPages/3), otherwise MaxButtons.
func BlocksFor(totalBlocks, totalPages int) int {
	switch {
	case totalBlocks > 0:
		return totalBlocks
	case totalPages > 0:
		return (totalPages + PagesPerBlock - 1) / PagesPerBlock
	default:
		return MaxButtons
	}
}

// Buttons builds the command list for a loaded document.
func Buttons(totalBlocks, totalPages int) []string {
	out := []string{GetSummary, NextBlock}

	blocks := BlocksFor(totalBlocks, totalPages)
	for i := 1; i <= min(MaxButtons, blocks); i++ {
		out = append(out, BlockContent(i))
	}

	pages := totalPages
	if pages <= 0 {
		pages = DefaultPages
	}
	for i := 1; i <= min(MaxButtons, pages); i++ {
		out = append(out, PageContent(i))
	}
	return out
}
