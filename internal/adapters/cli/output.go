package cli

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	borderColor = lipgloss.Color("#45475A")
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderTable writes a bordered table. Colours are only applied on a terminal.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	styled := isTerminal(w)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow && styled {
				return headerStyle
			}
			return cellStyle
		})
	if styled {
		t = t.BorderStyle(lipgloss.NewStyle().Foreground(borderColor))
	}
	_, _ = io.WriteString(w, t.String()+"\n")
}

func note(w io.Writer, msg string) {
	if isTerminal(w) {
		msg = mutedStyle.Render(msg)
	}
	_, _ = io.WriteString(w, msg+"\n")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func grams(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
