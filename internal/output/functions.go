package output

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// PrintRule draws a horizontal rule, optionally with a centered title.
func PrintRule(title string) {
	width := getTerminalWidth()
	if width > 88 {
		width = 88
	}
	if title == "" {
		fmt.Println(FDebug(strings.Repeat(StyleSymbols["hline"], width)))
		return
	}
	label := " " + title + " "
	side := (width - len([]rune(label))) / 2
	if side < 2 {
		side = 2
	}
	line := strings.Repeat(StyleSymbols["hline"], side) + label + strings.Repeat(StyleSymbols["hline"], side)
	fmt.Println(FHeader(line))
}

// ProgressBar renders a fixed-width bar for current/total bytes.
func ProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	if current < 0 {
		current = 0
	}
	if current > total {
		current = total
	}
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%%", bar, percent*100))
}

func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80 // Default fallback width
	}
	return width
}
