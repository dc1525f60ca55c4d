// Package markdown renders note text for the terminal.
package markdown

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
)

var (
	mu sync.Mutex
	// Renderers are cached per style and wrap width; building one is slow.
	renderers = map[string]*glamour.TermRenderer{}
)

// Render renders md wrapped at width without block margins. On any
// renderer error the trimmed source is returned unchanged.
func Render(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}

	styleName := style()
	key := styleName + ":" + strconv.Itoa(width)

	mu.Lock()
	r := renderers[key]
	mu.Unlock()

	if r == nil {
		rr, err := glamour.NewTermRenderer(
			glamour.WithStyles(compact(styleName)),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		mu.Lock()
		if existing := renderers[key]; existing != nil {
			r = existing
		} else {
			renderers[key] = rr
			r = rr
		}
		mu.Unlock()
	}

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func compact(styleName string) ansi.StyleConfig {
	cfg := styles.DarkStyleConfig
	if styleName == "light" {
		cfg = styles.LightStyleConfig
	}
	zero := uint(0)
	cfg.Document.Margin = &zero
	cfg.Paragraph.Margin = &zero
	cfg.List.Margin = &zero
	cfg.BlockQuote.Margin = &zero
	cfg.CodeBlock.Margin = &zero
	return cfg
}

func style() string {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("STUDIO_TUI_THEME")), "light") {
		return "light"
	}
	return "dark"
}
