// Package render turns conversation state into terminal output.
package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	glamouransi "github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	xansi "github.com/charmbracelet/x/ansi"

	"unichat/internal/types"
)

const defaultWidth = 80

type rendererKey struct {
	width int
	dark  bool
}

// Renderer formats bot replies as markdown. Glamour renderers are cached
// per width and theme.
type Renderer struct {
	theme types.Theme

	mu        sync.Mutex
	renderers map[rendererKey]*glamour.TermRenderer
}

func NewRenderer(theme types.Theme) *Renderer {
	return &Renderer{theme: theme, renderers: map[rendererKey]*glamour.TermRenderer{}}
}

func (r *Renderer) dark() bool {
	return r.theme != types.ThemeLight
}

// Markdown renders input wrapped to width. Rendering failures return the
// input unchanged.
func (r *Renderer) Markdown(input string, width int) string {
	input = strings.TrimRight(input, "\n")
	if input == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	tr := r.termRenderer(width)
	if tr == nil {
		return input
	}
	out, err := tr.Render(input)
	if err != nil {
		return input
	}
	out = strings.TrimRight(out, "\n")
	out = xansi.Hardwrap(out, width, true)
	return strings.TrimRight(out, "\n")
}

func (r *Renderer) termRenderer(width int) *glamour.TermRenderer {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rendererKey{width: width, dark: r.dark()}
	if tr, ok := r.renderers[key]; ok && tr != nil {
		return tr
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStyles(styleConfig(key.dark)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	r.renderers[key] = tr
	return tr
}

func styleConfig(dark bool) glamouransi.StyleConfig {
	var base glamouransi.StyleConfig
	if dark {
		base = styles.DarkStyleConfig
	} else {
		base = styles.LightStyleConfig
	}
	base.Document.StylePrimitive.BlockPrefix = ""
	base.Document.StylePrimitive.BlockSuffix = ""
	zero := uint(0)
	base.Document.Margin = &zero
	return base
}

// Message renders one chat entry with its role label. Only bot replies go
// through markdown.
func (r *Renderer) Message(msg types.Message, width int) string {
	label := RoleLabel(msg.Role)
	var body string
	if msg.Role == types.RoleBot {
		body = r.Markdown(msg.Content, width)
	} else {
		body = xansi.Hardwrap(strings.TrimRight(msg.Content, "\n"), max(width, 1), true)
	}
	out := label + "\n" + body
	if msg.Incomplete {
		out += "\n" + IncompleteMark()
	}
	return out
}

// Transcript renders every message of a chat separated by blank lines.
func (r *Renderer) Transcript(messages []types.Message, width int) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, r.Message(msg, width))
	}
	return strings.Join(parts, "\n\n")
}
