package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"

	"unichat/internal/history"
	"unichat/internal/types"
)

// History writes the bucketed conversation list. The active conversation
// is highlighted.
func History(w io.Writer, idx history.Index, active types.ConversationID, width int) error {
	if width <= 0 {
		width = defaultWidth
	}
	if idx.Len() == 0 {
		_, err := fmt.Fprintln(w, metaStyle.Render("No conversations yet."))
		return err
	}
	idWidth := 0
	for _, bucket := range idx.Buckets {
		for _, conv := range bucket.Conversations {
			idWidth = max(idWidth, len(strconv.FormatInt(int64(conv.ID), 10)))
		}
	}
	for i, bucket := range idx.Buckets {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, Header(bucket.Label)); err != nil {
			return err
		}
		for _, conv := range bucket.Conversations {
			if _, err := fmt.Fprintln(w, historyRow(conv, conv.ID == active, idWidth, width)); err != nil {
				return err
			}
		}
	}
	return nil
}

func historyRow(conv types.Conversation, active bool, idWidth, width int) string {
	id := runewidth.FillLeft(strconv.FormatInt(int64(conv.ID), 10), idWidth)
	agent := conv.AgentType.DisplayName()
	// "  <id>  <title>  <agent>"
	room := width - idWidth - runewidth.StringWidth(agent) - 6
	title := Truncate(conv.Title, max(room, 1))
	style := titleStyle
	if active {
		style = activeStyle
	}
	return "  " + metaStyle.Render(id) + "  " + style.Render(title) + "  " + metaStyle.Render(agent)
}
