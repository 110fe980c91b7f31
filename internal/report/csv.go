package report

import (
	"strings"

	"github.com/endharassment/cybertip-reporter/internal/model"
)

var threadCSVHeaders = []string{"content", "src", "target", "thread", "type", "contentId", "chat_type", "ip"}

// ThreadFileName is the upload name of a thread's transcript.
func ThreadFileName(thread model.Thread) string {
	return thread.ThreadID + ".csv"
}

// ThreadCSV renders a thread transcript. Every present field is wrapped in
// double quotes with embedded quotes doubled; absent fields are left empty.
// The content id is only written for non-text messages. Rows are separated
// by a bare newline. Every message is written, in the order given.
func ThreadCSV(thread model.Thread) string {
	var b strings.Builder
	b.WriteString(strings.Join(threadCSVHeaders, ","))
	for _, m := range thread.Messages {
		contentID := quote(m.ContentID)
		if m.Type == "text" {
			contentID = ""
		}
		row := []string{
			quoteOptional(m.Content),
			quote(m.CreatorID),
			quote(m.TargetID),
			quote(thread.ThreadID),
			quote(m.Type),
			contentID,
			quote(m.ChatType),
			quote(m.IPAddress.IP),
		}
		b.WriteByte('\n')
		b.WriteString(strings.Join(row, ","))
	}
	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteOptional(s *string) string {
	if s == nil {
		return ""
	}
	return quote(*s)
}
