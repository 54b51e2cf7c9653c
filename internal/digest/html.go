package digest

import (
	"html/template"
	"strings"
	"time"

	"github.com/emirlan/dailydigest/internal/message"
)

type htmlView struct {
	Title           string
	Date            string
	Total           int
	NoNotifications string
	Sections        []htmlSection
}

type htmlSection struct {
	Class    string
	Label    string
	Count    string
	Messages []htmlMessage
}

type htmlMessage struct {
	Sender       string
	SenderDetail string
	Content      string
	Time         string
}

func newHTMLView(now time.Time, total int, sections []Section) htmlView {
	v := htmlView{
		Title:           Title,
		Date:            FormatDate(now),
		Total:           total,
		NoNotifications: NoNotifications,
	}
	for _, sec := range sections {
		hs := htmlSection{
			Class: sourceClass(sec.Source),
			Label: DisplayName(sec.Source),
			Count: countLabel(len(sec.Messages)),
		}
		for _, m := range sec.Messages {
			hs.Messages = append(hs.Messages, htmlMessage{
				Sender:       m.Sender,
				SenderDetail: m.SenderDetail,
				Content:      m.Content,
				Time:         FormatTimestamp(m.Timestamp),
			})
		}
		v.Sections = append(v.Sections, hs)
	}
	return v
}

// sourceClass derives a CSS class from a source tag, keeping only [a-z0-9-].
func sourceClass(src message.Source) string {
	class := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return -1
		}
	}, string(src))
	if class == "" {
		return "other"
	}
	return class
}

var htmlTemplate = template.Must(template.New("digest").Parse(htmlDocument))

const htmlDocument = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 800px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container { background-color: #fff; border-radius: 8px; padding: 30px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #2c3e50; border-bottom: 3px solid #3498db; padding-bottom: 10px; }
        .summary { background-color: #ecf0f1; padding: 15px; border-radius: 5px; margin: 20px 0; }
        .source-section { margin: 30px 0; }
        .source-header { background-color: #3498db; color: #fff; padding: 10px 15px; border-radius: 5px; font-size: 1.2em; font-weight: bold; }
        .source-header.slack { background-color: #4A154B; }
        .source-header.gmail { background-color: #EA4335; }
        .source-header.whatsapp { background-color: #25D366; }
        .source-header.telegram { background-color: #229ED9; }
        .message { border-left: 4px solid #3498db; padding: 15px; margin: 15px 0; background-color: #f8f9fa; border-radius: 0 5px 5px 0; }
        .message-sender { font-weight: bold; color: #2c3e50; font-size: 1.1em; }
        .message-detail { color: #7f8c8d; font-size: 0.9em; }
        .message-content { margin-top: 10px; color: #34495e; white-space: pre-wrap; }
        .message-time { color: #95a5a6; font-size: 0.85em; margin-top: 5px; }
        .no-messages { text-align: center; color: #7f8c8d; padding: 40px; font-size: 1.1em; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}} - {{.Date}}</h1>
        <div class="summary">Total Notifications: <strong>{{.Total}}</strong></div>
{{- if eq .Total 0}}
        <div class="no-messages">{{.NoNotifications}}</div>
{{- else}}
{{- range .Sections}}
        <div class="source-section">
            <div class="source-header {{.Class}}">{{.Label}} ({{.Count}})</div>
{{- range .Messages}}
            <div class="message">
                <div class="message-sender">{{.Sender}}</div>
                <div class="message-detail">{{.SenderDetail}}</div>
                <div class="message-content">{{.Content}}</div>
                <div class="message-time">{{.Time}}</div>
            </div>
{{- end}}
        </div>
{{- end}}
{{- end}}
    </div>
</body>
</html>
`
