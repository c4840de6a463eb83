package service

import (
	"html"
	"strings"
	"time"

	"leadrelay/internal/models"
)

// ru-RU locale rendering, e.g. "18.10.2026, 14:05:09"
const messageTimeLayout = "02.01.2006, 15:04:05"

var primaryFieldLabels = []struct {
	name  string
	label string
}{
	{"name", "👤 Имя"},
	{"phone", "📞 Телефон"},
	{"email", "📧 Email"},
	{"message", "💬 Сообщение"},
}

// keys never repeated in the trailing field list
var excludedTrailingKeys = map[string]bool{
	"name":                     true,
	"phone":                    true,
	"email":                    true,
	"message":                  true,
	models.ContextKeyPageURL:   true,
	models.ContextKeyUserAgent: true,
	models.ContextKeyTimestamp: true,
}

// MessageFormatter renders a record as the HTML chat message sent through
// the secondary channel.
type MessageFormatter struct {
	loc *time.Location
}

func NewMessageFormatter(loc *time.Location) *MessageFormatter {
	if loc == nil {
		loc = time.UTC
	}
	return &MessageFormatter{loc: loc}
}

func (f *MessageFormatter) Format(record models.SubmissionRecord, now time.Time) string {
	data := record.WireData()

	formType := record.FormType
	if formType == "" {
		formType = "не указан"
	}
	page := record.Context.PageURL
	if page == "" {
		page = "не указана"
	}

	var b strings.Builder
	b.WriteString("📨 Новая заявка с сайта\n")
	b.WriteString("Тип: " + html.EscapeString(formType) + "\n")
	b.WriteString("Время: " + now.In(f.loc).Format(messageTimeLayout) + "\n")
	b.WriteString("Страница: " + html.EscapeString(page) + "\n\n")

	for _, pf := range primaryFieldLabels {
		if v, ok := data.Get(pf.name); ok && v != "" {
			b.WriteString(pf.label + ": " + html.EscapeString(v) + "\n")
		}
	}

	for _, field := range data.Fields() {
		if excludedTrailingKeys[field.Name] || field.Value == "" {
			continue
		}
		b.WriteString(html.EscapeString(field.Name) + ": " + html.EscapeString(field.Value) + "\n")
	}

	return b.String()
}
