package format

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedRe = regexp.MustCompile("(?s)```([a-zA-Z0-9]*)\n?(.*?)```")
	inlineRe = regexp.MustCompile("`([^`]+)`")
	boldRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe = regexp.MustCompile(`\*([^*]+)\*`)
	linkRe   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	headerRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.*)$`)
	bulletRe = regexp.MustCompile(`(?m)^\s*[-*+]\s+(.*)$`)
)

// TelegramHTML renders model output, which tends to be Markdown, as the
// subset of HTML that Telegram's HTML parse mode accepts.
func TelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	// Code spans must not be touched by the markdown passes, so lift
	// them out first and splice them back at the end.
	saved := make(map[string]string)
	text = fencedRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := fencedRe.FindStringSubmatch(m)
		key := fmt.Sprintf("\x00F%d\x00", len(saved))
		if parts[1] != "" {
			saved[key] = fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`, parts[1], EscapeHTML(parts[2]))
		} else {
			saved[key] = "<pre><code>" + EscapeHTML(parts[2]) + "</code></pre>"
		}
		return key
	})
	text = inlineRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := inlineRe.FindStringSubmatch(m)
		key := fmt.Sprintf("\x00I%d\x00", len(saved))
		saved[key] = "<code>" + EscapeHTML(parts[1]) + "</code>"
		return key
	})

	text = EscapeHTML(text)
	text = headerRe.ReplaceAllString(text, "<b>$1</b>")
	text = boldRe.ReplaceAllString(text, "<b>$1</b>")
	text = italicRe.ReplaceAllString(text, "<i>$1</i>")
	text = linkRe.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = bulletRe.ReplaceAllString(text, "• $1")
	text = blockquotes(text)

	for key, val := range saved {
		text = strings.ReplaceAll(text, key, val)
	}
	return text
}

// EscapeHTML escapes the characters Telegram's HTML mode treats as markup.
func EscapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

func blockquotes(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	var quote []string
	flush := func() {
		if len(quote) > 0 {
			out = append(out, "<blockquote>"+strings.Join(quote, "\n")+"</blockquote>")
			quote = nil
		}
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "&gt; ") {
			quote = append(quote, strings.TrimPrefix(line, "&gt; "))
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return strings.Join(out, "\n")
}
