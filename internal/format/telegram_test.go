package format

import (
	"strings"
	"testing"
)

func TestTelegramHTMLBasic(t *testing.T) {
	out := TelegramHTML("**bold** and *italic* and `x < y`")
	if !strings.Contains(out, "<b>bold</b>") {
		t.Errorf("missing bold: %q", out)
	}
	if !strings.Contains(out, "<i>italic</i>") {
		t.Errorf("missing italic: %q", out)
	}
	if !strings.Contains(out, "<code>x &lt; y</code>") {
		t.Errorf("code span not escaped: %q", out)
	}
}

func TestTelegramHTMLCodeBlockPreserved(t *testing.T) {
	out := TelegramHTML("```go\na := **not bold**\n```")
	if !strings.Contains(out, `<pre><code class="language-go">`) {
		t.Errorf("missing code block: %q", out)
	}
	if strings.Contains(out, "<b>") {
		t.Errorf("markdown applied inside code block: %q", out)
	}
}

func TestTelegramHTMLHeadersAndLists(t *testing.T) {
	out := TelegramHTML("# Title\n- one\n- two")
	if !strings.Contains(out, "<b>Title</b>") {
		t.Errorf("missing header: %q", out)
	}
	if strings.Count(out, "• ") != 2 {
		t.Errorf("bullets not converted: %q", out)
	}
}

func TestTelegramHTMLLinkAndQuote(t *testing.T) {
	out := TelegramHTML("[docs](https://example.com)\n> quoted")
	if !strings.Contains(out, `<a href="https://example.com">docs</a>`) {
		t.Errorf("missing link: %q", out)
	}
	if !strings.Contains(out, "<blockquote>quoted</blockquote>") {
		t.Errorf("missing blockquote: %q", out)
	}
}

func TestTelegramHTMLEmpty(t *testing.T) {
	if TelegramHTML("") != "" {
		t.Error("expected empty output")
	}
}
