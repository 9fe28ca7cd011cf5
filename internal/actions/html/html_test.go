package html

import (
	"context"
	"encoding/json"
	"testing"
)

const page = `<html><body>
<h1>Status</h1>
<ul class="svc"><li>api</li><li>web</li></ul>
<a href="/docs">Docs</a>
<a href="https://other.org/x"> Other </a>
</body></html>`

func TestLinks(t *testing.T) {
	out, err := HandleHtmlAction(context.Background(), "links", map[string]any{"html": page, "base_url": "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	var links []link
	if err := json.Unmarshal([]byte(out["links_json"].(string)), &links); err != nil {
		t.Fatal(err)
	}
	want := []link{{Text: "Docs", URL: "https://example.com/docs"}, {Text: "Other", URL: "https://other.org/x"}}
	if len(links) != len(want) {
		t.Fatalf("links = %+v", links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("link %d = %+v, want %+v", i, links[i], want[i])
		}
	}
}

func TestSelectAllAndInnerText(t *testing.T) {
	ctx := context.Background()
	out, err := HandleHtmlAction(ctx, "select_all", map[string]any{"html": page, "selector": "ul.svc li"})
	if err != nil {
		t.Fatal(err)
	}
	var items []string
	if err := json.Unmarshal([]byte(out["items_json"].(string)), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0] != "<li>api</li>" || items[1] != "<li>web</li>" {
		t.Errorf("items = %q", items)
	}

	out, err = HandleHtmlAction(ctx, "inner_text", map[string]any{"html": page, "selector": "h1"})
	if err != nil {
		t.Fatal(err)
	}
	if out["text"] != "Status" {
		t.Errorf("text = %q, want Status", out["text"])
	}
}
