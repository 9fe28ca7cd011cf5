// Package html extracts links, text and fragments from HTML documents
// passed in as parameters.
package html

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	htmldom "golang.org/x/net/html"

	"myhelper/internal/utils"
)

type link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

func parseDoc(params map[string]any) (*goquery.Document, error) {
	raw, err := utils.GetString(params, "html")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func outerHTML(sel *goquery.Selection) string {
	var buf bytes.Buffer
	for _, n := range sel.Nodes {
		_ = htmldom.Render(&buf, n)
	}
	return buf.String()
}

func collectLinks(doc *goquery.Document, base string) []link {
	out := []link{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = append(out, link{Text: strings.TrimSpace(s.Text()), URL: utils.ResolveURL(base, href)})
	})
	return out
}

func handleLinks(params map[string]any) (map[string]any, error) {
	doc, err := parseDoc(params)
	if err != nil {
		return nil, err
	}
	links := collectLinks(doc, utils.GetOptionalString(params, "base_url", ""))
	b, _ := json.Marshal(links)
	return map[string]any{"links_json": string(b), "count": len(links)}, nil
}

func handleSelectAll(params map[string]any) (map[string]any, error) {
	selector, err := utils.GetString(params, "selector")
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(params)
	if err != nil {
		return nil, err
	}
	items := []string{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		items = append(items, outerHTML(s))
	})
	b, _ := json.Marshal(items)
	return map[string]any{"items_json": string(b), "count": len(items)}, nil
}

func handleInnerText(params map[string]any) (map[string]any, error) {
	doc, err := parseDoc(params)
	if err != nil {
		return nil, err
	}
	sel := doc.Selection
	if selector := utils.GetOptionalString(params, "selector", ""); selector != "" {
		sel = doc.Find(selector)
	}
	return map[string]any{"text": strings.TrimSpace(sel.Text())}, nil
}

func HandleHtmlAction(_ context.Context, operation string, params map[string]any) (map[string]any, error) {
	switch operation {
	case "links":
		return handleLinks(params)
	case "select_all":
		return handleSelectAll(params)
	case "inner_text":
		return handleInnerText(params)
	default:
		return nil, fmt.Errorf("unknown html operation: %s", operation)
	}
}
