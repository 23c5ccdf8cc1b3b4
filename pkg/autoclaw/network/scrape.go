package network

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PageData is the basic structure extracted from a scraped page.
type PageData struct {
	Title    string   `json:"title"`
	Headings []string `json:"headings"`
	Links    []Link   `json:"links"`
	Images   []string `json:"images"`
}

// Link is an anchor found on a scraped page.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// ScrapePage fetches a URL and extracts its title, headings, links,
// and image sources.
func (c *Client) ScrapePage(ctx context.Context, rawURL string) (PageData, error) {
	body, err := c.fetch(ctx, rawURL)
	if err != nil {
		return PageData{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return extractPageData(body)
}

func extractPageData(body []byte) (PageData, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return PageData{}, fmt.Errorf("parse page: %w", err)
	}

	var data PageData
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if data.Title == "" {
					data.Title = strings.TrimSpace(textContent(n))
				}
			case "h1", "h2", "h3", "h4", "h5", "h6":
				if text := strings.TrimSpace(textContent(n)); text != "" {
					data.Headings = append(data.Headings, text)
				}
			case "a":
				if href := attr(n, "href"); href != "" {
					data.Links = append(data.Links, Link{
						Text: strings.TrimSpace(textContent(n)),
						URL:  href,
					})
				}
			case "img":
				if src := attr(n, "src"); src != "" {
					data.Images = append(data.Images, src)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return data, nil
}
