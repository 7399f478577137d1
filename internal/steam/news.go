package steam

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/gamerec/internal/textutil"
)

const newsSummaryLength = 280

// NewsItem is one post from an app's storefront news feed.
type NewsItem struct {
	Title         string
	URL           string
	PublishedDate string // YYYY-MM-DD or empty
	Summary       string
}

// FetchNews returns up to limit of the latest news posts for appID.
func (c *Client) FetchNews(ctx context.Context, appID int64, limit int) ([]NewsItem, error) {
	parser := gofeed.NewParser()
	parser.Client = c.client
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(fmt.Sprintf("%s/%d/", c.newsURL, appID), ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing news feed for %d: %w", appID, err)
	}

	var items []NewsItem
	for _, item := range feed.Items {
		if len(items) >= limit {
			break
		}
		if n := parseNewsItem(item); n != nil {
			items = append(items, *n)
		}
	}
	return items, nil
}

func parseNewsItem(item *gofeed.Item) *NewsItem {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return nil
	}

	var published string
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.Format("2006-01-02")
	}

	body := item.Description
	if body == "" {
		body = item.Content
	}

	return &NewsItem{
		Title:         title,
		URL:           link,
		PublishedDate: published,
		Summary:       textutil.Truncate(textutil.StripHTML(body), newsSummaryLength),
	}
}
