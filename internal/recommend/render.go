package recommend

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/gamerec/internal/textutil"
)

const descriptionLength = 250

// HeaderImageURL returns the storefront header image for an app.
func HeaderImageURL(appID int64) string {
	return fmt.Sprintf("https://steamcdn-a.akamaihd.net/steam/apps/%d/header.jpg", appID)
}

// ShortDescription truncates a description for display.
func ShortDescription(s string) string {
	return textutil.Truncate(s, descriptionLength)
}

// RenderMarkdown formats recommendations as markdown cards.
func RenderMarkdown(recs []Recommendation) string {
	var b strings.Builder
	for i, r := range recs {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		g := r.Game
		fmt.Fprintf(&b, "![%s](%s)\n\n", escape(g.Name), HeaderImageURL(g.AppID))
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, escape(g.Name))
		fmt.Fprintf(&b, "%s\n\n", escape(ShortDescription(g.Description)))
		fmt.Fprintf(&b, "**Price:** %s  \n", escape(g.Price))
		fmt.Fprintf(&b, "**Release Date:** %s\n", escape(g.ReleaseDate))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"<", "&lt;", ">", "&gt;", "`", "\\`", "#", `\#`,
)

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
