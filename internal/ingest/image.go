package ingest

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"fluxnews/internal/feed"
)

// bareImageURL matches a direct link to an image file inside an HTML blob.
var bareImageURL = regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(?:jpg|jpeg|png|gif|webp)`)

// ExtractImage finds the best representative image URL for an item,
// trying sources in strict priority order: enclosure, media:content,
// media:thumbnail, an <img> inside the encoded content, an <img> inside
// the plain description, and finally any bare image-file URL in the
// encoded content. Returns "" when nothing matches; it never fails on
// malformed or missing fields.
func ExtractImage(it feed.Item) string {
	if it.EnclosureURL != "" {
		return it.EnclosureURL
	}

	for _, u := range it.MediaContentURLs {
		if u != "" {
			return u
		}
	}
	for _, u := range it.MediaThumbnailURLs {
		if u != "" {
			return u
		}
	}

	if src := firstImgSrc(it.Content); src != "" {
		return src
	}
	if src := firstImgSrc(it.Description); src != "" {
		return src
	}

	return bareImageURL.FindString(it.Content)
}

// firstImgSrc returns the src of the first <img> tag in an HTML blob.
func firstImgSrc(html string) string {
	if html == "" || !strings.Contains(strings.ToLower(html), "<img") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	src, _ := doc.Find("img[src]").First().Attr("src")
	return src
}
