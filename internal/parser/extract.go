package parser

import (
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/extensions"
)

// フィードの方言によってメタデータの置き場所が異なるため、
// 抽出は型付きの抽出関数を優先順に試すチェーンとして実装する。

// authorExtractor は1つの著者情報の置き場所を調べる関数。
type authorExtractor func(item *gofeed.Item) string

// authorExtractors は優先順: 明示的なauthor → Dublin Core creator → iTunes author。
var authorExtractors = []authorExtractor{
	func(item *gofeed.Item) string {
		if item.Author != nil {
			return item.Author.Name
		}
		return ""
	},
	func(item *gofeed.Item) string {
		for _, a := range item.Authors {
			if a != nil && a.Name != "" {
				return a.Name
			}
		}
		return ""
	},
	func(item *gofeed.Item) string {
		if item.DublinCoreExt == nil {
			return ""
		}
		for _, c := range item.DublinCoreExt.Creator {
			if c != "" {
				return c
			}
		}
		return ""
	},
	func(item *gofeed.Item) string {
		if item.ITunesExt != nil {
			return item.ITunesExt.Author
		}
		return ""
	},
}

// extractAuthor はチェーンを順に試し、最初に見つかった著者名を返す。
func extractAuthor(item *gofeed.Item) string {
	for _, ex := range authorExtractors {
		if name := strings.TrimSpace(ex(item)); name != "" {
			return name
		}
	}
	return ""
}

// mediaInfo は1記事から抽出したメディア情報。
type mediaInfo struct {
	Thumbnail   string
	MainImage   string
	Type        string
	Description string
}

// mediaExtractor は1つのメディアの置き場所を調べ、mediaInfoに反映する関数。
// preferThumbnailがtrueのソースはサムネイル欄を優先して埋める。
type mediaExtractor struct {
	preferThumbnail bool
	extract         func(item *gofeed.Item, apply func(url, mediaType, description string))
}

// mediaExtractors は優先順: enclosure → media:content → media:group →
// media:thumbnail（サムネイル優先） → itunes image。
var mediaExtractors = []mediaExtractor{
	{
		extract: func(item *gofeed.Item, apply func(url, mediaType, description string)) {
			for _, enc := range item.Enclosures {
				if enc == nil {
					continue
				}
				apply(enc.URL, enc.Type, "")
			}
		},
	},
	{
		extract: func(item *gofeed.Item, apply func(url, mediaType, description string)) {
			for _, e := range mediaExtensions(item, "content") {
				applyMediaExtension(e, apply)
			}
		},
	},
	{
		extract: func(item *gofeed.Item, apply func(url, mediaType, description string)) {
			// media:groupは入れ子のmedia:content/media:thumbnailを持つ
			for _, group := range mediaExtensions(item, "group") {
				for _, e := range group.Children["content"] {
					applyMediaExtension(e, apply)
				}
				for _, e := range group.Children["thumbnail"] {
					applyMediaExtension(e, apply)
				}
			}
		},
	},
	{
		preferThumbnail: true,
		extract: func(item *gofeed.Item, apply func(url, mediaType, description string)) {
			for _, e := range mediaExtensions(item, "thumbnail") {
				applyMediaExtension(e, apply)
			}
		},
	},
	{
		preferThumbnail: true,
		extract: func(item *gofeed.Item, apply func(url, mediaType, description string)) {
			if item.ITunesExt != nil && item.ITunesExt.Image != "" {
				apply(item.ITunesExt.Image, "image", "")
			}
		},
	},
}

// extractMedia はチェーンを順に適用してメディア情報を組み立てる。
// 明示的なサムネイルがコンテンツ画像より優先され、サムネイルが
// 見つからない場合はメイン画像をサムネイルとして流用する。
func extractMedia(item *gofeed.Item) mediaInfo {
	var media mediaInfo

	for _, ex := range mediaExtractors {
		prefer := ex.preferThumbnail
		ex.extract(item, func(url, mediaType, description string) {
			url = strings.TrimSpace(url)
			if url != "" {
				if prefer {
					if media.Thumbnail == "" {
						media.Thumbnail = url
					}
				} else if media.MainImage == "" {
					media.MainImage = url
				}
			}
			if mediaType != "" && media.Type == "" {
				media.Type = strings.TrimSpace(mediaType)
			}
			if description != "" && media.Description == "" {
				media.Description = strings.TrimSpace(description)
			}
		})
	}

	if media.Thumbnail == "" {
		media.Thumbnail = media.MainImage
	}
	if media.Type == "" {
		media.Type = "image"
	}

	return media
}

// mediaExtensions はmedia名前空間の指定要素を取り出す。
func mediaExtensions(item *gofeed.Item, name string) []ext.Extension {
	ns, ok := item.Extensions["media"]
	if !ok {
		return nil
	}
	return ns[name]
}

// applyMediaExtension は拡張要素の属性からURL/type/説明を抽出してapplyに渡す。
func applyMediaExtension(e ext.Extension, apply func(url, mediaType, description string)) {
	url := firstAttr(e.Attrs, "url", "href", "link")
	mediaType := firstAttr(e.Attrs, "type", "medium")
	description := firstAttr(e.Attrs, "description", "title")
	if description == "" {
		description = strings.TrimSpace(e.Value)
	}
	apply(url, mediaType, description)
}

// firstAttr は候補キーを順に調べ、最初の非空値を返す。
func firstAttr(attrs map[string]string, keys ...string) string {
	for _, key := range keys {
		if v, ok := attrs[key]; ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// extractCategories はカテゴリとDublin Core subjectを重複除去して集める。
func extractCategories(item *gofeed.Item) []string {
	seen := make(map[string]struct{})
	var categories []string

	add := func(value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		categories = append(categories, value)
	}

	for _, c := range item.Categories {
		add(c)
	}
	if item.DublinCoreExt != nil {
		for _, s := range item.DublinCoreExt.Subject {
			add(s)
		}
	}

	return categories
}

// extractFeedImage はチャンネル画像を抽出する。iTunes画像へフォールバックする。
func extractFeedImage(feed *gofeed.Feed) (main, thumbnail string) {
	if feed.Image != nil && feed.Image.URL != "" {
		return feed.Image.URL, feed.Image.URL
	}
	if feed.ITunesExt != nil && feed.ITunesExt.Image != "" {
		return feed.ITunesExt.Image, feed.ITunesExt.Image
	}
	return "", ""
}
