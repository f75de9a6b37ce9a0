// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextExtractorService はフィード記事のHTMLコンテンツからプレーンテキストを抽出する。
// 保存されるのはクリーンテキストのみで、生HTMLはそのまま永続化しない。
// bluemondayのStrictPolicy（全タグ除去）を使用し、script等の危険な
// コンテンツも同じパスで除去される。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextExtractorService はHTMLからのテキスト抽出機能のインターフェースを定義する。
type TextExtractorService interface {
	// ExtractText はHTMLからマークアップを全て除去したプレーンテキストを返す。
	// HTMLエンティティはデコードされ、連続する空白は1つにまとめられる。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す（冪等）。
	ExtractText(rawHTML string) string
}

// textExtractor はTextExtractorServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフに抽出処理を行う。
type textExtractor struct {
	policy *bluemonday.Policy
}

// NewTextExtractor はTextExtractorServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグゼロのポリシーで、全てのマークアップを除去する。
func NewTextExtractor() *textExtractor {
	return &textExtractor{
		policy: bluemonday.StrictPolicy(),
	}
}

// ExtractText はHTMLからマークアップを全て除去したプレーンテキストを返す。
func (e *textExtractor) ExtractText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}

	stripped := e.policy.Sanitize(rawHTML)
	// bluemondayはエンティティをエスケープしたまま返すためデコードする
	decoded := html.UnescapeString(stripped)
	// タグ境界由来の連続空白・改行を正規化する
	return strings.Join(strings.Fields(decoded), " ")
}
