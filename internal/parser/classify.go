package parser

import "regexp"

// 失敗メッセージから粗いステータスコードを導出するためのパターン。
// 上から順に評価され、最初に一致したものが採用される。
var (
	notFoundPattern     = regexp.MustCompile(`(?i)404|not found`)
	forbiddenPattern    = regexp.MustCompile(`(?i)403|forbidden`)
	unauthorizedPattern = regexp.MustCompile(`(?i)401|unauthorized`)
	timeoutPattern      = regexp.MustCompile(`(?i)timeout|deadline exceeded|etimedout`)
	permanentPattern    = regexp.MustCompile(`(?i)invalid url|unsupported`)
)

// DeriveStatusCode はエラーメッセージのテキストから粗いHTTPステータスコードを導出する。
// トランスポートエラーとパースエラーは同じ経路で分類される。
func DeriveStatusCode(message string) int {
	switch {
	case notFoundPattern.MatchString(message):
		return 404
	case forbiddenPattern.MatchString(message):
		return 403
	case unauthorizedPattern.MatchString(message):
		return 401
	case timeoutPattern.MatchString(message):
		return 408
	default:
		return 500
	}
}

// ShouldDeactivateFeed は失敗が恒久的（リトライしても回復しない）かを判定する。
// 404/401/403 および invalid/unsupported 系のメッセージは恒久的とみなす。
// タイムアウトと5xxは一時的な失敗として次サイクルで再試行される。
func ShouldDeactivateFeed(status int, message string) bool {
	if status == 404 || status == 401 || status == 403 {
		return true
	}
	return permanentPattern.MatchString(message)
}
