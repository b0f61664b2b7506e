package fallback

import "strings"

// Intent buckets a query for the backend context payload. Purely heuristic;
// the backend may override it with its own analysis.
var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{"navigation", []string{"이동", "보여줘", "보여주세요", "가고싶어", "페이지", "go to", "show me"}},
	{"information", []string{"알려줘", "설명", "무엇", "어떤", "정보", "tell me", "what is"}},
	{"action", []string{"다운로드", "저장", "공유", "복사", "download", "save", "share"}},
	{"greeting", []string{"안녕", "반가워", "처음", "hello", "hi", "hey"}},
}

// AnalyzeIntent classifies a free-text query. Unmatched queries are "general".
func AnalyzeIntent(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "general"
	}
	for _, group := range intentKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(q, kw) {
				return group.intent
			}
		}
	}
	return "general"
}
