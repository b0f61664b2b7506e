package action

import (
	"fmt"

	"github.com/donghwi-dev/portfolio-agent/site"
)

// Info is the human-readable rendering of an action used by approval prompts.
type Info struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Describe maps an action to its prompt copy. Never fails: an unrecognized
// type still gets a generic prompt.
func Describe(a Action) Info {
	switch a.Type {
	case TypeNavigate:
		page := a.StringParam("page")
		return Info{
			Icon:        site.Icon(page),
			Title:       "페이지 이동",
			Description: fmt.Sprintf("%s 페이지로 이동하시겠습니까?", site.Title(page)),
		}
	case TypeScroll:
		return Info{
			Icon:        "⬇️",
			Title:       "스크롤 이동",
			Description: fmt.Sprintf("%s 섹션으로 스크롤하시겠습니까?", a.StringParam("element")),
		}
	case TypeDownload:
		name := a.StringParam("filename")
		if name == "" {
			name = "download"
		}
		return Info{
			Icon:        "📥",
			Title:       "파일 다운로드",
			Description: fmt.Sprintf("%s 파일을 다운로드하시겠습니까?", name),
		}
	case TypeExternalLink:
		return Info{
			Icon:        "🔗",
			Title:       "외부 링크",
			Description: fmt.Sprintf("%s로 이동하시겠습니까?", a.StringParam("url")),
		}
	default:
		return Info{
			Icon:        "⚡",
			Title:       "액션 실행",
			Description: "이 액션을 실행하시겠습니까?",
		}
	}
}
