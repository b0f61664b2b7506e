package fallback

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/donghwi-dev/portfolio-agent/action"
)

// newInstant returns a responder with zero pacing for tests.
func newInstant() *Responder {
	r := New()
	r.TokenDelay = 0
	r.TokenJitter = 0
	return r
}

func TestRespond_PortfolioKeyword(t *testing.T) {
	r := newInstant()
	res := r.Respond("포트폴리오를 보여줘")

	if !strings.Contains(res.Text, "포트폴리오") {
		t.Fatalf("expected portfolio mention, got %q", res.Text)
	}
	if len(res.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(res.Actions))
	}
	a := res.Actions[0]
	if a.Type != action.TypeNavigate {
		t.Fatalf("action type = %s, want navigate", a.Type)
	}
	if page, _ := a.Params["page"].(string); page != "portfolio" {
		t.Fatalf("page = %q, want portfolio", page)
	}
	if !a.Gated() {
		t.Fatal("fallback navigation must require approval")
	}
}

func TestRespond_KeywordRouting(t *testing.T) {
	cases := []struct {
		name     string
		query    string
		wantPage string
	}{
		{"resume", "이력서를 알려줘", "resume"},
		{"skills", "기술스택이 궁금해", "skills"},
		{"skills_short", "어떤 기술을 쓰세요", "skills"},
		{"blog", "블로그 글 보여줘", "blog"},
		{"project", "프로젝트 경험이 있나요", "portfolio"},
		{"contact", "연락처 알려주세요", "resume"},
	}
	r := newInstant()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Respond(tc.query)
			if len(res.Actions) != 1 {
				t.Fatalf("expected 1 action, got %d", len(res.Actions))
			}
			if page, _ := res.Actions[0].Params["page"].(string); page != tc.wantPage {
				t.Fatalf("page = %q, want %q", page, tc.wantPage)
			}
		})
	}
}

func TestRespond_NoActionIntents(t *testing.T) {
	r := newInstant()
	for _, q := range []string{"안녕하세요", "hello", "도움말", "help"} {
		t.Run(q, func(t *testing.T) {
			res := r.Respond(q)
			if res.Text == "" {
				t.Fatal("expected non-empty response")
			}
			if len(res.Actions) != 0 {
				t.Fatalf("expected no actions, got %d", len(res.Actions))
			}
		})
	}
}

func TestRespond_DefaultWhenNothingMatches(t *testing.T) {
	r := newInstant()
	res := r.Respond("날씨가 어때?")
	if len(res.Actions) != 0 {
		t.Fatalf("expected no actions, got %d", len(res.Actions))
	}
	if !strings.Contains(res.Text, "날씨가 어때?") {
		t.Fatalf("default response should echo the query, got %q", res.Text)
	}
}

func TestRespond_Deterministic(t *testing.T) {
	r := newInstant()
	first := r.Respond("포트폴리오를 보여줘")
	for i := 0; i < 5; i++ {
		if got := r.Respond("포트폴리오를 보여줘"); !reflect.DeepEqual(got, first) {
			t.Fatalf("responses diverged on run %d:\n%#v\n%#v", i, got, first)
		}
	}
}

func TestStream_ChunksReassembleToText(t *testing.T) {
	r := newInstant()

	var (
		chunks []string
		lastCumulative string
	)
	res, err := r.Stream(context.Background(), "이력서를 보여줘", func(chunk, cumulative string) {
		chunks = append(chunks, chunk)
		lastCumulative = cumulative
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if joined := strings.Join(chunks, ""); joined != res.Text {
		t.Fatalf("chunk concatenation mismatch:\n got %q\nwant %q", joined, res.Text)
	}
	if lastCumulative != res.Text {
		t.Fatalf("cumulative mismatch:\n got %q\nwant %q", lastCumulative, res.Text)
	}
	if want := strings.Count(res.Text, " ") + 1; len(chunks) != want {
		t.Fatalf("chunk count = %d, want %d", len(chunks), want)
	}
}

func TestStream_PreservesNewlines(t *testing.T) {
	r := newInstant()

	var chunks []string
	res, err := r.Stream(context.Background(), "도움이 필요해", func(chunk, _ string) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Text, "\n") {
		t.Fatalf("help response should span lines, got %q", res.Text)
	}
	if joined := strings.Join(chunks, ""); joined != res.Text {
		t.Fatalf("chunk concatenation mismatch:\n got %q\nwant %q", joined, res.Text)
	}
}

func TestStream_CanceledContext(t *testing.T) {
	r := New() // real pacing so cancellation has a window

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Stream(ctx, "포트폴리오를 보여줘", func(string, string) {})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestStream_NilCallback(t *testing.T) {
	r := newInstant()
	res, err := r.Stream(context.Background(), "안녕", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text == "" {
		t.Fatal("expected result without callback")
	}
}

func TestAnalyzeIntent(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"포트폴리오 페이지로 이동해줘", "navigation"},
		{"show me the blog", "navigation"},
		{"이력서에 대해 알려줘", "information"},
		{"이력서 다운로드", "action"},
		{"안녕하세요", "greeting"},
		{"asdf", "general"},
		{"", "general"},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			if got := AnalyzeIntent(tc.query); got != tc.want {
				t.Fatalf("AnalyzeIntent(%q) = %q, want %q", tc.query, got, tc.want)
			}
		})
	}
}
