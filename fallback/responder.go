// Package fallback answers chat queries locally when the agent backend is
// unreachable: keyword matching against a small fixed vocabulary, with
// simulated incremental delivery so the UI cannot tell the paths apart.
package fallback

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/donghwi-dev/portfolio-agent/action"
	"github.com/donghwi-dev/portfolio-agent/assistant"
	"github.com/donghwi-dev/portfolio-agent/site"
)

const (
	defaultTokenDelay  = 100 * time.Millisecond
	defaultTokenJitter = 100 * time.Millisecond
)

// Responder produces canned (text, actions) pairs from raw queries.
// Respond is pure; Stream adds the typing simulation.
type Responder struct {
	// TokenDelay and TokenJitter pace the simulated typing. Zero both in
	// tests for instant delivery.
	TokenDelay  time.Duration
	TokenJitter time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

func New() *Responder {
	return &Responder{
		TokenDelay:  defaultTokenDelay,
		TokenJitter: defaultTokenJitter,
		sleep:       sleepCtx,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int64N(int64(max)))
		},
	}
}

func navigateAction(page string) action.Action {
	return action.Action{
		Type:             action.TypeNavigate,
		Params:           map[string]any{"page": page},
		RequiresApproval: action.Bool(true),
		Metadata:         map[string]any{"confidence": 0.9, "source": "fallback"},
	}
}

// Respond maps a query to a deterministic canned result. Same query, same
// result, every time.
func (r *Responder) Respond(query string) assistant.Result {
	q := strings.ToLower(strings.TrimSpace(query))

	var (
		text    string
		actions []action.Action
	)
	switch {
	case strings.Contains(q, "포트폴리오"):
		text = "포트폴리오 페이지로 이동합니다. 프로젝트와 작업 경험을 확인하실 수 있습니다."
		actions = append(actions, navigateAction("portfolio"))
	case strings.Contains(q, "이력서"):
		text = "이력서 페이지로 이동합니다. 학력, 경력, 기본 정보를 확인하실 수 있습니다."
		actions = append(actions, navigateAction("resume"))
	case strings.Contains(q, "기술스택") || strings.Contains(q, "기술"):
		text = "기술스택 페이지로 이동합니다. 보유한 기술과 역량을 확인하실 수 있습니다."
		actions = append(actions, navigateAction("skills"))
	case strings.Contains(q, "블로그") || strings.Contains(q, "글"):
		text = "기술블로그 페이지로 이동합니다. 작성한 글들과 새 글 작성이 가능합니다."
		actions = append(actions, navigateAction("blog"))
	case strings.Contains(q, "안녕") || strings.Contains(q, "hello") || strings.Contains(q, "hi"):
		text = "안녕하세요! 포트폴리오에 오신 것을 환영합니다. 포트폴리오, 이력서, 기술스택, 기술블로그 중 어떤 것을 보고 싶으신가요?"
	case strings.Contains(q, "도움") || strings.Contains(q, "help"):
		text = helpText()
	case strings.Contains(q, "프로젝트"):
		text = "다양한 프로젝트 경험을 포트폴리오에서 확인하실 수 있습니다. 에이전트 기반 시스템, 웹 개발, AI/ML 프로젝트 등을 진행했습니다."
		actions = append(actions, navigateAction("portfolio"))
	case strings.Contains(q, "연락") || strings.Contains(q, "contact"):
		text = "연락처 정보는 이력서 페이지에서 확인하실 수 있습니다. 이메일이나 LinkedIn을 통해 연락 주시면 빠르게 답변드리겠습니다."
		actions = append(actions, navigateAction("resume"))
	default:
		text = fmt.Sprintf("%q에 대한 답변을 준비하고 있습니다. 포트폴리오 관련 질문이시라면 구체적으로 \"포트폴리오\", \"이력서\", \"기술스택\", \"기술블로그\" 중 하나를 언급해주세요.", strings.TrimSpace(query))
	}

	return assistant.Result{
		Text:    text,
		Actions: actions,
		Metadata: map[string]any{
			"source": "fallback",
			"intent": AnalyzeIntent(query),
		},
	}
}

// Stream delivers the canned response token by token through the same
// callback shape the live streaming path uses. The concatenated chunks
// reassemble to the response text.
func (r *Responder) Stream(ctx context.Context, query string, onChunk assistant.ChunkFunc) (assistant.Result, error) {
	result := r.Respond(query)
	if onChunk == nil {
		return result, nil
	}

	// Split on single spaces only; newlines stay inside their tokens so the
	// chunks concatenate back to the exact response text.
	words := strings.Split(result.Text, " ")
	var current strings.Builder
	for i, word := range words {
		if err := r.wait(ctx); err != nil {
			return assistant.Result{}, err
		}
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		current.WriteString(chunk)
		onChunk(chunk, current.String())
	}
	return result, nil
}

func (r *Responder) wait(ctx context.Context) error {
	d := r.TokenDelay
	if r.jitter != nil {
		d += r.jitter(r.TokenJitter)
	}
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func helpText() string {
	pageNames := make([]string, 0, 4)
	for _, p := range site.Pages() {
		pageNames = append(pageNames, fmt.Sprintf("• \"%s를 보여줘\"", p.Title))
	}
	return "다음과 같이 말씀해주세요:\n" + strings.Join(pageNames, "\n")
}
