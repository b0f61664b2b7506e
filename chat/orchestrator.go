// Package chat runs one conversation turn end to end: produce a response
// (live agent or fallback), then gate and execute the actions it proposed.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/donghwi-dev/portfolio-agent/action"
	"github.com/donghwi-dev/portfolio-agent/approval"
	"github.com/donghwi-dev/portfolio-agent/assistant"
	"github.com/donghwi-dev/portfolio-agent/backend"
	"github.com/donghwi-dev/portfolio-agent/fallback"
	"github.com/donghwi-dev/portfolio-agent/session"
)

// Hooks carries the per-turn callbacks the transport layer uses to forward
// progress to the browser. Any field may be nil.
type Hooks struct {
	// OnChunk streams incremental response text.
	OnChunk assistant.ChunkFunc
	// OnNotice surfaces user-facing side notes (rejections, action failures).
	OnNotice func(notice string)
}

func (h Hooks) notice(text string) {
	if h.OnNotice != nil {
		h.OnNotice(text)
	}
}

type Orchestrator struct {
	Backend   *backend.Client
	Fallback  *fallback.Responder
	Approvals *approval.Workflow
	Executor  *action.Executor
	Sessions  *session.Manager
	Log       *slog.Logger
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// Process handles one user query for the given session. It never panics out
// and only returns an error when even the fallback path could not produce a
// response; action failures are reported through hooks and swallowed.
func (o *Orchestrator) Process(ctx context.Context, sessionID, query string, hooks Hooks) (result assistant.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger().Error("chat_panic", "panic", fmt.Sprint(r))
			err = fmt.Errorf("chat turn failed: %v", r)
		}
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return result, fmt.Errorf("empty query")
	}

	sess := o.Sessions.GetOrCreate(sessionID)
	sess.AddMessage("user", query, nil)

	result, err = o.respond(ctx, sess, query, hooks.OnChunk)
	if err != nil {
		return result, err
	}

	sess.AddMessage("assistant", result.Text, result.Metadata)

	// Actions gate and run strictly one after another, in emitted order.
	for _, a := range result.Actions {
		if ctx.Err() != nil {
			break
		}
		o.runAction(ctx, sess, a, result.Text, query, hooks)
	}
	return result, nil
}

// respond prefers the live agent and degrades to the canned responder on any
// failure along the way.
func (o *Orchestrator) respond(ctx context.Context, sess *session.Session, query string, onChunk assistant.ChunkFunc) (assistant.Result, error) {
	if o.Backend != nil && o.Backend.CheckHealth(ctx) {
		result, err := o.streamLive(ctx, sess, query, onChunk)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return assistant.Result{}, ctx.Err()
		}
		o.logger().Warn("backend_degraded", "error", err.Error())
	}
	if o.Fallback == nil {
		return assistant.Result{}, fmt.Errorf("no responder available")
	}
	return o.Fallback.Stream(ctx, query, onChunk)
}

func (o *Orchestrator) streamLive(ctx context.Context, sess *session.Session, query string, onChunk assistant.ChunkFunc) (assistant.Result, error) {
	taskID, err := o.Backend.SendQuery(ctx, query, sess.BackendContext())
	if err != nil {
		return assistant.Result{}, err
	}
	return o.Backend.StreamTask(ctx, taskID, onChunk)
}

// runAction gates a single action and executes it when allowed. Every
// failure is contained here so one bad action never blocks the rest.
func (o *Orchestrator) runAction(ctx context.Context, sess *session.Session, a action.Action, responseText, query string, hooks Hooks) {
	log := o.logger()

	if a.Gated() {
		if o.Approvals == nil {
			log.Warn("approval_workflow_missing", "action_type", string(a.Type))
			return
		}
		_, err := o.Approvals.RequestApproval(ctx, approval.Request{
			Action:       a,
			ResponseText: responseText,
			Query:        query,
		})
		switch {
		case err == nil:
			sess.AddMessage("system", fmt.Sprintf("사용자가 %s 액션을 승인했습니다.", a.Type), nil)
		case errors.Is(err, approval.ErrRejected):
			sess.AddMessage("system", fmt.Sprintf("사용자가 %s 액션을 취소했습니다.", a.Type), nil)
			hooks.notice("사용자가 액션을 취소했습니다.")
			return
		case errors.Is(err, approval.ErrExpired):
			// A prompt the user never touched disappears without comment.
			log.Info("approval_expired", "action_type", string(a.Type))
			return
		default:
			log.Error("approval_failed", "action_type", string(a.Type), "error", err.Error())
			return
		}
	}

	if o.Executor == nil {
		log.Warn("executor_missing", "action_type", string(a.Type))
		return
	}
	if a.Type == action.TypeNavigate {
		if page := a.StringParam("page"); page != "" {
			sess.SetPage(page)
		}
	}
	if err := o.Executor.Execute(ctx, a); err != nil {
		log.Error("action_failed", "action_type", string(a.Type), "error", err.Error())
		hooks.notice(fmt.Sprintf("%s 액션 실행에 실패했습니다.", a.Type))
	}
}
