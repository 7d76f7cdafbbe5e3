package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"

	"golang.org/x/sync/errgroup"
)

const transferWorkers = 8

// Outcome is the result of one planned action, by action index.
type Outcome struct {
	Err     error
	Bytes   int64
	Content []byte // file payload moved by the action, when there was one
}

// Executor applies a plan to both endpoints. Deletes and directory creates
// run sequentially in plan order; content transfers run in parallel. A
// transport failure takes its endpoint out of the run: every remaining
// action touching that endpoint fails without being attempted.
type Executor struct {
	a, b Accessor
	log  *slog.Logger
}

func NewExecutor(a, b Accessor, log *slog.Logger) *Executor {
	return &Executor{a: a, b: b, log: log}
}

// Apply runs every action in the plan and reports per-action outcomes.
// Action failures are isolated; Apply itself only stops on context
// cancellation, marking the untouched tail as cancelled.
func (e *Executor) Apply(ctx context.Context, plan *Plan) []Outcome {
	outcomes := make([]Outcome, len(plan.Actions))

	var mu gosync.Mutex
	down := make(map[string]error)

	guard := func(act *Action) error {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range e.touched(act.Type) {
			if cause, ok := down[id]; ok {
				return fmt.Errorf("endpoint %s unavailable: %w", id, cause)
			}
		}
		return nil
	}
	record := func(idx int, content []byte, n int64, err error) {
		outcomes[idx] = Outcome{Err: err, Bytes: n, Content: content}
		if err == nil {
			return
		}
		var te *TransportError
		if errors.As(err, &te) {
			mu.Lock()
			down[te.Endpoint] = err
			mu.Unlock()
			e.log.Error("endpoint lost, abandoning its remaining actions", "endpoint", te.Endpoint, "error", te.Err)
		} else {
			act := &plan.Actions[idx]
			e.log.Warn("action failed", "action", act.Type, "path", act.Path, "error", err)
		}
	}

	i := 0
	for ; i < len(plan.Actions); i++ {
		act := &plan.Actions[i]
		if !sequentialAction(act.Type) {
			break
		}
		if err := ctx.Err(); err != nil {
			record(i, nil, 0, err)
			continue
		}
		if err := guard(act); err != nil {
			record(i, nil, 0, err)
			continue
		}
		content, n, err := e.run(ctx, act)
		record(i, content, n, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(transferWorkers)
	for ; i < len(plan.Actions); i++ {
		idx := i
		act := &plan.Actions[i]
		if act.Type == ActionRecordConflict {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				record(idx, nil, 0, err)
				return nil
			}
			if err := guard(act); err != nil {
				record(idx, nil, 0, err)
				return nil
			}
			content, n, err := e.run(gctx, act)
			record(idx, content, n, err)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func sequentialAction(t ActionType) bool {
	switch t {
	case ActionDeleteOnA, ActionDeleteOnB, ActionMkdirOnA, ActionMkdirOnB:
		return true
	}
	return false
}

func (e *Executor) touched(t ActionType) []string {
	switch t {
	case ActionDeleteOnA, ActionMkdirOnA:
		return []string{e.a.ID()}
	case ActionDeleteOnB, ActionMkdirOnB:
		return []string{e.b.ID()}
	case ActionRecordConflict:
		return nil
	default:
		return []string{e.a.ID(), e.b.ID()}
	}
}

func (e *Executor) run(ctx context.Context, act *Action) ([]byte, int64, error) {
	switch act.Type {
	case ActionDeleteOnA:
		return nil, 0, e.a.Delete(ctx, act.Path)
	case ActionDeleteOnB:
		return nil, 0, e.b.Delete(ctx, act.Path)
	case ActionMkdirOnA:
		return nil, 0, e.a.Mkdir(ctx, act.Path)
	case ActionMkdirOnB:
		return nil, 0, e.b.Mkdir(ctx, act.Path)
	case ActionCopyAToB:
		return e.copy(ctx, e.a, e.b, act)
	case ActionCopyBToA:
		return e.copy(ctx, e.b, e.a, act)
	case ActionMergeBoth:
		return e.merge(ctx, act)
	case ActionRecordConflict:
		return nil, 0, nil
	default:
		return nil, 0, fmt.Errorf("unknown action type %v", act.Type)
	}
}

func (e *Executor) copy(ctx context.Context, src, dst Accessor, act *Action) ([]byte, int64, error) {
	if act.Source.Kind == KindSymlink {
		return nil, 0, dst.Symlink(ctx, act.Source.LinkTarget, act.Path)
	}
	data, err := src.Read(ctx, act.Path)
	if err != nil {
		return nil, 0, err
	}
	if err := dst.Write(ctx, act.Path, data, act.Source.Mtime); err != nil {
		return nil, 0, err
	}
	e.log.Debug("copied", "path", act.Path, "from", src.ID(), "to", dst.ID(), "bytes", len(data))
	return data, int64(len(data)), nil
}

// merge writes the merged content to both sides with the same mtime so
// they compare equal on the next run.
func (e *Executor) merge(ctx context.Context, act *Action) ([]byte, int64, error) {
	if err := e.a.Write(ctx, act.Path, act.Merged, act.Source.Mtime); err != nil {
		return nil, 0, err
	}
	if err := e.b.Write(ctx, act.Path, act.Merged, act.Source.Mtime); err != nil {
		return nil, 0, err
	}
	e.log.Info("merged both sides", "path", act.Path, "bytes", len(act.Merged))
	return act.Merged, int64(len(act.Merged) * 2), nil
}
