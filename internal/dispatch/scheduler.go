package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"censcope/internal/logger"
	"censcope/internal/registry"

	"golang.org/x/sync/errgroup"
)

// Executor 抽象单任务执行，由 provider 包实现；测试注入假实现。
type Executor interface {
	Execute(ctx context.Context, target registry.Target, contextText, promptText string) (text string, attempts int, err error)
}

// EventKind 标记进度事件类型。
type EventKind string

const (
	EventTaskStarted  EventKind = "task_started"
	EventTaskFinished EventKind = "task_finished"
)

// Event 是调度器对外发布的进度事件，供任意展示层消费。
// 编排逻辑不感知消费者。
type Event struct {
	Kind      EventKind
	Task      Task
	Result    Result
	Completed int
	Total     int
}

// Scheduler 以固定上限并发扇出任务并按提交顺序收拢结果。
type Scheduler struct {
	Exec        Executor
	MaxWorkers  int
	PromptDelay time.Duration

	// Events 可选。事件投递是尽力而为：消费者跟不上时丢弃而不是阻塞调度。
	Events chan<- Event
}

// Dispatch 执行整批任务并返回完整矩阵。单个任务的失败（含重试耗尽）
// 永不取消或阻塞其余任务；矩阵在返回时覆盖每一个提交的任务。
func (s *Scheduler) Dispatch(ctx context.Context, tasks []Task) (*Matrix, error) {
	matrix, err := NewMatrix(tasks)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return matrix, nil
	}
	limit := s.MaxWorkers
	if limit <= 0 {
		limit = 8
	}
	if limit > len(tasks) {
		limit = len(tasks)
	}
	var completed atomic.Int64
	total := len(tasks)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	lastGroup := Key{}
	for i, task := range tasks {
		// 相邻 prompt 组之间插入固定间隔，压低对同一供应商的突发速率。
		// 间隔发生在提交侧，不计入任何单任务的超时。
		group := Key{Variant: task.Variant, Prompt: task.Prompt.Index}
		if i > 0 && group != lastGroup && s.PromptDelay > 0 {
			sleepCtx(egCtx, s.PromptDelay)
		}
		lastGroup = group

		task := task
		eg.Go(func() error {
			s.emit(Event{Kind: EventTaskStarted, Task: task, Completed: int(completed.Load()), Total: total})
			result := s.runOne(egCtx, task)
			if perr := matrix.put(result); perr != nil {
				// 只写一次被违反属于编程错误，记录并继续，不丢批次
				logger.Errorf("matrix insert failed: %v", perr)
			}
			done := int(completed.Add(1))
			s.emit(Event{Kind: EventTaskFinished, Task: task, Result: result, Completed: done, Total: total})
			return nil
		})
	}
	// 工作协程从不返回错误：失败被装进 Result
	_ = eg.Wait()
	return matrix, nil
}

func (s *Scheduler) runOne(ctx context.Context, task Task) Result {
	text, attempts, err := s.Exec.Execute(ctx, task.Target, task.Context, task.Prompt.Text)
	if err != nil {
		return Result{
			Task:     task,
			Status:   StatusFailure,
			Text:     "Error: " + err.Error(),
			Attempts: attempts,
		}
	}
	return Result{Task: task, Status: StatusSuccess, Text: text, Attempts: attempts}
}

func (s *Scheduler) emit(evt Event) {
	if s.Events == nil {
		return
	}
	select {
	case s.Events <- evt:
	default:
		logger.Debugf("progress event dropped (kind=%s, task=%s)", evt.Kind, evt.Task.Target.ID())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
