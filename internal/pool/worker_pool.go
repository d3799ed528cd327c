package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"publier/backend/internal/monitoring"
)

// Task 后台任务，返回的错误只记录日志和指标
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	fn   Task
}

// WorkerPool 协程池
//
// 用于限制并发协程数量，避免创建过多协程导致资源耗尽。
// 任务上下文与 Start 的 ctx 取消解耦，只有 Drain 超时才会取消正在执行的任务。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan namedTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	taskCtx context.Context
	cancel  context.CancelFunc

	log     *zap.Logger
	metrics *monitoring.Metrics
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数
//   - queueSize: 任务队列大小
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger, metrics *monitoring.Metrics) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan namedTask, queueSize),
		log:        log,
		metrics:    metrics,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start(ctx context.Context) {
	p.taskCtx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// TrySubmit 尝试提交任务
//
// 如果队列已满或协程池已停止，立即返回 false。
// 发送不会阻塞，读锁只在 Drain 关闭队列时与其互斥。
func (p *WorkerPool) TrySubmit(name string, task func(ctx context.Context) error) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.taskQueue <- namedTask{name: name, fn: task}:
		p.metrics.SetQueueDepth(len(p.taskQueue))
		return true
	default:
		return false
	}
}

// Drain 停止接收新任务并等待队列中的任务执行完毕
//
// ctx 结束时取消仍在执行的任务并返回 ctx.Err()
func (p *WorkerPool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.taskQueue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.cancel != nil {
			p.cancel()
		}
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		<-done
		return ctx.Err()
	}
}

// Stop 停止协程池并等待全部任务完成
func (p *WorkerPool) Stop() {
	_ = p.Drain(context.Background())
}

// Pending 队列中等待执行的任务数
func (p *WorkerPool) Pending() int {
	return len(p.taskQueue)
}

// worker 工作协程
func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.metrics.SetQueueDepth(len(p.taskQueue))
		p.run(task)
	}
}

func (p *WorkerPool) run(task namedTask) {
	// 执行任务（捕获 panic）
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordPanic()
			p.metrics.RecordBackgroundTask(task.name, "panic")
			p.log.Error("background task panicked",
				zap.String("task", task.name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if err := task.fn(p.taskCtx); err != nil {
		p.metrics.RecordBackgroundTask(task.name, "error")
		p.log.Warn("background task failed",
			zap.String("task", task.name),
			zap.Error(err),
		)
		return
	}
	p.metrics.RecordBackgroundTask(task.name, "ok")
}
