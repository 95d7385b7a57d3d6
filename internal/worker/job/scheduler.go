package job

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobFunc 定义作业执行函数
type JobFunc func(ctx context.Context) error

// Scheduler 作业调度器
type Scheduler struct {
	mu      sync.Mutex
	jobs    []*ScheduledJob
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// ScheduledJob 表示一个调度的作业，interval 为 0 时只运行一次
type ScheduledJob struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       JobFunc
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// RegisterJob 注册周期作业，单次执行超时为 interval/2
func (s *Scheduler) RegisterJob(name string, interval time.Duration, fn JobFunc) {
	if interval <= 0 {
		s.RegisterOnceJob(name, fn)
		return
	}
	s.register(&ScheduledJob{name: name, interval: interval, timeout: interval / 2, fn: fn})
	s.logger.Info("Registered job", zap.String("job", name), zap.Duration("interval", interval))
}

// RegisterOnceJob 注册只运行一次的作业
func (s *Scheduler) RegisterOnceJob(name string, fn JobFunc) {
	s.register(&ScheduledJob{name: name, fn: fn})
	s.logger.Info("Registered once job", zap.String("job", name))
}

func (s *Scheduler) register(j *ScheduledJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

// Start 启动调度器，重复调用无效
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, j)
		}()
	}
}

// Stop 取消所有作业并等待退出，ctx 到期后不再等待
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.logger.Warn("Stopping scheduler...")
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All jobs stopped successfully")
	case <-ctx.Done():
		s.logger.Warn("Context deadline exceeded while waiting for jobs to stop")
	}
}

func (s *Scheduler) loop(ctx context.Context, j *ScheduledJob) {
	// 立即运行一次
	s.execute(ctx, j)
	if j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.execute(ctx, j)
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping job", zap.String("job", j.name))
			return
		}
	}
}

// execute 执行作业并处理错误
func (s *Scheduler) execute(ctx context.Context, j *ScheduledJob) {
	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if j.timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, j.timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	startTime := time.Now()
	if err := j.fn(jobCtx); err != nil {
		s.logger.Error("Job execution failed",
			zap.String("job", j.name),
			zap.Error(err),
			zap.Duration("duration", time.Since(startTime)))
		return
	}
	s.logger.Debug("Job execution completed",
		zap.String("job", j.name),
		zap.Duration("duration", time.Since(startTime)))
}
