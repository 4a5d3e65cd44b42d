package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 每个投递协程对应的排队容量
const queuePerWorker = 64

// Notifier 在事务提交后异步投递通知
// 固定 maxInFlight 个投递协程消费有界队列，单次投递受 timeout 限制
// 队列满或已关闭时丢弃事件并记录日志，调用方永不阻塞
type Notifier struct {
	dispatcher Dispatcher
	timeout    time.Duration
	queue      chan Event
	wg         sync.WaitGroup
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewNotifier 创建 Notifier 并启动投递协程
func NewNotifier(d Dispatcher, timeout time.Duration, maxInFlight int, logger *zap.Logger) *Notifier {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	n := &Notifier{
		dispatcher: d,
		timeout:    timeout,
		queue:      make(chan Event, maxInFlight*queuePerWorker),
		logger:     logger,
	}

	n.wg.Add(maxInFlight)
	for i := 0; i < maxInFlight; i++ {
		go n.worker()
	}
	return n
}

// Notify 立即返回；投递在后台进行，结果不影响调用方
func (n *Notifier) Notify(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.logger.Warn("通知服务已关闭，丢弃事件", zap.String("kind", ev.Kind), zap.String("request_id", ev.RequestID))
		return
	}

	select {
	case n.queue <- ev:
	default:
		n.logger.Warn("通知队列已满，丢弃事件", zap.String("kind", ev.Kind), zap.String("request_id", ev.RequestID))
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for ev := range n.queue {
		n.deliver(ev)
	}
}

func (n *Notifier) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("通知投递 panic", zap.String("kind", ev.Kind), zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	_, _ = n.dispatcher.Dispatch(ctx, ev)
}

// Shutdown 停止接收新事件，等待已排队的投递完成或 ctx 到期
// 可重复调用
func (n *Notifier) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
