// Package realtime 提供数据变更事件的订阅/退订通道。
//
// 每次写操作提交后发布一条 ChangeEvent；订阅方收到信号后应重新查询，
// 事件本身不携带记录内容，存储层始终是唯一可信来源。
// 配置 Redis 时事件经由 Pub/Sub 广播到所有实例，否则仅在进程内投递。
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-swap/backend/pkg/metrics"
	"skill-swap/backend/pkg/redis"
)

// 被监听的数据表
const (
	TableProfiles     = "profiles"
	TableSwapRequests = "swap_requests"
)

// ChangeType 变更类型
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent 一次已提交的数据变更
type ChangeEvent struct {
	Table    string     `json:"table"`
	Type     ChangeType `json:"type"`
	RecordID string     `json:"record_id"`
	UserIDs  []string   `json:"user_ids,omitempty"` // 相关用户；为空表示对所有订阅者可见
	At       time.Time  `json:"at"`
}

// Filter 订阅范围
type Filter struct {
	Tables []string // 为空表示全部表
	UserID string   // 非空时仅接收与该用户相关或无归属的事件
	All    bool     // 管理端：接收全部事件
}

// Match 判断事件是否落在订阅范围内
func (f Filter) Match(ev ChangeEvent) bool {
	if len(f.Tables) > 0 {
		found := false
		for _, t := range f.Tables {
			if t == ev.Table {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.All || f.UserID == "" || len(ev.UserIDs) == 0 {
		return true
	}
	for _, id := range ev.UserIDs {
		if id == f.UserID {
			return true
		}
	}
	return false
}

// Publisher 变更事件发布接口（业务层依赖）
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent)
}

const defaultBufferSize = 16

// Subscription 一个订阅句柄，使用完毕必须 Close
type Subscription struct {
	id     uint64
	filter Filter
	ch     chan ChangeEvent
	broker *Broker
	once   sync.Once
}

// Events 事件通道；Close 后通道关闭
func (s *Subscription) Events() <-chan ChangeEvent { return s.ch }

// Close 退订，可重复调用
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s.id)
	})
}

// envelope Redis 频道上的消息格式
type envelope struct {
	Origin string      `json:"origin"`
	Event  ChangeEvent `json:"event"`
}

// Broker 进程内订阅表 + 可选的 Redis 跨实例广播
type Broker struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	bufSize int

	rdb      *redis.Client
	channel  string
	instance string
	logger   *zap.Logger
}

// NewBroker 创建 Broker；rdb 为 nil 时仅进程内投递
func NewBroker(rdb *redis.Client, channel string, logger *zap.Logger) *Broker {
	return &Broker{
		subs:     make(map[uint64]*Subscription),
		bufSize:  defaultBufferSize,
		rdb:      rdb,
		channel:  channel,
		instance: uuid.NewString(),
		logger:   logger,
	}
}

// Subscribe 注册订阅
func (b *Broker) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		filter: filter,
		ch:     make(chan ChangeEvent, b.bufSize),
		broker: b,
	}
	b.subs[sub.id] = sub
	metrics.RealtimeSubscribers.Inc()
	return sub
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
		metrics.RealtimeSubscribers.Dec()
	}
}

// Publish 本地立即投递，同时广播到其他实例
func (b *Broker) Publish(ctx context.Context, ev ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.deliver(ev)

	if b.rdb == nil {
		return
	}
	payload, err := json.Marshal(envelope{Origin: b.instance, Event: ev})
	if err != nil {
		b.logger.Error("序列化变更事件失败", zap.Error(err))
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, payload); err != nil {
		b.logger.Warn("广播变更事件失败", zap.String("table", ev.Table), zap.Error(err))
	}
}

// deliver 非阻塞投递；订阅方缓冲区已满时丢弃（下一次事件会触发同样的重新查询）
func (b *Broker) deliver(ev ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.filter.Match(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Debug("订阅缓冲区已满，丢弃事件", zap.Uint64("subscription", sub.id))
		}
	}
}

// Run 消费 Redis 频道上来自其他实例的事件，直到 ctx 取消
func (b *Broker) Run(ctx context.Context) {
	if b.rdb == nil {
		<-ctx.Done()
		return
	}

	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("无法解析变更事件", zap.Error(err))
				continue
			}
			if env.Origin == b.instance {
				continue
			}
			b.deliver(env.Event)
		}
	}
}

// Close 关闭全部订阅
func (b *Broker) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
