package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"skill-swap/backend/config"
	"skill-swap/backend/internal/dto"
	"skill-swap/backend/internal/model"
	"skill-swap/backend/internal/notify"
	"skill-swap/backend/internal/realtime"
	"skill-swap/backend/pkg/mail"
)

// ── 测试辅助 ──

func setupTestSwapService(env *testEnv) SwapService {
	return NewSwapService(&config.FeatureConfig{DuplicateRequestGuard: true}, env.repo, env.notifier, env.publisher, zap.NewNop())
}

type captureSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (s *captureSender) Send(_ context.Context, msg *mail.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, *msg)
	return "msg-" + msg.Tags["type"], nil
}

// setupWithDispatcher 使用真实的 Dispatcher + Notifier，投递到 captureSender
func setupWithDispatcher(t *testing.T, env *testEnv, sender *captureSender) (SwapService, *notify.Notifier) {
	t.Helper()
	renderer, err := notify.NewRenderer("https://skillswap.example.com")
	if err != nil {
		t.Fatalf("NewRenderer 失败: %v", err)
	}
	d := notify.NewDispatcher(env.repo, sender, renderer, zap.NewNop())
	n := notify.NewNotifier(d, time.Second, 4, zap.NewNop())
	svc := NewSwapService(&config.FeatureConfig{DuplicateRequestGuard: true}, env.repo, n, env.publisher, zap.NewNop())
	return svc, n
}

func drain(t *testing.T, n *notify.Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.Shutdown(ctx); err != nil {
		t.Fatalf("等待通知投递超时: %v", err)
	}
}

// ── Create ──

func TestSwapService_Create_Pending(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	result, err := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b", Message: "Hi B! Want to trade Go for guitar?"})
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	if result.Status != model.SwapStatusPending {
		t.Errorf("期望 status=pending，实际=%s", result.Status)
	}
	if result.FromUserID == result.ToUserID {
		t.Error("发起方与接收方不应相同")
	}
	if result.FromUserName != "Alice" || result.ToUserName != "Bob" {
		t.Errorf("姓名快照不正确: from=%s to=%s", result.FromUserName, result.ToUserName)
	}

	kinds := env.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != model.NotificationRequestSent {
		t.Errorf("期望一条 request_sent 事件，实际: %v", kinds)
	}
	if env.notifier.events[0].RecipientUserID != "user-b" {
		t.Errorf("request_sent 应发给接收方，实际=%s", env.notifier.events[0].RecipientUserID)
	}
	if len(env.publisher.events) != 1 || env.publisher.events[0].Type != realtime.ChangeInsert {
		t.Errorf("期望一条 INSERT 变更事件，实际: %+v", env.publisher.events)
	}
}

func TestSwapService_Create_DefaultMessage(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	result, err := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b", Message: "   "})
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	want := "Hi Bob! I'd love to connect for a skill exchange."
	if result.Message != want {
		t.Errorf("期望默认留言=%q，实际=%q", want, result.Message)
	}
}

func TestSwapService_Create_SenderNameFallback(t *testing.T) {
	env := newTestEnv()
	env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	// 发起方没有档案，身份中也没有姓名
	result, err := svc.Create(context.Background(), Identity{UserID: "user-x"}, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	if result.FromUserName != "User" {
		t.Errorf("期望 FromUserName=User，实际=%s", result.FromUserName)
	}
}

func TestSwapService_Create_Validation(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	env.addUser("user-b", "Bob", "bob@example.com")
	_ = env.profiles.Upsert(context.Background(), &model.Profile{UserID: "user-p", Name: "Private", IsPublic: false})
	svc := setupTestSwapService(env)

	tests := []struct {
		name string
		req  dto.CreateSwapRequestRequest
		want error
	}{
		{"向自己发起", dto.CreateSwapRequestRequest{ToUserID: "user-a"}, ErrSelfRequest},
		{"留言过长", dto.CreateSwapRequestRequest{ToUserID: "user-b", Message: strings.Repeat("长", MaxMessageLength+1)}, ErrMessageTooLong},
		{"接收方不存在", dto.CreateSwapRequestRequest{ToUserID: "user-z"}, ErrProfileNotFound},
		{"接收方档案非公开", dto.CreateSwapRequestRequest{ToUserID: "user-p"}, ErrProfileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), a, &tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际: %v", tt.want, err)
			}
		})
	}

	if !errors.Is(ErrSelfRequest, ErrValidation) || !errors.Is(ErrMessageTooLong, ErrValidation) {
		t.Error("校验类错误应归属 ErrValidation")
	}
	if len(env.notifier.kinds()) != 0 {
		t.Error("失败的创建不应产生通知")
	}
}

func TestSwapService_Create_MessageAtLimit(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	msg := strings.Repeat("é", MaxMessageLength)
	if _, err := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b", Message: msg}); err != nil {
		t.Errorf("500 个字符应允许，实际: %v", err)
	}
}

func TestSwapService_Create_DuplicateGuard(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	req := &dto.CreateSwapRequestRequest{ToUserID: "user-b"}
	if _, err := svc.Create(context.Background(), a, req); err != nil {
		t.Fatalf("第一次创建应成功: %v", err)
	}
	if _, err := svc.Create(context.Background(), a, req); !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("期望 ErrDuplicateRequest，实际: %v", err)
	}

	// 关闭开关后允许重复
	relaxed := NewSwapService(&config.FeatureConfig{DuplicateRequestGuard: false}, env.repo, env.notifier, env.publisher, zap.NewNop())
	if _, err := relaxed.Create(context.Background(), a, req); err != nil {
		t.Errorf("关闭重复校验后应成功，实际: %v", err)
	}
}

// ── Respond ──

func TestSwapService_Respond_Accept(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	b := env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	created, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})
	result, err := svc.Respond(context.Background(), created.ID, b, model.SwapStatusAccepted)
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	if result.Status != model.SwapStatusAccepted {
		t.Errorf("期望 status=accepted，实际=%s", result.Status)
	}
	if result.RespondedAt == nil {
		t.Error("RespondedAt 不应为空")
	}

	last := env.notifier.events[len(env.notifier.events)-1]
	if last.Kind != model.NotificationRequestAccepted || last.RecipientUserID != "user-a" {
		t.Errorf("期望 request_accepted 发给发起方，实际: %+v", last)
	}
}

func TestSwapService_Respond_TerminalState(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	b := env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	created, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})
	if _, err := svc.Respond(context.Background(), created.ID, b, model.SwapStatusAccepted); err != nil {
		t.Fatalf("第一次处理应成功: %v", err)
	}

	_, err := svc.Respond(context.Background(), created.ID, b, model.SwapStatusRejected)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("期望 ErrInvalidState，实际: %v", err)
	}

	stored, _ := env.requests.GetByID(context.Background(), created.ID)
	if stored.Status != model.SwapStatusAccepted {
		t.Errorf("最终状态应为第一次的决定 accepted，实际=%s", stored.Status)
	}
	if n := len(env.notifier.kinds()); n != 2 {
		t.Errorf("期望共 2 条通知（sent + accepted），实际=%d", n)
	}
}

func TestSwapService_Respond_WrongActor(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	env.addUser("user-b", "Bob", "bob@example.com")
	c := env.addUser("user-c", "Carol", "carol@example.com")
	svc := setupTestSwapService(env)

	created, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})

	admin := Identity{UserID: "admin-1", Role: model.RoleAdmin}
	for _, actor := range []Identity{a, c, admin} {
		_, err := svc.Respond(context.Background(), created.ID, actor, model.SwapStatusAccepted)
		if !errors.Is(err, ErrUnauthorizedTransition) {
			t.Errorf("%s 处理申请应返回 ErrUnauthorizedTransition，实际: %v", actor.UserID, err)
		}
	}

	stored, _ := env.requests.GetByID(context.Background(), created.ID)
	if stored.Status != model.SwapStatusPending {
		t.Errorf("越权处理后状态应保持 pending，实际=%s", stored.Status)
	}
}

func TestSwapService_Respond_InvalidDecisionAndMissing(t *testing.T) {
	env := newTestEnv()
	b := env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	if _, err := svc.Respond(context.Background(), "req-1", b, "maybe"); !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("期望 ErrInvalidDecision，实际: %v", err)
	}
	if _, err := svc.Respond(context.Background(), "missing", b, model.SwapStatusRejected); !errors.Is(err, ErrSwapRequestNotFound) {
		t.Errorf("期望 ErrSwapRequestNotFound，实际: %v", err)
	}
}

func TestSwapService_Respond_ConcurrentFirstWins(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	b := env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	created, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})

	decisions := []string{model.SwapStatusAccepted, model.SwapStatusRejected, model.SwapStatusAccepted, model.SwapStatusRejected}
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	winner := ""
	for _, d := range decisions {
		wg.Add(1)
		go func(decision string) {
			defer wg.Done()
			if _, err := svc.Respond(context.Background(), created.ID, b, decision); err == nil {
				mu.Lock()
				succeeded++
				winner = decision
				mu.Unlock()
			} else if !errors.Is(err, ErrInvalidState) {
				t.Errorf("失败的并发处理应返回 ErrInvalidState，实际: %v", err)
			}
		}(d)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("期望恰好一次处理成功，实际=%d", succeeded)
	}
	stored, _ := env.requests.GetByID(context.Background(), created.ID)
	if stored.Status != winner {
		t.Errorf("最终状态应为胜出者的决定 %s，实际=%s", winner, stored.Status)
	}
}

// ── Withdraw ──

func TestSwapService_Withdraw_RemovesFromLists(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	b := env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	created, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})
	if err := svc.Withdraw(context.Background(), created.ID, a); err != nil {
		t.Fatalf("撤回应成功: %v", err)
	}

	for _, who := range []Identity{a, b} {
		lists, err := svc.ListFor(context.Background(), who)
		if err != nil {
			t.Fatalf("ListFor 失败: %v", err)
		}
		if len(lists.Sent)+len(lists.Received) != 0 {
			t.Errorf("%s 的列表中不应再包含已撤回的申请", who.UserID)
		}
	}
	if n := len(env.notifier.kinds()); n != 1 {
		t.Errorf("撤回不应产生通知，实际通知数=%d", n)
	}
}

func TestSwapService_Withdraw_Rules(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	b := env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	created, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})

	if err := svc.Withdraw(context.Background(), created.ID, b); !errors.Is(err, ErrUnauthorizedTransition) {
		t.Errorf("接收方撤回应返回 ErrUnauthorizedTransition，实际: %v", err)
	}

	_, _ = svc.Respond(context.Background(), created.ID, b, model.SwapStatusRejected)
	if err := svc.Withdraw(context.Background(), created.ID, a); !errors.Is(err, ErrInvalidState) {
		t.Errorf("已处理的申请不可撤回，期望 ErrInvalidState，实际: %v", err)
	}

	// 管理员可删除任意状态的申请
	admin := Identity{UserID: "admin-1", Role: model.RoleAdmin}
	if err := svc.Withdraw(context.Background(), created.ID, admin); err != nil {
		t.Errorf("管理员删除应成功，实际: %v", err)
	}
	if err := svc.Withdraw(context.Background(), created.ID, admin); !errors.Is(err, ErrSwapRequestNotFound) {
		t.Errorf("重复删除应返回 ErrSwapRequestNotFound，实际: %v", err)
	}
}

// ── 查询 ──

func TestSwapService_Scenario_ListFor(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	b := env.addUser("user-b", "Bob", "bob@example.com")
	svc := setupTestSwapService(env)

	created, err := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b", Message: "Hi B! Let's swap skills."})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	la, _ := svc.ListFor(context.Background(), a)
	if len(la.Sent) != 1 || la.Sent[0].ID != created.ID || la.Sent[0].Status != model.SwapStatusPending {
		t.Errorf("A 的 sent 列表应包含该 pending 申请，实际: %+v", la.Sent)
	}
	if len(la.Received) != 0 {
		t.Errorf("A 的 received 列表应为空，实际: %+v", la.Received)
	}

	lb, _ := svc.ListFor(context.Background(), b)
	if len(lb.Received) != 1 || lb.Received[0].ID != created.ID || lb.Received[0].Status != model.SwapStatusPending {
		t.Errorf("B 的 received 列表应包含该 pending 申请，实际: %+v", lb.Received)
	}
}

func TestSwapService_ListFor_NewestFirst(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	env.addUser("user-b", "Bob", "bob@example.com")
	env.addUser("user-c", "Carol", "carol@example.com")
	svc := setupTestSwapService(env)

	first, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})
	second, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-c"})

	lists, _ := svc.ListFor(context.Background(), a)
	if len(lists.Sent) != 2 || lists.Sent[0].ID != second.ID || lists.Sent[1].ID != first.ID {
		t.Errorf("期望按创建时间倒序，实际: %+v", lists.Sent)
	}

	ids, _ := svc.PendingRecipients(context.Background(), a)
	if len(ids) != 2 || ids[0] != "user-b" || ids[1] != "user-c" {
		t.Errorf("期望待处理接收方为 [user-b user-c]，实际: %v", ids)
	}
}

func TestSwapService_Get_Visibility(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	b := env.addUser("user-b", "Bob", "bob@example.com")
	c := env.addUser("user-c", "Carol", "carol@example.com")
	svc := setupTestSwapService(env)

	created, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})

	for _, who := range []Identity{a, b, {UserID: "admin-1", Role: model.RoleAdmin}} {
		if _, err := svc.Get(context.Background(), created.ID, who); err != nil {
			t.Errorf("%s 应可见，实际: %v", who.UserID, err)
		}
	}
	if _, err := svc.Get(context.Background(), created.ID, c); !errors.Is(err, ErrSwapRequestNotFound) {
		t.Errorf("无关用户应返回 ErrSwapRequestNotFound，实际: %v", err)
	}
}

// ── 与通知投递的集成 ──

func TestSwapService_AcceptNotifiesSenderExactlyOnce(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	b := env.addUser("user-b", "Bob", "bob@example.com")
	sender := &captureSender{}
	svc, n := setupWithDispatcher(t, env, sender)

	created, _ := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})
	if _, err := svc.Respond(context.Background(), created.ID, b, model.SwapStatusAccepted); err != nil {
		t.Fatalf("处理失败: %v", err)
	}
	drain(t, n)

	accepted := 0
	for _, m := range sender.sent {
		if m.Tags["type"] == model.NotificationRequestAccepted {
			accepted++
			if m.To != "alice@example.com" {
				t.Errorf("request_accepted 应发往 A 的邮箱，实际=%s", m.To)
			}
		}
	}
	if accepted != 1 {
		t.Errorf("期望恰好一封 request_accepted 邮件，实际=%d", accepted)
	}
}

func TestSwapService_DispatchFailureDoesNotRevert(t *testing.T) {
	env := newTestEnv()
	a := env.addUser("user-a", "Alice", "alice@example.com")
	b := env.addUser("user-b", "Bob", "bob@example.com")
	sender := &captureSender{err: mail.ErrSendFailed}
	svc, n := setupWithDispatcher(t, env, sender)

	created, err := svc.Create(context.Background(), a, &dto.CreateSwapRequestRequest{ToUserID: "user-b"})
	if err != nil {
		t.Fatalf("邮件失败不应影响创建: %v", err)
	}
	result, err := svc.Respond(context.Background(), created.ID, b, model.SwapStatusRejected)
	if err != nil {
		t.Fatalf("邮件失败不应影响处理: %v", err)
	}
	drain(t, n)

	stored, _ := env.requests.GetByID(context.Background(), created.ID)
	if stored.Status != model.SwapStatusRejected || result.Status != model.SwapStatusRejected {
		t.Errorf("投递失败后状态应保持 rejected，实际=%s", stored.Status)
	}

	failed := 0
	for _, row := range env.notes.rows {
		if row.Status == model.NotificationStatusFailed {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("期望记录 2 条失败的投递，实际=%d", failed)
	}
}
