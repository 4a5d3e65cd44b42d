package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"skill-swap/backend/internal/model"
	"skill-swap/backend/internal/notify"
	"skill-swap/backend/internal/realtime"
	"skill-swap/backend/internal/repository"
	pkgerrors "skill-swap/backend/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.UserID == "" {
		m.seq++
		user.UserID = fmt.Sprintf("user-%d", m.seq)
	}
	user.CreatedAt = time.Now()
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) MarkEmailConfirmed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.EmailConfirmedAt = &at
	return nil
}

func (m *mockUserRepo) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

// ── Mock ProfileRepository ──

type mockProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[string]*model.Profile)}
}

func (m *mockProfileRepo) Get(_ context.Context, userID string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockProfileRepo) Upsert(_ context.Context, profile *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *profile
	if old, ok := m.profiles[profile.UserID]; ok {
		cp.ProfilePicture = old.ProfilePicture
		cp.CreatedAt = old.CreatedAt
	} else {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	m.profiles[profile.UserID] = &cp
	return nil
}

func (m *mockProfileRepo) UpdatePicture(_ context.Context, userID string, picture *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.ProfilePicture = picture
	return nil
}

func (m *mockProfileRepo) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[userID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.profiles, userID)
	return nil
}

func (m *mockProfileRepo) ListPublic(_ context.Context, filter *repository.ProfileFilter) ([]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Profile
	for _, p := range m.profiles {
		if !p.IsPublic || p.UserID == filter.ExcludeUserID {
			continue
		}
		if filter.Keyword != "" && !profileMatches(p, filter.Keyword) {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func profileMatches(p *model.Profile, keyword string) bool {
	kw := strings.ToLower(keyword)
	fields := append([]string{p.Name, p.Location}, p.SkillsOffered...)
	fields = append(fields, p.SkillsWanted...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), kw) {
			return true
		}
	}
	return false
}

func (m *mockProfileRepo) ListAll(_ context.Context, offset, limit int) ([]model.Profile, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Profile
	for _, p := range m.profiles {
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockProfileRepo) CountPublic(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.profiles {
		if p.IsPublic {
			n++
		}
	}
	return n, nil
}

// ── Mock SwapRequestRepository ──
// 条件更新 / 删除与数据库实现一致：条件不满足时返回 ErrStaleState

type mockSwapRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*model.SwapRequest
	seq      int
	clock    time.Time
}

func newMockSwapRequestRepo() *mockSwapRequestRepo {
	return &mockSwapRequestRepo{
		requests: make(map[string]*model.SwapRequest),
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockSwapRequestRepo) Create(_ context.Context, req *model.SwapRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	req.ID = fmt.Sprintf("req-%d", m.seq)
	m.clock = m.clock.Add(time.Second)
	req.CreatedAt = m.clock
	req.UpdatedAt = m.clock
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockSwapRequestRepo) GetByID(_ context.Context, id string) (*model.SwapRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.requests[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSwapRequestRepo) sorted(keep func(r *model.SwapRequest) bool) []model.SwapRequest {
	var result []model.SwapRequest
	for _, r := range m.requests {
		if keep(r) {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

func (m *mockSwapRequestRepo) ListForUser(_ context.Context, userID string) ([]model.SwapRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(r *model.SwapRequest) bool { return r.Involves(userID) }), nil
}

func (m *mockSwapRequestRepo) List(_ context.Context, filter *repository.SwapRequestFilter, offset, limit int) ([]model.SwapRequest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(r *model.SwapRequest) bool {
		if filter.Status != "" && r.Status != filter.Status {
			return false
		}
		return filter.UserID == "" || r.Involves(filter.UserID)
	})
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockSwapRequestRepo) ExistsPending(_ context.Context, fromUserID, toUserID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.FromUserID == fromUserID && r.ToUserID == toUserID && r.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSwapRequestRepo) PendingRecipients(_ context.Context, fromUserID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, r := range m.requests {
		if r.FromUserID == fromUserID && r.IsPending() {
			ids = append(ids, r.ToUserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockSwapRequestRepo) Transition(_ context.Context, id, toUserID, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.ToUserID != toUserID || !r.IsPending() {
		return pkgerrors.ErrStaleState
	}
	r.Status = status
	r.RespondedAt = &at
	r.UpdatedAt = at
	return nil
}

func (m *mockSwapRequestRepo) DeletePending(_ context.Context, id, fromUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.FromUserID != fromUserID || !r.IsPending() {
		return pkgerrors.ErrStaleState
	}
	delete(m.requests, id)
	return nil
}

func (m *mockSwapRequestRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.requests, id)
	return nil
}

func (m *mockSwapRequestRepo) DeletePendingByUser(_ context.Context, userID string) ([]model.SwapRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := m.sorted(func(r *model.SwapRequest) bool { return r.Involves(userID) && r.IsPending() })
	for _, r := range removed {
		delete(m.requests, r.ID)
	}
	return removed, nil
}

func (m *mockSwapRequestRepo) CountByStatus(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int64)
	for _, r := range m.requests {
		counts[r.Status]++
	}
	return counts, nil
}

// ── Mock Notification / Preference ──

type mockNotificationRepo struct {
	mu   sync.Mutex
	rows []model.Notification
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.NotificationID = fmt.Sprintf("n-%d", len(m.rows)+1)
	n.CreatedAt = time.Now()
	m.rows = append(m.rows, *n)
	return nil
}

func (m *mockNotificationRepo) List(_ context.Context, requestID string, offset, limit int) ([]model.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Notification
	for _, n := range m.rows {
		if requestID == "" || (n.RequestID != nil && *n.RequestID == requestID) {
			result = append(result, n)
		}
	}
	total := int64(len(result))
	if offset >= len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

type mockPreferenceRepo struct {
	mu    sync.Mutex
	prefs map[string]bool
}

func newMockPreferenceRepo() *mockPreferenceRepo {
	return &mockPreferenceRepo{prefs: make(map[string]bool)}
}

func (m *mockPreferenceRepo) Get(_ context.Context, userID string) (*model.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.prefs[userID]
	if !ok {
		v = true
	}
	return &model.NotificationPreference{UserID: userID, SwapEmails: v}, nil
}

func (m *mockPreferenceRepo) Upsert(_ context.Context, pref *model.NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[pref.UserID] = pref.SwapEmails
	return nil
}

// ── 通知 / 事件替身 ──

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []string
	for _, ev := range n.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

// ── 测试环境 ──

type testEnv struct {
	repo      *repository.Repository
	users     *mockUserRepo
	profiles  *mockProfileRepo
	requests  *mockSwapRequestRepo
	notes     *mockNotificationRepo
	prefs     *mockPreferenceRepo
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:     newMockUserRepo(),
		profiles:  newMockProfileRepo(),
		requests:  newMockSwapRequestRepo(),
		notes:     &mockNotificationRepo{},
		prefs:     newMockPreferenceRepo(),
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	env.repo = &repository.Repository{
		User:         env.users,
		Profile:      env.profiles,
		SwapRequest:  env.requests,
		Notification: env.notes,
		Preference:   env.prefs,
	}
	return env
}

// addUser 创建账号与公开档案
func (env *testEnv) addUser(id, name, email string) Identity {
	_ = env.users.Create(context.Background(), &model.User{UserID: id, Name: name, Email: email, Role: model.RoleUser})
	_ = env.profiles.Upsert(context.Background(), &model.Profile{UserID: id, Name: name, Email: email, IsPublic: true})
	return Identity{UserID: id, Name: name, Email: email, Role: model.RoleUser}
}
