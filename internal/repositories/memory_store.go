package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"pairchat/internal/models"
)

// NewMemoryStore returns repositories held in process memory. Values are copied
// on the way in and out so callers never share slices with the store.
func NewMemoryStore() Store {
	data := &memoryData{
		users:    map[string]models.User{},
		messages: map[string]memoryMessage{},
		requests: map[string]models.ChatRequest{},
	}
	return Store{
		Users:    &MemoryUserRepo{data: data},
		Messages: &MemoryMessageRepo{data: data},
		Requests: &MemoryChatRequestRepo{data: data},
	}
}

type memoryData struct {
	mu       sync.RWMutex
	users    map[string]models.User
	messages map[string]memoryMessage
	requests map[string]models.ChatRequest
	seq      int64
}

type memoryMessage struct {
	msg models.Message
	seq int64
}

// MemoryUserRepo is an in-memory UserRepository.
type MemoryUserRepo struct {
	data *memoryData
}

func (r *MemoryUserRepo) Create(_ context.Context, user models.User) (models.User, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	now := time.Now().UTC()
	if user.Status == "" {
		user.Status = models.StatusOffline
	}
	user.CreatedAt, user.UpdatedAt = now, now
	if user.LastSeen.IsZero() {
		user.LastSeen = now
	}
	r.data.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (r *MemoryUserRepo) GetUser(_ context.Context, id string) (models.User, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	u, ok := r.data.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUserRepo) GetUsers(_ context.Context, ids []string) ([]models.User, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	var users []models.User
	for _, id := range ids {
		if u, ok := r.data.users[id]; ok {
			users = append(users, cloneUser(u))
		}
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (r *MemoryUserRepo) SetPresence(_ context.Context, id string, online bool, lastSeen time.Time) error {
	return r.update(id, func(u *models.User) {
		u.IsOnline = online
		u.LastSeen = lastSeen
	})
}

func (r *MemoryUserRepo) SetStatus(_ context.Context, id string, status models.Status) error {
	return r.update(id, func(u *models.User) { u.Status = status })
}

func (r *MemoryUserRepo) AddFriendship(_ context.Context, a, b string) error {
	return r.updatePair(a, b, func(u *models.User, other string) {
		u.Friends = addToSet(u.Friends, other)
	})
}

func (r *MemoryUserRepo) RemoveFriendship(_ context.Context, a, b string) error {
	return r.updatePair(a, b, func(u *models.User, other string) {
		u.Friends = pull(u.Friends, other)
	})
}

func (r *MemoryUserRepo) Block(_ context.Context, blockerID, blockedID string) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	blocker, ok := r.data.users[blockerID]
	if !ok {
		return ErrUserNotFound
	}
	blocked, ok := r.data.users[blockedID]
	if !ok {
		return ErrUserNotFound
	}
	blocker.BlockedUsers = addToSet(blocker.BlockedUsers, blockedID)
	blocker.Friends = pull(blocker.Friends, blockedID)
	blocked.Friends = pull(blocked.Friends, blockerID)
	r.data.users[blockerID] = blocker
	r.data.users[blockedID] = blocked
	return nil
}

func (r *MemoryUserRepo) Unblock(_ context.Context, blockerID, blockedID string) error {
	return r.update(blockerID, func(u *models.User) {
		u.BlockedUsers = pull(u.BlockedUsers, blockedID)
	})
}

func (r *MemoryUserRepo) PutIncognito(_ context.Context, userID string, rec models.IncognitoRecord) error {
	return r.update(userID, func(u *models.User) {
		u.IncognitoChats = slices.DeleteFunc(u.IncognitoChats, func(e models.IncognitoRecord) bool { return e.ChatID == rec.ChatID })
		u.IncognitoChats = append(u.IncognitoChats, rec)
	})
}

func (r *MemoryUserRepo) RemoveIncognito(_ context.Context, userID, chatID string) error {
	return r.update(userID, func(u *models.User) {
		u.IncognitoChats = slices.DeleteFunc(u.IncognitoChats, func(e models.IncognitoRecord) bool { return e.ChatID == chatID })
	})
}

func (r *MemoryUserRepo) RemoveExpiredIncognito(_ context.Context, userID, chatID string, now time.Time) error {
	return r.update(userID, func(u *models.User) {
		u.IncognitoChats = slices.DeleteFunc(u.IncognitoChats, func(e models.IncognitoRecord) bool {
			return e.ChatID == chatID && !e.ExpiresAt.After(now)
		})
	})
}

func (r *MemoryUserRepo) ListWithIncognito(_ context.Context) ([]models.User, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	var users []models.User
	for _, u := range r.data.users {
		if len(u.IncognitoChats) > 0 {
			users = append(users, cloneUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryUserRepo) update(id string, fn func(u *models.User)) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	u, ok := r.data.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u = cloneUser(u)
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.data.users[id] = u
	return nil
}

func (r *MemoryUserRepo) updatePair(a, b string, fn func(u *models.User, other string)) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	ua, ok := r.data.users[a]
	if !ok {
		return ErrUserNotFound
	}
	ub, ok := r.data.users[b]
	if !ok {
		return ErrUserNotFound
	}
	ua, ub = cloneUser(ua), cloneUser(ub)
	fn(&ua, b)
	fn(&ub, a)
	r.data.users[a] = ua
	r.data.users[b] = ub
	return nil
}

// MemoryMessageRepo is an in-memory MessageRepository.
type MemoryMessageRepo struct {
	data *memoryData
}

func (r *MemoryMessageRepo) Create(_ context.Context, msg models.Message) (models.Message, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	r.data.seq++
	msg.Reactions = nonNilReactions(msg.Reactions)
	msg.UpdatedAt = msg.CreatedAt
	r.data.messages[msg.ID] = memoryMessage{msg: cloneMessage(msg), seq: r.data.seq}
	return cloneMessage(msg), nil
}

func (r *MemoryMessageRepo) Get(_ context.Context, id string) (models.Message, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	m, ok := r.data.messages[id]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return cloneMessage(m.msg), nil
}

func (r *MemoryMessageRepo) ListByChat(_ context.Context, chatID string, limit int) ([]models.Message, error) {
	msgs := r.filter(func(m models.Message) bool { return m.ChatID == chatID })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (r *MemoryMessageRepo) ListIDsByChat(_ context.Context, chatID string) ([]string, error) {
	msgs := r.filter(func(m models.Message) bool { return m.ChatID == chatID })
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (r *MemoryMessageRepo) ListUndelivered(_ context.Context, receiverID string) ([]models.Message, error) {
	return r.filter(func(m models.Message) bool {
		return m.ReceiverID == receiverID && !m.IsDelivered && !m.IsDeleted
	}), nil
}

func (r *MemoryMessageRepo) MarkDelivered(_ context.Context, id string, at time.Time) (bool, error) {
	var changed bool
	err := r.update(id, func(m *models.Message) { changed = m.MarkDelivered(at) })
	return changed, err
}

func (r *MemoryMessageRepo) MarkRead(_ context.Context, id string, at time.Time) (bool, error) {
	var changed bool
	err := r.update(id, func(m *models.Message) { changed = m.MarkRead(at) })
	return changed, err
}

func (r *MemoryMessageRepo) MarkChatRead(_ context.Context, chatID, senderID string, at time.Time) (int, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	count := 0
	for id, entry := range r.data.messages {
		if entry.msg.ChatID != chatID || entry.msg.SenderID != senderID {
			continue
		}
		if entry.msg.MarkRead(at) {
			entry.msg.UpdatedAt = time.Now().UTC()
			r.data.messages[id] = entry
			count++
		}
	}
	return count, nil
}

func (r *MemoryMessageRepo) UpdateReactions(_ context.Context, id string, reactions []models.Reaction) error {
	return r.update(id, func(m *models.Message) {
		m.Reactions = append([]models.Reaction{}, reactions...)
	})
}

func (r *MemoryMessageRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(m *models.Message) { m.SoftDelete(at) })
}

func (r *MemoryMessageRepo) Delete(_ context.Context, id string) (bool, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	_, ok := r.data.messages[id]
	delete(r.data.messages, id)
	return ok, nil
}

func (r *MemoryMessageRepo) DeleteByChat(_ context.Context, chatID string) (int, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	count := 0
	for id, entry := range r.data.messages {
		if entry.msg.ChatID == chatID {
			delete(r.data.messages, id)
			count++
		}
	}
	return count, nil
}

// filter returns matching messages ordered by creation time, then insertion order.
func (r *MemoryMessageRepo) filter(keep func(models.Message) bool) []models.Message {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	entries := make([]memoryMessage, 0)
	for _, entry := range r.data.messages {
		if keep(entry.msg) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].msg.CreatedAt.Equal(entries[j].msg.CreatedAt) {
			return entries[i].msg.CreatedAt.Before(entries[j].msg.CreatedAt)
		}
		return entries[i].seq < entries[j].seq
	})
	msgs := make([]models.Message, 0, len(entries))
	for _, entry := range entries {
		msgs = append(msgs, cloneMessage(entry.msg))
	}
	return msgs
}

func (r *MemoryMessageRepo) update(id string, fn func(m *models.Message)) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	entry, ok := r.data.messages[id]
	if !ok {
		return ErrMessageNotFound
	}
	entry.msg = cloneMessage(entry.msg)
	fn(&entry.msg)
	entry.msg.UpdatedAt = time.Now().UTC()
	r.data.messages[id] = entry
	return nil
}

// MemoryChatRequestRepo is an in-memory ChatRequestRepository.
type MemoryChatRequestRepo struct {
	data *memoryData
}

func (r *MemoryChatRequestRepo) Create(_ context.Context, req models.ChatRequest) (models.ChatRequest, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	if req.Status == models.RequestPending {
		for _, existing := range r.data.requests {
			if existing.PairKey == req.PairKey && existing.Status == models.RequestPending {
				return models.ChatRequest{}, ErrPendingRequestExists
			}
		}
	}
	req.UpdatedAt = req.CreatedAt
	r.data.requests[req.ID] = req
	return req, nil
}

func (r *MemoryChatRequestRepo) Get(_ context.Context, id string) (models.ChatRequest, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	req, ok := r.data.requests[id]
	if !ok {
		return models.ChatRequest{}, ErrChatRequestNotFound
	}
	return req, nil
}

func (r *MemoryChatRequestRepo) FindPending(_ context.Context, pairKey string) (models.ChatRequest, error) {
	reqs := r.list(func(req models.ChatRequest) bool {
		return req.PairKey == pairKey && req.Status == models.RequestPending
	})
	if len(reqs) == 0 {
		return models.ChatRequest{}, ErrChatRequestNotFound
	}
	return reqs[0], nil
}

func (r *MemoryChatRequestRepo) Latest(_ context.Context, pairKey string) (models.ChatRequest, error) {
	reqs := r.list(func(req models.ChatRequest) bool { return req.PairKey == pairKey })
	if len(reqs) == 0 {
		return models.ChatRequest{}, ErrChatRequestNotFound
	}
	return reqs[0], nil
}

func (r *MemoryChatRequestRepo) ListPending(_ context.Context, userID string) ([]models.ChatRequest, error) {
	return r.list(func(req models.ChatRequest) bool {
		return req.Status == models.RequestPending && req.Involves(userID)
	}), nil
}

func (r *MemoryChatRequestRepo) Resolve(_ context.Context, id string, status models.RequestStatus, at time.Time) (models.ChatRequest, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	req, ok := r.data.requests[id]
	if !ok || req.Status != models.RequestPending {
		return models.ChatRequest{}, ErrChatRequestNotFound
	}
	req.Status = status
	req.UpdatedAt = at
	r.data.requests[id] = req
	return req, nil
}

func (r *MemoryChatRequestRepo) DeletePending(_ context.Context, id string) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	req, ok := r.data.requests[id]
	if !ok || req.Status != models.RequestPending {
		return ErrChatRequestNotFound
	}
	delete(r.data.requests, id)
	return nil
}

// list returns matching requests, newest first.
func (r *MemoryChatRequestRepo) list(keep func(models.ChatRequest) bool) []models.ChatRequest {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	var reqs []models.ChatRequest
	for _, req := range r.data.requests {
		if keep(req) {
			reqs = append(reqs, req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs
}

func cloneUser(u models.User) models.User {
	u.Friends = append([]string{}, u.Friends...)
	u.BlockedUsers = append([]string{}, u.BlockedUsers...)
	u.IncognitoChats = append([]models.IncognitoRecord{}, u.IncognitoChats...)
	return u
}

func cloneMessage(m models.Message) models.Message {
	m.Reactions = append([]models.Reaction{}, m.Reactions...)
	if m.ReplyTo != nil {
		reply := *m.ReplyTo
		m.ReplyTo = &reply
	}
	return m
}

func addToSet(set []string, v string) []string {
	if slices.Contains(set, v) {
		return set
	}
	return append(set, v)
}

func pull(set []string, v string) []string {
	return slices.DeleteFunc(set, func(e string) bool { return e == v })
}
