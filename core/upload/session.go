package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("invalid upload session")

// Session tracks one chunked upload. Chunks go straight into a multipart
// upload of the object store; the session only remembers their ETags.
type Session struct {
	ID          string       `json:"sessionId"`
	ProductID   string       `json:"productId"`
	Role        storage.Role `json:"fileType"`
	FileName    string       `json:"fileName"`
	ContentType string       `json:"contentType"`
	Size        int64        `json:"fileSize"`
	TotalChunks int          `json:"totalChunks"`
	Chapter     int          `json:"chapter,omitempty"`
	Key         string       `json:"key"`
	UploadID    string       `json:"-"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// SessionStore keeps sessions for a limited time, extended by every part.
// AddPart returns how many distinct parts the session holds afterwards and
// their total size in bytes.
type SessionStore interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	AddPart(ctx context.Context, id string, p storage.Part) (int, int64, error)
	Parts(ctx context.Context, id string) ([]storage.Part, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process. It fits a single instance only.
type MemoryStore struct {
	ttl      time.Duration
	sessions map[string]*memSession
	expired  func(Session)
	mu       sync.Mutex
	done     chan struct{}
	stop     sync.Once
}

type memSession struct {
	session Session
	parts   map[int32]storage.Part
	expires time.Time
}

func NewMemoryStore(ttl, sweepEvery time.Duration) *MemoryStore {
	m := &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*memSession),
		done:     make(chan struct{}),
	}
	go m.refresh(sweepEvery)
	return m
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = &memSession{
		session: s,
		parts:   make(map[int32]storage.Part),
		expires: time.Now().Add(m.ttl),
	}
	return nil
}

func (m *MemoryStore) live(id string) (*memSession, error) {
	ms, ok := m.sessions[id]
	if !ok || time.Now().After(ms.expires) {
		return nil, ErrSessionNotFound
	}
	return ms, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, err := m.live(id)
	if err != nil {
		return Session{}, err
	}
	return ms.session, nil
}

func (m *MemoryStore) AddPart(_ context.Context, id string, p storage.Part) (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, err := m.live(id)
	if err != nil {
		return 0, 0, err
	}
	ms.parts[p.Number] = p
	ms.expires = time.Now().Add(m.ttl)

	var total int64
	for _, part := range ms.parts {
		total += part.Size
	}
	return len(ms.parts), total, nil
}

func (m *MemoryStore) Parts(_ context.Context, id string) ([]storage.Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, err := m.live(id)
	if err != nil {
		return nil, err
	}

	parts := make([]storage.Part, 0, len(ms.parts))
	for _, p := range ms.parts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// OnExpire registers fn to be called with every session the sweep drops.
func (m *MemoryStore) OnExpire(fn func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired = fn
}

// Stop ends the background sweep.
func (m *MemoryStore) Stop() {
	m.stop.Do(func() { close(m.done) })
}

func (m *MemoryStore) refresh(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-t.C:
			m.sweep(time.Now())
		}
	}
}

func (m *MemoryStore) sweep(now time.Time) {
	m.mu.Lock()
	var gone []Session
	for id, ms := range m.sessions {
		if now.After(ms.expires) {
			delete(m.sessions, id)
			gone = append(gone, ms.session)
		}
	}
	fn := m.expired
	m.mu.Unlock()

	if fn == nil {
		return
	}
	for _, s := range gone {
		fn(s)
	}
}

const (
	sessionField = "session"
	partPrefix   = "part:"
)

// RedisStore keeps every session in one hash that expires with the session.
// Expiry drops the hash only; multipart uploads it leaves open are reclaimed
// by the bucket's incomplete multipart upload lifecycle rule.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return "upload:session:" + id
}

func (s *RedisStore) Create(ctx context.Context, sess Session) error {
	raw, err := json.Marshal(redisSession{Session: sess, UploadID: sess.UploadID})
	if err != nil {
		return fmt.Errorf("encoding upload session: %w", err)
	}

	key := sessionKey(sess.ID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, sessionField, raw)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing upload session[%s]: %w", sess.ID, err)
	}
	return nil
}

// redisSession carries the fields Session hides from JSON responses.
type redisSession struct {
	Session
	UploadID string `json:"uploadId"`
}

func (s *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	raw, err := s.client.HGet(ctx, sessionKey(id), sessionField).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("loading upload session[%s]: %w", id, err)
	}

	var rs redisSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return Session{}, fmt.Errorf("decoding upload session[%s]: %w", id, err)
	}
	rs.Session.UploadID = rs.UploadID
	return rs.Session, nil
}

func (s *RedisStore) AddPart(ctx context.Context, id string, p storage.Part) (int, int64, error) {
	key := sessionKey(id)

	exists, err := s.client.HExists(ctx, key, sessionField).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("loading upload session[%s]: %w", id, err)
	}
	if !exists {
		return 0, 0, ErrSessionNotFound
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return 0, 0, fmt.Errorf("encoding part %d: %w", p.Number, err)
	}

	var all *redis.MapStringStringCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, partPrefix+strconv.Itoa(int(p.Number)), raw)
		all = pipe.HGetAll(ctx, key)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("recording part %d of upload session[%s]: %w", p.Number, id, err)
	}

	parts, err := decodeParts(id, all.Val())
	if err != nil {
		return 0, 0, err
	}

	var total int64
	for _, part := range parts {
		total += part.Size
	}
	return len(parts), total, nil
}

func (s *RedisStore) Parts(ctx context.Context, id string) ([]storage.Part, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading parts of upload session[%s]: %w", id, err)
	}
	if _, ok := fields[sessionField]; !ok {
		return nil, ErrSessionNotFound
	}
	return decodeParts(id, fields)
}

func decodeParts(id string, fields map[string]string) ([]storage.Part, error) {
	parts := make([]storage.Part, 0, len(fields))
	for f, raw := range fields {
		num, ok := strings.CutPrefix(f, partPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("upload session[%s] holds a bad part field %q", id, f)
		}

		var p storage.Part
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decoding part %d of upload session[%s]: %w", n, id, err)
		}
		p.Number = int32(n)
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("deleting upload session[%s]: %w", id, err)
	}
	return nil
}
