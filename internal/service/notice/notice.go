package notice

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Level は通知の種類です
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// DefaultTTL は通知の表示時間です
const DefaultTTL = 3 * time.Second

// Notice は画面に一時的に表示されるメッセージです
type Notice struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Poster は通知を掲示する側のインターフェースです
type Poster interface {
	Post(level Level, message string) Notice
}

// Board は一定時間で自動的に消える通知の掲示板です
type Board struct {
	items *cache.Cache
	ttl   time.Duration
	now   func() time.Time

	mu  sync.Mutex
	seq uint64
	// order はIDごとの掲示順です
	order map[string]uint64
}

// NewBoard は新しいBoardを作成します
func NewBoard(ttl time.Duration) *Board {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b := &Board{
		items: cache.New(ttl, ttl),
		ttl:   ttl,
		now:   time.Now,
		order: make(map[string]uint64),
	}
	b.items.OnEvicted(func(id string, _ interface{}) {
		b.mu.Lock()
		delete(b.order, id)
		b.mu.Unlock()
	})
	return b
}

// Post は通知を掲示します
func (b *Board) Post(level Level, message string) Notice {
	now := b.now()
	n := Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(b.ttl),
	}

	b.mu.Lock()
	b.seq++
	b.order[n.ID] = b.seq
	b.mu.Unlock()

	b.items.SetDefault(n.ID, n)
	return n
}

// Active は表示中の通知を掲示順に返します
func (b *Board) Active() []Notice {
	items := b.items.Items()
	out := make([]Notice, 0, len(items))
	for _, item := range items {
		if n, ok := item.Object.(Notice); ok {
			out = append(out, n)
		}
	}

	b.mu.Lock()
	sort.Slice(out, func(i, j int) bool {
		return b.order[out[i].ID] < b.order[out[j].ID]
	})
	b.mu.Unlock()
	return out
}

// Dismiss は通知を表示時間より前に消します
func (b *Board) Dismiss(id string) {
	b.items.Delete(id)
}
