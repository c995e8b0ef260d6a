package state

import (
	"context"
	"sync"
	"time"

	"github.com/uma-arai/casa25-portal/internal/model"
	"github.com/uma-arai/casa25-portal/internal/repository"
	"github.com/uma-arai/casa25-portal/internal/service/notice"
)

var bogota = time.FixedZone("COT", -5*60*60)

// eventLog はローカル書き込みとリモート送信の順序を記録します
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.events...)
}

type mockCache struct {
	mu      sync.Mutex
	saved   []model.Reservation
	loadR   model.Reservation
	loadErr error
	saveErr error
	log     *eventLog
}

func (c *mockCache) Load(ctx context.Context) (model.Reservation, error) {
	if c.loadErr != nil {
		return model.NewReservation(), c.loadErr
	}
	return c.loadR.Clone(), nil
}

func (c *mockCache) Save(ctx context.Context, r model.Reservation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saved = append(c.saved, r.Clone())
	if c.log != nil {
		c.log.add("local")
	}
	return nil
}

func (c *mockCache) saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saved)
}

func (c *mockCache) last() model.Reservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved[len(c.saved)-1]
}

type mockRemote struct {
	mu        sync.Mutex
	fetchBody []byte
	fetchErr  error
	// fetchGate が設定されている場合、FetchStateはcloseされるまで待ちます
	fetchGate chan struct{}
	pinBody   map[string][]byte
	postErr   error
	saved     [][]byte
	feedbacks []repository.FeedbackEntry
	log       *eventLog
}

func (r *mockRemote) FetchState(ctx context.Context) ([]byte, error) {
	if r.fetchGate != nil {
		<-r.fetchGate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchBody, r.fetchErr
}

func (r *mockRemote) FetchByPIN(ctx context.Context, pin string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if body, ok := r.pinBody[pin]; ok {
		return body, nil
	}
	return []byte(`{}`), nil
}

func (r *mockRemote) SaveReservation(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log != nil {
		r.log.add("remote")
	}
	if r.postErr != nil {
		return r.postErr
	}
	r.saved = append(r.saved, payload)
	return nil
}

func (r *mockRemote) AddFeedback(ctx context.Context, entry repository.FeedbackEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.postErr != nil {
		return r.postErr
	}
	r.feedbacks = append(r.feedbacks, entry)
	return nil
}

func (r *mockRemote) feedbackEntries() []repository.FeedbackEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]repository.FeedbackEntry{}, r.feedbacks...)
}

type mockPoster struct {
	mu       sync.Mutex
	messages []string
}

func (p *mockPoster) Post(level notice.Level, message string) notice.Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return notice.Notice{Level: level, Message: message}
}

func (p *mockPoster) list() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.messages...)
}

type mockCompletion struct {
	mu    sync.Mutex
	calls []model.Reservation
}

func (c *mockCompletion) NotifyCompletion(ctx context.Context, r model.Reservation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, r)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleReservation() model.Reservation {
	r := model.NewReservation()
	r.GuestName = "Manuela"
	r.GuestPin = "8505"
	r.DoorCode = "0008505#"
	r.CheckIn = time.Date(2026, 1, 30, 15, 0, 0, 0, bogota)
	r.CheckOut = time.Date(2026, 2, 1, 13, 0, 0, 0, bogota)
	r.MaxGuests = 3
	r.PetsAllowed = model.PetsOneUnderRules
	return r
}
