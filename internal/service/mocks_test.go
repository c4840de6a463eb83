package service

import (
	"bytes"
	"context"
	"sync"
	"time"

	"leadrelay/internal/events"
	"leadrelay/internal/models"
	relaytypes "leadrelay/pkg/relayapi/types"
	tgtypes "leadrelay/pkg/telegram/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

type mockPrimaryClient struct {
	mock.Mock
}

func (m *mockPrimaryClient) Send(ctx context.Context, data models.FieldSet, formType string) (*relaytypes.SendResponse, error) {
	args := m.Called(ctx, data, formType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relaytypes.SendResponse), args.Error(1)
}

type mockBotClient struct {
	mock.Mock
}

func (m *mockBotClient) SendMessage(ctx context.Context, chatID, text string) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tgtypes.Message), args.Error(1)
}

func (m *mockBotClient) GetUpdates(ctx context.Context) ([]tgtypes.Update, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]tgtypes.Update), args.Error(1)
}

// mockStore wraps an in-memory map and lets tests inject failures
type mockStore struct {
	mu        sync.Mutex
	values    map[string]string
	gets      int
	failGet   error
	failSet   error
	updateErr error
}

func newMockStore() *mockStore {
	return &mockStore{values: make(map[string]string)}
}

func (s *mockStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failGet != nil {
		return "", false, s.failGet
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *mockStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.values[key] = value
	return nil
}

func (s *mockStore) Update(_ context.Context, key string, fn func(string, bool) (string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	current, exists := s.values[key]
	next, err := fn(current, exists)
	if err != nil {
		return err
	}
	s.values[key] = next
	return nil
}

func (s *mockStore) raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// steppingClock advances by step on every call
type steppingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(evt events.DeliveryEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt.Type)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}
