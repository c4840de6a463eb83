package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"leadrelay/internal/constants"
	"leadrelay/internal/errors"
	tgtypes "leadrelay/pkg/telegram/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func update(id int64, chatID int64) tgtypes.Update {
	return tgtypes.Update{
		UpdateID: id,
		Message:  &tgtypes.Message{MessageID: id, Chat: tgtypes.Chat{ID: chatID, Type: "private"}},
	}
}

func TestIdentityResolver_StaticChatID(t *testing.T) {
	bot := &mockBotClient{}
	r := NewIdentityResolver("555", newMockStore(), bot, quietLogger())

	id, err := r.Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "555", id)
	bot.AssertNotCalled(t, "GetUpdates", mock.Anything)
}

func TestIdentityResolver_PollsOnceThenUsesCache(t *testing.T) {
	store := newMockStore()
	bot := &mockBotClient{}
	bot.On("GetUpdates", mock.Anything).Return([]tgtypes.Update{update(1, 111), update(2, 222)}, nil).Once()
	r := NewIdentityResolver("", store, bot, quietLogger())

	for i := 0; i < 3; i++ {
		id, err := r.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "222", id)
	}

	bot.AssertNumberOfCalls(t, "GetUpdates", 1)
	cached, ok := store.raw(constants.ChatIdentityKey)
	assert.True(t, ok)
	assert.Equal(t, "222", cached)
}

func TestIdentityResolver_SkipsUpdatesWithoutMessage(t *testing.T) {
	bot := &mockBotClient{}
	bot.On("GetUpdates", mock.Anything).Return([]tgtypes.Update{
		update(1, -100123),
		{UpdateID: 2},
	}, nil).Once()
	r := NewIdentityResolver("", newMockStore(), bot, quietLogger())

	id, err := r.Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "-100123", id)
}

func TestIdentityResolver_Unresolvable(t *testing.T) {
	tests := []struct {
		name    string
		updates []tgtypes.Update
		err     error
	}{
		{name: "no updates", updates: []tgtypes.Update{}},
		{name: "updates without messages", updates: []tgtypes.Update{{UpdateID: 3}}},
		{name: "poll failure", err: errors.NewTransportError(constants.ChannelSecondary, stderrors.New("connection refused"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &mockBotClient{}
			if tt.err != nil {
				bot.On("GetUpdates", mock.Anything).Return(nil, tt.err).Once()
			} else {
				bot.On("GetUpdates", mock.Anything).Return(tt.updates, nil).Once()
			}
			r := NewIdentityResolver("", newMockStore(), bot, quietLogger())

			_, err := r.Resolve(context.Background())

			assert.True(t, errors.HasCode(err, errors.ErrCodeIdentityUnresolvable))
		})
	}
}

func TestIdentityResolver_PersistFailureStillResolves(t *testing.T) {
	store := newMockStore()
	store.failSet = stderrors.New("disk full")
	bot := &mockBotClient{}
	bot.On("GetUpdates", mock.Anything).Return([]tgtypes.Update{update(1, 77)}, nil).Once()
	r := NewIdentityResolver("", store, bot, quietLogger())

	id, err := r.Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "77", id)
}

func TestIdentityResolver_ConcurrentColdCachePollsOnce(t *testing.T) {
	store := newMockStore()
	bot := &mockBotClient{}
	bot.On("GetUpdates", mock.Anything).Return([]tgtypes.Update{update(1, 99)}, nil).Once()
	r := NewIdentityResolver("", store, bot, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Resolve(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "99", id)
		}()
	}
	wg.Wait()

	bot.AssertNumberOfCalls(t, "GetUpdates", 1)
}

func TestIdentityResolver_CacheReadFailureFallsBackToPoll(t *testing.T) {
	store := newMockStore()
	store.failGet = stderrors.New("database is locked")
	bot := &mockBotClient{}
	bot.On("GetUpdates", mock.Anything).Return([]tgtypes.Update{update(4, 404)}, nil).Once()
	r := NewIdentityResolver("", store, bot, quietLogger())

	id, err := r.Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "404", id)
	assert.Equal(t, 1, store.gets)
}
