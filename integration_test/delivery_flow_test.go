package integration_test

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"testing"
	"time"

	"leadrelay/internal/constants"
	"leadrelay/internal/errors"
	"leadrelay/internal/events"
	"leadrelay/internal/metrics"
	"leadrelay/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leadFields(name, phone string) models.FieldSet {
	return models.NewFieldSet(
		models.Field{Name: "name", Value: name},
		models.Field{Name: "phone", Value: phone},
		models.Field{Name: "house", Value: "Баня 6x4"},
	)
}

func browserContext() models.ClientContext {
	return models.ClientContext{
		PageURL:          "https://srub.example/catalog/banya-6x4",
		UserAgent:        "Mozilla/5.0 (integration)",
		ScreenResolution: "1920x1080",
	}
}

func TestDeliveryFlow_PrimaryAccepts(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := context.Background()

	result, err := env.dispatcher.Dispatch(ctx, leadFields("Иван", "+79001234567"), "callback", browserContext())
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Equal(t, constants.ChannelPrimary, result.Result.Via)
	assert.Equal(t, int64(1001), result.Result.MessageID)
	assert.Empty(t, result.Warning)

	sent := env.PrimaryRequests()
	require.Len(t, sent, 1)
	assert.Equal(t, "callback", sent[0].FormType)

	phone, ok := sent[0].Data.Get("phone")
	require.True(t, ok)
	assert.Equal(t, "+79001234567", phone)

	referrer, _ := sent[0].Data.Get(models.ContextKeyReferrer)
	assert.Equal(t, constants.DirectVisitReferrer, referrer)
	_, stamped := sent[0].Data.Get(models.ContextKeyTimestamp)
	assert.True(t, stamped)

	assert.Empty(t, env.BotMessages())
	assert.Zero(t, env.UpdatePolls())
	assert.Zero(t, env.BadSignatures())
}

func TestDeliveryFlow_FallsBackToBot(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SetPrimaryDown(true)
	ctx := context.Background()

	feed, unsubscribe := env.hub.Subscribe()
	defer unsubscribe()

	result, err := env.dispatcher.Dispatch(ctx, leadFields("Мария", "+79007654321"), "order", browserContext())
	require.NoError(t, err)

	assert.Equal(t, constants.ChannelSecondary, result.Result.Via)
	assert.Equal(t, int64(1), result.Result.MessageID)
	assert.Equal(t, constants.SecondaryWarning, result.Warning)

	messages := env.BotMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, strconv.FormatInt(testChatID, 10), messages[0].ChatID)
	assert.Equal(t, "HTML", messages[0].ParseMode)
	assert.Contains(t, messages[0].Text, "+79007654321")

	var types []string
	for len(types) < 2 {
		select {
		case evt := <-feed:
			types = append(types, evt.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected two events, got %v", types)
		}
	}
	assert.Equal(t, []string{events.TypeChannelFailed, events.TypeDelivered}, types)
}

func TestDeliveryFlow_IdentityPolledOnce(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SetPrimaryDown(true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.dispatcher.Dispatch(ctx, leadFields("Пётр", "+7900000000"+strconv.Itoa(i)), "callback", browserContext())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, env.UpdatePolls())
	assert.Len(t, env.BotMessages(), 3)

	cached, ok, err := env.db.Get(ctx, constants.ChatIdentityKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(testChatID, 10), cached)

	// the cached identity survives a restart
	env.Restart()
	_, err = env.dispatcher.Dispatch(ctx, leadFields("Пётр", "+79000000009"), "callback", browserContext())
	require.NoError(t, err)
	assert.Equal(t, 1, env.UpdatePolls())
}

func TestDeliveryFlow_TotalFailureQueuesThenRetryDelivers(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SetPrimaryDown(true)
	env.SetBotDown(true)
	ctx := context.Background()

	result, err := env.dispatcher.Dispatch(ctx, leadFields("Анна", "+79001112233"), "callback", browserContext())
	require.Error(t, err)
	assert.Nil(t, result)

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeTotalDeliveryFailure, appErr.Code)
	assert.Equal(t, true, appErr.Context["queued"])
	assert.True(t, strings.HasPrefix(appErr.Message, "delivery failed on all channels: primary - "))
	assert.Contains(t, appErr.Message, "secondary - ")

	_, err = env.dispatcher.Dispatch(ctx, leadFields("Олег", "+79004445566"), "order", browserContext())
	require.Error(t, err)

	pending, err := env.dispatcher.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "callback", pending[0].Record.FormType)
	assert.Equal(t, "order", pending[1].Record.FormType)
	assert.Zero(t, pending[0].Attempts)
	assert.Equal(t, appErr.Context["pending_id"], pending[0].ID)

	// a still-failing retry keeps both entries and counts the attempt
	summary, err := env.dispatcher.RetryAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Succeeded)
	assert.Len(t, summary.Failed, 2)

	pending, err = env.dispatcher.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)

	env.SetPrimaryDown(false)
	env.Restart()

	summary, err = env.dispatcher.RetryAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Empty(t, summary.Failed)

	sent := env.PrimaryRequests()
	require.Len(t, sent, 2)
	first, _ := sent[0].Data.Get("name")
	second, _ := sent[1].Data.Get("name")
	assert.Equal(t, "Анна", first)
	assert.Equal(t, "Олег", second)

	pending, err = env.dispatcher.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, float64(0), env.registry.GaugeValue(metrics.PendingQueueSize, nil))
}

func TestDeliveryFlow_SelfTestReportsChannel(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SetPrimaryDown(true)

	report, err := env.dispatcher.SelfTest(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, constants.ChannelSecondary, report.Via)
	assert.Equal(t, constants.SecondaryWarning, report.Warning)
}

func TestDeliveryFlow_QueueEncryptedAtRest(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SetPrimaryDown(true)
	env.SetBotDown(true)
	ctx := context.Background()

	_, err := env.dispatcher.Dispatch(ctx, leadFields("Светлана", "+79998887766"), "callback", browserContext())
	require.Error(t, err)

	raw, err := sql.Open("sqlite3", env.dbPath)
	require.NoError(t, err)
	defer raw.Close()

	var stored string
	require.NoError(t, raw.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, constants.PendingQueueKey).Scan(&stored))
	assert.True(t, strings.HasPrefix(stored, "enc:v1:"))
	assert.NotContains(t, stored, "+79998887766")
	assert.NotContains(t, stored, "Светлана")

	decoded, ok, err := env.db.Get(ctx, constants.PendingQueueKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, decoded, "+79998887766")
}
