package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"leadrelay/internal/errors"
	"leadrelay/pkg/telegram/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:ABC-secret"

func TestSendMessage_Success(t *testing.T) {
	var got types.SendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+testToken+"/sendMessage", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok": true, "result": {"message_id": 42, "chat": {"id": 123456789}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", testToken, nil)
	msg, err := client.SendMessage(context.Background(), "123456789", "<b>hi</b>")
	require.NoError(t, err)

	assert.Equal(t, int64(42), msg.MessageID)
	assert.Equal(t, "123456789", got.ChatID)
	assert.Equal(t, "<b>hi</b>", got.Text)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.True(t, got.DisableWebPagePreview)
}

func TestSendMessage_NotOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, testToken, nil).SendMessage(context.Background(), "1", "x")
	require.Error(t, err)

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeChannelProtocol, appErr.Code)
	assert.Equal(t, "Bad Request: chat not found", appErr.Message)
	assert.False(t, appErr.Retryable)
}

func TestSendMessage_NonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, testToken, nil).SendMessage(context.Background(), "1", "x")
	require.Error(t, err)
	assert.Equal(t, "HTTP 502", errors.Reason(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestTransportError_RedactsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, testToken, nil).SendMessage(context.Background(), "1", "x")
	require.Error(t, err)

	assert.True(t, errors.HasCode(err, errors.ErrCodeChannelTransport))
	assert.NotContains(t, err.Error(), "ABC-secret")
	assert.Contains(t, err.Error(), "123456:***")
}

func TestGetUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+testToken+"/getUpdates", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"ok": true, "result": [
			{"update_id": 1, "message": {"message_id": 5, "chat": {"id": 111}}},
			{"update_id": 2, "my_chat_member": {}},
			{"update_id": 3, "message": {"message_id": 6, "chat": {"id": -1002233}}}
		]}`))
	}))
	defer server.Close()

	updates, err := NewClient(server.URL, testToken, nil).GetUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 3)
	assert.Nil(t, updates[1].Message)
	assert.Equal(t, int64(-1002233), updates[2].Message.Chat.ID)
}

func TestGetUpdates_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true, "result": []}`))
	}))
	defer server.Close()

	updates, err := NewClient(server.URL, testToken, nil).GetUpdates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, updates)
}
