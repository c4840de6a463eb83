package integration_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"leadrelay/internal/database"
	"leadrelay/internal/events"
	"leadrelay/internal/metrics"
	"leadrelay/internal/models"
	"leadrelay/internal/service"
	"leadrelay/pkg/relayapi"
	relaytypes "leadrelay/pkg/relayapi/types"
	"leadrelay/pkg/telegram"
	tgtypes "leadrelay/pkg/telegram/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testBotToken      = "123456:integration-secret"
	testPrimarySecret = "primary-hmac-secret"
	testChatID        = int64(555000111)
	encryptionSecret  = "test-secret-key-for-integration-tests-32bytes!!"
)

// TestEnvironment is a live dispatcher wired to a real SQLite store and fake
// primary and bot API endpoints served from one httptest server
type TestEnvironment struct {
	t          *testing.T
	dbPath     string
	db         *database.Database
	httpServer *httptest.Server
	hub        *events.Hub
	registry   *metrics.Registry
	dispatcher *service.LiveDispatcher

	mu            sync.Mutex
	primaryDown   bool
	botDown       bool
	primaryBodies []relaytypes.SendRequest
	botMessages   []tgtypes.SendMessageRequest
	updatePolls   int
	badSignatures int
}

func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	env := &TestEnvironment{
		t:        t,
		dbPath:   filepath.Join(t.TempDir(), "leadrelay.db"),
		hub:      events.NewHub(),
		registry: metrics.NewRegistry(),
	}
	env.setupHTTPServer()
	env.openDatabase()
	env.buildDispatcher()
	return env
}

func (env *TestEnvironment) openDatabase() {
	db, err := database.New(models.DatabaseConfig{Path: env.dbPath, EncryptionSecret: encryptionSecret})
	require.NoError(env.t, err)
	env.db = db
	env.t.Cleanup(func() { _ = db.Close() })
}

// Restart reopens the store and rebuilds the dispatcher, simulating a process
// restart
func (env *TestEnvironment) Restart() {
	require.NoError(env.t, env.db.Close())
	env.openDatabase()
	env.buildDispatcher()
}

func (env *TestEnvironment) buildDispatcher() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	primary := relayapi.NewClient(env.httpServer.URL+"/api/send", testPrimarySecret, &http.Client{Timeout: 5 * time.Second})
	bot := telegram.NewClient(env.httpServer.URL, testBotToken, &http.Client{Timeout: 5 * time.Second})

	env.dispatcher = service.NewLiveDispatcher(service.DispatcherConfig{
		Location: time.UTC,
	}, service.LiveDeps{
		Primary:   primary,
		Secondary: bot,
		Identity:  service.NewIdentityResolver("", env.db, bot, logger),
		Store:     env.db,
		Logger:    logger,
		Recorder:  metrics.NewRecorder(env.registry),
		Events:    env.hub,
	})
}

func (env *TestEnvironment) SetPrimaryDown(down bool) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.primaryDown = down
}

func (env *TestEnvironment) SetBotDown(down bool) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.botDown = down
}

func (env *TestEnvironment) PrimaryRequests() []relaytypes.SendRequest {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]relaytypes.SendRequest(nil), env.primaryBodies...)
}

func (env *TestEnvironment) BotMessages() []tgtypes.SendMessageRequest {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]tgtypes.SendMessageRequest(nil), env.botMessages...)
}

func (env *TestEnvironment) BadSignatures() int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.badSignatures
}

func (env *TestEnvironment) UpdatePolls() int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.updatePolls
}

func (env *TestEnvironment) setupHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/send", env.handlePrimary)
	mux.HandleFunc(fmt.Sprintf("/bot%s/sendMessage", testBotToken), env.handleSendMessage)
	mux.HandleFunc(fmt.Sprintf("/bot%s/getUpdates", testBotToken), env.handleGetUpdates)

	env.httpServer = httptest.NewServer(mux)
	env.t.Cleanup(env.httpServer.Close)
}

func (env *TestEnvironment) handlePrimary(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	env.mu.Lock()
	defer env.mu.Unlock()

	if err := relayapi.VerifySignature(body, testPrimarySecret, r.Header.Get(relayapi.SignatureHeader)); err != nil {
		env.badSignatures++
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "bad signature"})
		return
	}
	if env.primaryDown {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"success": false, "error": "upstream unavailable"})
		return
	}

	var req relaytypes.SendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "bad body"})
		return
	}
	env.primaryBodies = append(env.primaryBodies, req)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "messageId": 1000 + len(env.primaryBodies)})
}

func (env *TestEnvironment) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	env.mu.Lock()
	defer env.mu.Unlock()

	if env.botDown {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"ok":          false,
			"error_code":  403,
			"description": "Forbidden: bot was blocked by the user",
		})
		return
	}

	var req tgtypes.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "description": "Bad Request"})
		return
	}
	env.botMessages = append(env.botMessages, req)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
		"result": tgtypes.Message{
			MessageID: int64(len(env.botMessages)),
			Chat:      tgtypes.Chat{ID: testChatID, Type: "private"},
			Text:      req.Text,
		},
	})
}

func (env *TestEnvironment) handleGetUpdates(w http.ResponseWriter, r *http.Request) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.updatePolls++

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
		"result": []tgtypes.Update{
			{UpdateID: 1, Message: &tgtypes.Message{MessageID: 1, Chat: tgtypes.Chat{ID: 42}}},
			{UpdateID: 2, Message: &tgtypes.Message{MessageID: 2, Chat: tgtypes.Chat{ID: testChatID}}},
			{UpdateID: 3},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
