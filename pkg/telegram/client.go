package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadrelay/internal/constants"
	"leadrelay/internal/errors"
	"leadrelay/internal/privacy"
	"leadrelay/pkg/telegram/types"

	"github.com/sirupsen/logrus"
)

const (
	ParseModeHTML   = "HTML"
	maxResponseBody = 1 << 20
)

// Client talks to the bot API used as the secondary delivery channel.
type Client interface {
	SendMessage(ctx context.Context, chatID, text string) (*types.Message, error)
	GetUpdates(ctx context.Context) ([]types.Update, error)
}

type BotClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL, token string, httpClient *http.Client) Client {
	return NewClientWithLogger(baseURL, token, httpClient, nil)
}

func NewClientWithLogger(baseURL, token string, httpClient *http.Client, logger *logrus.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(constants.DefaultTelegramTimeoutSec) * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if baseURL == "" {
		baseURL = constants.DefaultTelegramAPIBaseURL
	}
	return &BotClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  httpClient,
		logger:  logger,
	}
}

func (c *BotClient) SendMessage(ctx context.Context, chatID, text string) (*types.Message, error) {
	payload, err := json.Marshal(types.SendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             ParseModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method":  "sendMessage",
		"chat_id": privacy.MaskChatID(chatID),
	}).Debug("Sending bot API request")

	result, err := c.call(ctx, http.MethodPost, "sendMessage", payload)
	if err != nil {
		return nil, err
	}

	var msg types.Message
	if err := json.Unmarshal(result, &msg); err != nil {
		return nil, errors.NewProtocolError(constants.ChannelSecondary, "malformed sendMessage result", 0)
	}
	return &msg, nil
}

func (c *BotClient) GetUpdates(ctx context.Context) ([]types.Update, error) {
	c.logger.WithField("method", "getUpdates").Debug("Sending bot API request")

	result, err := c.call(ctx, http.MethodGet, "getUpdates", nil)
	if err != nil {
		return nil, err
	}

	var updates []types.Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, errors.NewProtocolError(constants.ChannelSecondary, "malformed getUpdates result", 0)
	}
	return updates, nil
}

// call performs one bot API method and returns its result on ok=true.
// The token is part of the URL, so every error string is redacted.
func (c *BotClient) call(ctx context.Context, method, apiMethod string, payload []byte) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, apiMethod)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %s", c.redact(err.Error()))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewTransportError(constants.ChannelSecondary, fmt.Errorf("%s", c.redact(err.Error())))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.NewTransportError(constants.ChannelSecondary, fmt.Errorf("failed to read response: %s", c.redact(err.Error())))
	}

	var apiResp types.APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errors.NewProtocolError(constants.ChannelSecondary, fmt.Sprintf("HTTP %d", resp.StatusCode), resp.StatusCode)
	}

	if !apiResp.OK {
		reason := apiResp.Description
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		status := resp.StatusCode
		if status >= 200 && status <= 299 {
			status = 0
		}
		return nil, errors.NewProtocolError(constants.ChannelSecondary, c.redact(reason), status)
	}

	return apiResp.Result, nil
}

func (c *BotClient) redact(s string) string {
	return privacy.RedactToken(s, c.token)
}
