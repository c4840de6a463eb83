package relayapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadrelay/internal/constants"
	"leadrelay/internal/errors"
	"leadrelay/internal/models"
	"leadrelay/pkg/relayapi/types"

	"github.com/sirupsen/logrus"
)

const (
	SignatureHeader = "X-Relay-Signature"
	maxResponseBody = 1 << 20
)

// Client delivers a submission record to the primary HTTP endpoint.
type Client interface {
	Send(ctx context.Context, data models.FieldSet, formType string) (*types.SendResponse, error)
}

type RelayClient struct {
	endpoint string
	secret   string
	client   *http.Client
	logger   *logrus.Logger
}

func NewClient(endpoint, secret string, httpClient *http.Client) Client {
	return NewClientWithLogger(endpoint, secret, httpClient, nil)
}

func NewClientWithLogger(endpoint, secret string, httpClient *http.Client, logger *logrus.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(constants.DefaultPrimaryTimeoutSec) * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &RelayClient{
		endpoint: endpoint,
		secret:   secret,
		client:   httpClient,
		logger:   logger,
	}
}

func (c *RelayClient) Send(ctx context.Context, data models.FieldSet, formType string) (*types.SendResponse, error) {
	body, err := json.Marshal(types.SendRequest{Data: data, FormType: formType})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, c.secret))
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint":  c.endpoint,
		"form_type": formType,
		"signed":    c.secret != "",
	}).Debug("Sending submission to primary endpoint")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewTransportError(constants.ChannelPrimary, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.NewTransportError(constants.ChannelPrimary, fmt.Errorf("failed to read response: %w", err))
	}

	var result types.SendResponse
	decodeErr := json.Unmarshal(respBody, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil && strings.TrimSpace(result.Error) != "" {
			reason = result.Error
		}
		return nil, errors.NewProtocolError(constants.ChannelPrimary, reason, resp.StatusCode)
	}

	if decodeErr != nil || !result.Success {
		reason := "unknown primary endpoint error"
		if decodeErr == nil && strings.TrimSpace(result.Error) != "" {
			reason = result.Error
		}
		return nil, errors.NewProtocolError(constants.ChannelPrimary, reason, 0)
	}

	return &result, nil
}

// Sign returns the "sha256=<hex>" HMAC of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header produced by Sign. Receivers of
// the primary endpoint can use it to authenticate the relay.
func VerifySignature(body []byte, secret, header string) error {
	parts := strings.SplitN(header, "=", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "sha256" {
		return fmt.Errorf("invalid signature format in header %s", SignatureHeader)
	}
	expected := Sign(body, secret)
	if !hmac.Equal([]byte(expected), []byte("sha256="+parts[1])) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
