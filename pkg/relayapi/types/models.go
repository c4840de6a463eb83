package types

import (
	"encoding/json"
	"strconv"
	"strings"

	"leadrelay/internal/models"
)

// SendRequest is the body posted to the primary endpoint
type SendRequest struct {
	Data     models.FieldSet `json:"data"`
	FormType string          `json:"formType"`
}

// SendResponse is the primary endpoint's acknowledgment. MessageID is
// optional and may be any JSON value; only Success decides delivery.
type SendResponse struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	MessageID json.RawMessage `json:"messageId,omitempty"`
}

// NumericID returns the message id when it is an integer or a string
// holding one.
func (r *SendResponse) NumericID() (int64, bool) {
	raw := strings.TrimSpace(string(r.MessageID))
	if raw == "" || raw == "null" {
		return 0, false
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return 0, false
		}
		raw = strings.TrimSpace(s)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
