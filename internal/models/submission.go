package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Field is one form control value.
type Field struct {
	Name  string
	Value string
}

// FieldSet is an ordered field-name -> value mapping. JSON round trips keep
// the order of the object keys.
type FieldSet struct {
	fields []Field
}

// NewFieldSet builds a FieldSet from name/value pairs.
func NewFieldSet(fields ...Field) FieldSet {
	var fs FieldSet
	for _, f := range fields {
		fs.Set(f.Name, f.Value)
	}
	return fs
}

// Get returns the value for name and whether it exists.
func (fs FieldSet) Get(name string) (string, bool) {
	for _, f := range fs.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing field in place or appends a new one.
func (fs *FieldSet) Set(name, value string) {
	for i := range fs.fields {
		if fs.fields[i].Name == name {
			fs.fields[i].Value = value
			return
		}
	}
	fs.fields = append(fs.fields, Field{Name: name, Value: value})
}

func (fs FieldSet) Len() int {
	return len(fs.fields)
}

// Fields returns a copy of the fields in order.
func (fs FieldSet) Fields() []Field {
	out := make([]Field, len(fs.fields))
	copy(out, fs.fields)
	return out
}

// Clone returns an independent copy.
func (fs FieldSet) Clone() FieldSet {
	return FieldSet{fields: fs.Fields()}
}

func (fs FieldSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an object of scalars. Numbers and booleans are kept
// in their JSON text form; null becomes an empty string.
func (fs *FieldSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		fs.fields = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields must be a JSON object")
	}

	fs.fields = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected field key %v", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		switch v := valTok.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = fmt.Sprintf("%t", v)
		case nil:
			value = ""
		default:
			return fmt.Errorf("field %q must be a scalar value", key)
		}
		fs.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// ClientContext is the environment stamped onto a record before delivery.
type ClientContext struct {
	PageURL          string `json:"pageUrl"`
	UserAgent        string `json:"userAgent"`
	ScreenResolution string `json:"screenResolution"`
	Timestamp        string `json:"timestamp"`
	Referrer         string `json:"referrer"`
}

// Context key names, in wire order.
const (
	ContextKeyPageURL          = "pageUrl"
	ContextKeyUserAgent        = "userAgent"
	ContextKeyScreenResolution = "screenResolution"
	ContextKeyTimestamp        = "timestamp"
	ContextKeyReferrer         = "referrer"
)

// SubmissionRecord is the unit of delivery work.
type SubmissionRecord struct {
	Fields   FieldSet      `json:"fields"`
	FormType string        `json:"formType"`
	Context  ClientContext `json:"context"`
}

// WireData flattens the record into the object sent as the primary channel's
// "data": form fields first, then the context keys.
func (r SubmissionRecord) WireData() FieldSet {
	data := r.Fields.Clone()
	data.Set(ContextKeyPageURL, r.Context.PageURL)
	data.Set(ContextKeyUserAgent, r.Context.UserAgent)
	data.Set(ContextKeyScreenResolution, r.Context.ScreenResolution)
	data.Set(ContextKeyTimestamp, r.Context.Timestamp)
	data.Set(ContextKeyReferrer, r.Context.Referrer)
	return data
}

// PendingEntry is a record that exhausted every delivery channel.
type PendingEntry struct {
	ID        string           `json:"id"`
	Record    SubmissionRecord `json:"record"`
	CreatedAt time.Time        `json:"createdAt"`
	Attempts  int              `json:"attempts"`
}

// DeliveryReceipt identifies the acknowledged message.
type DeliveryReceipt struct {
	MessageID int64  `json:"message_id"`
	Via       string `json:"via"`
}

// DeliveryResult is returned by a successful dispatch.
type DeliveryResult struct {
	OK      bool            `json:"ok"`
	Result  DeliveryReceipt `json:"result"`
	Warning string          `json:"warning,omitempty"`
}

// RetryFailure describes a pending entry that failed again.
type RetryFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// RetrySummary is the outcome of a retry-all run.
type RetrySummary struct {
	Succeeded int            `json:"succeeded"`
	Failed    []RetryFailure `json:"failed"`
}

// SelfTestReport is what the connectivity banner renders.
type SelfTestReport struct {
	OK        bool   `json:"ok"`
	Via       string `json:"via,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Error     string `json:"error,omitempty"`
}
