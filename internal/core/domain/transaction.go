package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordField is a single key/value of a transaction record.
type RecordField struct {
	Key   string
	Value json.RawMessage
}

// TransactionRecord is an opaque history entry. Fields keep the order the
// server sent them in.
type TransactionRecord struct {
	Fields []RecordField
}

// UnmarshalJSON decodes a JSON object without losing field order.
func (r *TransactionRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("transaction record: expected object, got %v", tok)
	}

	r.Fields = r.Fields[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("transaction record: expected key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("transaction record: field %q: %w", key, err)
		}
		r.Fields = append(r.Fields, RecordField{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON encodes the record with its original field order.
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the raw value for key.
func (r TransactionRecord) Get(key string) (json.RawMessage, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Display renders a field value for humans: strings are unquoted, anything
// else is printed as JSON.
func (f RecordField) Display() string {
	var s string
	if err := json.Unmarshal(f.Value, &s); err == nil {
		return s
	}
	return string(f.Value)
}

// TransactionStatus is the outcome of a recorded prediction call.
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "success"
	TransactionError   TransactionStatus = "error"
)

// Transaction is the backend's record of one prediction call.
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	Timestamp    time.Time         `json:"timestamp"`
	RequestData  json.RawMessage   `json:"request_data"`
	ResponseData json.RawMessage   `json:"response_data"`
	Status       TransactionStatus `json:"status"`
}

// TransactionSummary is the history view of a transaction.
type TransactionSummary struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Status    TransactionStatus `json:"status"`
	Gesture   *string           `json:"gesture"`
}

// Summary projects the transaction for the history endpoint. Gesture is nil
// when the response carried none.
func (t *Transaction) Summary() TransactionSummary {
	s := TransactionSummary{
		ID:        t.ID,
		Timestamp: t.Timestamp,
		Status:    t.Status,
	}
	var resp struct {
		Gesture *string `json:"gesture"`
	}
	if len(t.ResponseData) > 0 && json.Unmarshal(t.ResponseData, &resp) == nil {
		s.Gesture = resp.Gesture
	}
	return s
}
