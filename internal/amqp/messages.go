package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// AttendanceSyncMessage announces an outbox entry. It carries only the row id and
// version; the worker reads the entry itself from the outbox.
type AttendanceSyncMessage struct {
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Key       string    `json:"key,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewAttendanceSyncMessage(id, version int64, key string) *AttendanceSyncMessage {
	return &AttendanceSyncMessage{
		ID:        id,
		Version:   version,
		Key:       key,
		Timestamp: time.Now(),
	}
}

func (m *AttendanceSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AttendanceSyncMessageFromJSON decodes and sanity-checks a message body.
func AttendanceSyncMessageFromJSON(data []byte) (*AttendanceSyncMessage, error) {
	var msg AttendanceSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID <= 0 || msg.Version <= 0 {
		return nil, errors.New("message missing id or version")
	}
	return &msg, nil
}
