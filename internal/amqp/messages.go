package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// SnapshotRecordedMessage announces a committed monthly interest snapshot.
// Consumers load the snapshot itself from the database by ID.
type SnapshotRecordedMessage struct {
	SnapshotID string    `json:"snapshot_id"`
	DebtID     string    `json:"debt_id"`
	Period     string    `json:"period"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewSnapshotRecordedMessage(snapshotID, debtID, period string) *SnapshotRecordedMessage {
	return &SnapshotRecordedMessage{
		SnapshotID: snapshotID,
		DebtID:     debtID,
		Period:     period,
		Timestamp:  time.Now(),
	}
}

func (m *SnapshotRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotRecordedMessageFromJSON(data []byte) (*SnapshotRecordedMessage, error) {
	var msg SnapshotRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SnapshotID == "" {
		return nil, errors.New("snapshot_id is required")
	}
	return &msg, nil
}
