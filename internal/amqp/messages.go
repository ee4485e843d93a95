package amqp

import (
	"encoding/json"
	"time"
)

// TallyChangedMessage announces one successful increment. Consumers treat it
// as an invalidation hint and re-read the day from the store, so a lost or
// duplicated message never corrupts counts.
type TallyChangedMessage struct {
	Day       string    `json:"day"`
	Category  string    `json:"category"`
	Version   int64     `json:"version"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTallyChangedMessage(day, category, actor string, version int64) *TallyChangedMessage {
	return &TallyChangedMessage{
		Day:       day,
		Category:  category,
		Version:   version,
		Actor:     actor,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TallyChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func TallyChangedMessageFromJSON(data []byte) (*TallyChangedMessage, error) {
	var msg TallyChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
