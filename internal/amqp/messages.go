package amqp

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

var errEmptyCollection = errors.New("record changed message without collection")

// RecordChangedMessage announces that a record was committed to a
// collection. It carries identifiers only; consumers re-read the collection.
type RecordChangedMessage struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Origin     string    `json:"origin"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewRecordChangedMessage(collection, id, origin string) *RecordChangedMessage {
	return &RecordChangedMessage{
		Collection: collection,
		ID:         id,
		Origin:     origin,
		Timestamp:  time.Now().UTC(),
	}
}

func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes a message body. A body without a
// collection is rejected.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Collection == "" {
		return nil, errEmptyCollection
	}
	return &msg, nil
}
