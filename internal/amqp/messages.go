package amqp

import (
	"encoding/json"
	"time"
)

// Routing keys on the dataset exchange.
const (
	RoutingKeyRefresh  = "dataset.refresh"
	RoutingKeyArchived = "dataset.archived"
)

// Message is anything publishable on the dataset exchange.
type Message interface {
	RoutingKey() string
	ToJSON() ([]byte, error)
}

// RefreshRequestMessage asks a worker to fetch the sheet and archive it.
type RefreshRequestMessage struct {
	RequestID string    `json:"request_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRefreshRequestMessage creates a refresh request stamped with the current time.
func NewRefreshRequestMessage(requestID, reason string) *RefreshRequestMessage {
	return &RefreshRequestMessage{
		RequestID: requestID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RefreshRequestMessage) RoutingKey() string { return RoutingKeyRefresh }

// ToJSON converts the message to JSON bytes
func (m *RefreshRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshRequestMessageFromJSON creates a message from JSON bytes
func RefreshRequestMessageFromJSON(data []byte) (*RefreshRequestMessage, error) {
	var msg RefreshRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DatasetArchivedMessage announces that a validated copy of the sheet is in
// the archive. Readers reload from the archive; the rows are not carried.
type DatasetArchivedMessage struct {
	ArchiveID     int64     `json:"archive_id"`
	RequestID     string    `json:"request_id,omitempty"`
	SpreadsheetID string    `json:"spreadsheet_id"`
	Range         string    `json:"range"`
	Hash          string    `json:"hash"`
	Rows          int       `json:"rows"`
	Records       int       `json:"records"`
	Created       bool      `json:"created"`
	Timestamp     time.Time `json:"timestamp"`
}

func (m *DatasetArchivedMessage) RoutingKey() string { return RoutingKeyArchived }

// ToJSON converts the message to JSON bytes
func (m *DatasetArchivedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetArchivedMessageFromJSON creates a message from JSON bytes
func DatasetArchivedMessageFromJSON(data []byte) (*DatasetArchivedMessage, error) {
	var msg DatasetArchivedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
