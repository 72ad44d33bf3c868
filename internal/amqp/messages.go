package amqp

import (
	"encoding/json"
	"time"
)

// JobStagedMessage wakes the ETL worker after a job finishes staging. It
// carries only identifiers; the worker reads the staged rows and the queue
// entry from storage, so a lost message delays a load but never loses it.
type JobStagedMessage struct {
	JobID     string    `json:"job_id"`
	Dataset   string    `json:"dataset"`
	Rows      int       `json:"rows"`
	Timestamp time.Time `json:"timestamp"`
}

// NewJobStagedMessage creates a staged-job notification.
func NewJobStagedMessage(jobID, dataset string, rows int) *JobStagedMessage {
	return &JobStagedMessage{
		JobID:     jobID,
		Dataset:   dataset,
		Rows:      rows,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *JobStagedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// JobStagedMessageFromJSON creates a message from JSON bytes.
func JobStagedMessageFromJSON(data []byte) (*JobStagedMessage, error) {
	var msg JobStagedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
