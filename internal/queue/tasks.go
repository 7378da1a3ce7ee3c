package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeProcessBatch = "batch:process"

type ProcessBatchPayload struct {
	BatchID     string             `json:"batch_id"`
	SourceType  string             `json:"source_type"`
	WebhookURL  string             `json:"webhook_url,omitempty"`
	OutputDir   string             `json:"output_dir,omitempty"`
	Sources     []domain.SourceRef `json:"sources"`
	Pipeline    []domain.StepSpec  `json:"pipeline"`
	RequestedAt time.Time          `json:"requested_at"`
}

func NewProcessBatchTask(payload ProcessBatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal process payload: %w", err)
	}
	return asynq.NewTask(TypeProcessBatch, body), nil
}

func ParseProcessBatchPayload(task *asynq.Task) (ProcessBatchPayload, error) {
	var payload ProcessBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessBatchPayload{}, fmt.Errorf("unmarshal process payload: %w", err)
	}
	return payload, nil
}
