package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	BatchStatusCreated    = "created"
	BatchStatusQueued     = "queued"
	BatchStatusProcessing = "processing"
	BatchStatusSucceeded  = "succeeded"
	BatchStatusPartial    = "partial"
	BatchStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

// SourceRef identifies one photo to process: a filesystem path for local
// batches or an object key for bucket-sourced batches.
type SourceRef struct {
	Path      string `json:"path,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
}

func (r SourceRef) String() string {
	if r.Path != "" {
		return r.Path
	}
	return r.ObjectKey
}

// CreateBatchRequest is the API payload that describes a batch: which photos
// to process and the ordered pipeline to run over them. Selection of photos
// happens upstream; the engine only receives the list.
type CreateBatchRequest struct {
	SourceType string      `json:"source_type"`
	WebhookURL string      `json:"webhook_url,omitempty"`
	OutputDir  string      `json:"output_dir,omitempty"`
	Sources    []SourceRef `json:"sources"`
	Pipeline   []StepSpec  `json:"pipeline"`
}

// Batch is the persisted job record.
type Batch struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	OutputDir  string
	Sources    []SourceRef
	Pipeline   []StepSpec
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateBatchRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if len(r.Sources) == 0 {
		return errors.New("sources must contain at least one photo")
	}
	for i, src := range r.Sources {
		switch sourceType {
		case SourceTypeLocalFile:
			if strings.TrimSpace(src.Path) == "" {
				return fmt.Errorf("sources[%d].path is required for source_type=local_file", i)
			}
		case SourceTypeS3Presigned:
			if strings.TrimSpace(src.ObjectKey) == "" {
				return fmt.Errorf("sources[%d].object_key is required for source_type=s3_presigned", i)
			}
		}
	}
	if err := ValidateSpecs(r.Pipeline); err != nil {
		return err
	}
	return nil
}
