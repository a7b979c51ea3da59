// Package store persists classified readings as JSON documents in an
// object store, keyed by a status-derived partition.
package store

import (
	"context"
	"fmt"
	"time"
)

// Status-derived partition prefixes.
const (
	PartitionValid            = "valid/"
	PartitionWarnings         = "valid/warnings/"
	PartitionInvalid          = "invalid/"
	PartitionDecodeErrors     = "errors/json_decode/"
	PartitionProcessingErrors = "errors/processing/"
)

// Metadata is attached to every stored document.
type Metadata struct {
	Location  string
	EventTime string
	Status    string
	Processor string
}

// Store is the object store sink presented to the pipeline.
type Store interface {
	// Put writes a document under key with the given metadata.
	Put(ctx context.Context, key string, body []byte, meta Metadata) error
}

// ObjectKey builds the canonical document key:
// <prefix><loc_id>/<UTC-compact-timestamp>_<event_id>.json
func ObjectKey(prefix, locID string, now time.Time, eventID string) string {
	return fmt.Sprintf("%s%s/%s_%s.json", prefix, locID, now.UTC().Format("20060102T150405"), eventID)
}
