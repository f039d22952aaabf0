// internal/checkpoint/models.go
package checkpoint

import "time"

// Snapshot records the state of one file at checkpoint time. The payload
// itself lives in the checkpoint's blob directory, named by ContentHash.
type Snapshot struct {
	FilePath       string    `json:"file_path"`
	ContentHash    string    `json:"content_hash"`
	SizeBytes      int64     `json:"size_bytes"`
	ModifiedTime   time.Time `json:"modified_time"`
	Compressed     bool      `json:"compressed"`
	CompressedSize int64     `json:"compressed_size,omitempty"`
	Strategy       Strategy  `json:"strategy,omitempty"`
}

// Checkpoint is a named, timestamped collection of file snapshots that can
// be restored as a unit. Immutable once persisted.
type Checkpoint struct {
	ID            string            `json:"id"`
	CreatedAt     time.Time         `json:"created_at"`
	Description   string            `json:"description,omitempty"`
	OperationType string            `json:"operation_type"`
	Snapshots     []Snapshot        `json:"snapshots"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// FileCount returns the number of snapshots in the checkpoint.
func (c *Checkpoint) FileCount() int {
	return len(c.Snapshots)
}

// TotalSize returns the sum of the original (uncompressed) snapshot sizes.
func (c *Checkpoint) TotalSize() int64 {
	var total int64
	for _, s := range c.Snapshots {
		total += s.SizeBytes
	}
	return total
}

// HasTag reports whether the checkpoint carries the given tag.
func (c *Checkpoint) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Filter narrows ListCheckpoints results. Zero values match everything.
type Filter struct {
	OperationType string
	Tags          []string
	Limit         int
}
