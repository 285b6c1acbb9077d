package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StoredRecord is the persisted shape of one record.
type StoredRecord struct {
	Timestamp string `json:"timestamp"`
	Hostname  string `json:"hostname"`
	Component string `json:"component"`
	Process   string `json:"process"`
	Message   string `json:"message"`
}

// MarshalJSONL serializes the batch as one JSON object per record,
// joined by newlines. An empty batch yields an empty body.
func (b *Batch) MarshalJSONL() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range b.Records {
		err := enc.Encode(StoredRecord{
			Timestamp: rec.TimestampText,
			Hostname:  rec.Hostname,
			Component: rec.Component(),
			Process:   rec.Process,
			Message:   rec.Message,
		})
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}

	// Encoder terminates every value with '\n'; records are joined, not terminated.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
