// Package origin describes where a cached result came from
package origin

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Norgate-AV/outcache/internal/archive"
)

// Metadata is provenance data about the execution that produced a cache entry
type Metadata struct {
	InvocationID      string        `json:"invocationId"`
	CreationTime      time.Time     `json:"creationTime"`
	ExecutionDuration time.Duration `json:"-"`
	Host              string        `json:"host"`
	ToolVersion       string        `json:"toolVersion"`
}

// MarshalJSON implements json.Marshaler. The duration is stored in milliseconds.
func (m Metadata) MarshalJSON() ([]byte, error) {
	type plain Metadata
	return json.Marshal(struct {
		plain
		ExecutionDurationMs int64 `json:"executionDurationMs"`
	}{plain(m), m.ExecutionDuration.Milliseconds()})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	var wire struct {
		plain
		ExecutionDurationMs int64 `json:"executionDurationMs"`
	}

	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*m = Metadata(wire.plain)
	m.ExecutionDuration = time.Duration(wire.ExecutionDurationMs) * time.Millisecond

	return nil
}

// Write encodes m as JSON
func Write(w io.Writer, m Metadata) error {
	return json.NewEncoder(w).Encode(m)
}

// Read decodes metadata written by Write
func Read(r io.Reader) (Metadata, error) {
	var m Metadata
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode origin metadata: %w", err)
	}

	if m.InvocationID == "" {
		return Metadata{}, fmt.Errorf("origin metadata has no invocation id")
	}

	return m, nil
}

// Factory creates metadata writers and readers for one tool invocation
type Factory struct {
	invocationID string
	host         string
	toolVersion  string
	now          func() time.Time
}

// NewFactory creates a factory with a fresh invocation id
func NewFactory(toolVersion string) *Factory {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Factory{
		invocationID: uuid.NewString(),
		host:         host,
		toolVersion:  toolVersion,
		now:          time.Now,
	}
}

// InvocationID returns the id stamped on everything this factory writes
func (f *Factory) InvocationID() string {
	return f.invocationID
}

// Writer returns an archive.OriginWriter for a result that took elapsed to produce
func (f *Factory) Writer(elapsed time.Duration) archive.OriginWriter {
	return func(w io.Writer) error {
		return Write(w, Metadata{
			InvocationID:      f.invocationID,
			CreationTime:      f.now().UTC(),
			ExecutionDuration: elapsed,
			Host:              f.host,
			ToolVersion:       f.toolVersion,
		})
	}
}

// Reader returns an archive.OriginReader storing what it reads in dst
func (f *Factory) Reader(dst *Metadata) archive.OriginReader {
	return func(r io.Reader) error {
		m, err := Read(r)
		if err != nil {
			return err
		}

		*dst = m

		return nil
	}
}
