package store

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLSinkWritesRecords(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLSink(dir, "session-1")
	require.NoError(t, err)

	sink.Record(Record{Type: EventSessionStart})
	sink.Record(Record{
		Type:     EventVerdict,
		Category: "shell-exec",
		Target:   "rm -rf build",
		Decision: "allow",
		Reason:   "destructive within safe path",
	})
	require.NoError(t, sink.Close())
	assert.Equal(t, 2, sink.Count())

	f, err := os.Open(sink.Path())
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.Len(t, records, 2)

	assert.Equal(t, EventSessionStart, records[0].Type)
	assert.Equal(t, "session-1", records[0].SessionID)
	assert.Equal(t, 1, records[0].Seq)
	assert.False(t, records[0].Time.IsZero())

	assert.Equal(t, EventVerdict, records[1].Type)
	assert.Equal(t, 2, records[1].Seq)
	assert.Equal(t, "rm -rf build", records[1].Target)
}

func TestJSONLSinkCreatesDir(t *testing.T) {
	dir := t.TempDir() + "/nested/logs"
	sink, err := NewJSONLSink(dir, "s")
	require.NoError(t, err)
	defer sink.Close()

	_, err = os.Stat(sink.Path())
	assert.NoError(t, err)
}

func TestNopSink(t *testing.T) {
	var s Sink = NopSink{}
	s.Record(Record{Type: EventError})
	assert.NoError(t, s.Close())
}
