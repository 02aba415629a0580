package logger

import (
	"sync/atomic"
	"testing"
)

func TestWithComponentField(t *testing.T) {
	entry := Logger().WithComponent("stream")
	v, ok := entry.Entry.Data["component"]
	if !ok {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
	if v != "stream" {
		t.Fatalf("component = %v, want stream", v)
	}
}

func TestConfigureRejectsInvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	if err := Logger().Configure("nope", "json", "stdout", 0); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("SF_REGION", "eu-west-1")

	entry := Logger().WithEnv("SF_REGION")
	if v := entry.Entry.Data["SF_REGION"]; v != "eu-west-1" {
		t.Fatalf("env field = %v, want eu-west-1", v)
	}
}

func channelTotals(name string) (int64, int64) {
	v, ok := channels.Load(name)
	if !ok {
		return 0, 0
	}
	cs := v.(*channelStat)
	return atomic.LoadInt64(&cs.messages), atomic.LoadInt64(&cs.bytes)
}

func TestIncrementStreamMessage(t *testing.T) {
	before := atomic.LoadInt64(&streamMessages)
	msgsBefore, bytesBefore := channelTotals("stream_ws")

	IncrementStreamMessage(120)
	IncrementStreamMessage(80)

	if got := atomic.LoadInt64(&streamMessages) - before; got != 2 {
		t.Errorf("stream message delta = %d, want 2", got)
	}
	msgs, bytes := channelTotals("stream_ws")
	if msgs-msgsBefore != 2 || bytes-bytesBefore != 200 {
		t.Errorf("stream_ws deltas = %d msgs / %d bytes, want 2 / 200", msgs-msgsBefore, bytes-bytesBefore)
	}
}

func TestIncrementArchiveWrite(t *testing.T) {
	before := atomic.LoadInt64(&archiveWrites)
	_, bytesBefore := channelTotals("s3_archive_write")

	IncrementArchiveWrite(4096)

	if got := atomic.LoadInt64(&archiveWrites) - before; got != 1 {
		t.Errorf("archive write delta = %d, want 1", got)
	}
	if _, bytes := channelTotals("s3_archive_write"); bytes-bytesBefore != 4096 {
		t.Errorf("s3_archive_write byte delta = %d, want 4096", bytes-bytesBefore)
	}
}

func TestRecordChannelMessage(t *testing.T) {
	RecordChannelMessage("alpha-calls", 42)
	RecordChannelMessage("alpha-calls", 8)

	msgs, bytes := channelTotals("alpha-calls")
	if msgs != 2 || bytes != 50 {
		t.Errorf("alpha-calls = %d msgs / %d bytes, want 2 / 50", msgs, bytes)
	}
}
