package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) all() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestCollectorFoldsVolatileFields(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for _, id := range []string{"tx-1", "tx-2", "tx-3"} {
		c.AddLog("error", "dispatch failed", map[string]interface{}{"transaction_id": id, "stage": "processing"}, "pipeline.go:10")
	}
	c.AddLog("error", "dispatch failed", map[string]interface{}{"transaction_id": "tx-4", "stage": "risk_analysis"}, "pipeline.go:10")
	c.Close()

	entries := pub.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "logs", pub.topic)

	byStage := map[interface{}]AggregatedLogEntry{}
	for _, e := range entries {
		byStage[e.Fields["stage"]] = e
	}
	proc := byStage["processing"]
	assert.Equal(t, 3, proc.Count)
	assert.Equal(t, []string{"tx-1", "tx-2", "tx-3"}, proc.Samples["transaction_id"])
	assert.NotContains(t, proc.Fields, "transaction_id")
	assert.Equal(t, 1, byStage["risk_analysis"].Count)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")

	assert.Eventually(t, func() bool { return len(pub.all()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestLoggerErrorFeedsCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("stage failed", String("stage", "compliance"), Error(errors.New("boom")))
	}
	l.Info("not collected")
	l.RemoveCollector()

	entries := pub.all()
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Count)
	assert.Equal(t, "error", entries[0].Level)
	assert.Equal(t, []string{"boom", "boom", "boom"}, entries[0].Samples["error"])
}

func TestCollectorMinLevel(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub, MinLevel: "warn"})

	l.Warn("review queue slow", Duration("lag", 2*time.Second))
	l.Info("ignored")
	l.Error("dispatch failed", Error(nil))
	l.RemoveCollector()

	byLevel := map[string]AggregatedLogEntry{}
	for _, e := range pub.all() {
		byLevel[e.Level] = e
	}
	require.Len(t, byLevel, 2)
	assert.Equal(t, int64(2000), byLevel["warn"].Fields["lag"])
	assert.Equal(t, "dispatch failed", byLevel["error"].Message)
}
