package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Publisher ships aggregated entries, usually the Kafka producer.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// DefaultVolatileFields are left out of the aggregation key. Their first few
// values are kept as samples instead.
var DefaultVolatileFields = []string{"transaction_id", "user_id", "ticket_id", "external_id", "error"}

const maxSamples = 5

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval (e.g., 30s)
	CountThreshold int           // max unique logs before flush (e.g., 100)
	Topic          string        // topic to send aggregated logs
	Publisher      Publisher     // interface to send aggregated logs
	// VolatileFields overrides DefaultVolatileFields when non-nil.
	VolatileFields []string
	// MinLevel is the lowest level collected, "error" when empty.
	MinLevel string
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Samples   map[string][]string    `json:"samples,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated log lines into one entry per (level, message,
// caller, stable fields) and publishes the batch on an interval or once
// CountThreshold distinct entries pile up.
type LogCollector struct {
	config   *CollectionConfig
	minLevel zerolog.Level
	volatile map[string]struct{}
	logMap   map[string]*AggregatedLogEntry
	mutex    sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	keys := config.VolatileFields
	if keys == nil {
		keys = DefaultVolatileFields
	}
	volatile := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		volatile[k] = struct{}{}
	}

	minLevel, err := zerolog.ParseLevel(config.MinLevel)
	if err != nil || config.MinLevel == "" {
		minLevel = zerolog.ErrorLevel
	}

	ctx, cancel := context.WithCancel(context.Background())
	collector := &LogCollector{
		config:   config,
		minLevel: minLevel,
		volatile: volatile,
		logMap:   make(map[string]*AggregatedLogEntry),
		ctx:      ctx,
		cancel:   cancel,
	}

	collector.wg.Add(1)
	go collector.periodicFlush()

	return collector
}

func (d *LogCollector) accepts(level zerolog.Level) bool {
	return level >= d.minLevel
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	stable, samples := d.split(fields)
	key := d.generateKey(level, message, stable, caller)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	entry, exists := d.logMap[key]
	if !exists {
		entry = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    stable,
			Caller:    caller,
			FirstSeen: now,
		}
		d.logMap[key] = entry
	}
	entry.Count++
	entry.LastSeen = now
	for k, v := range samples {
		if entry.Samples == nil {
			entry.Samples = make(map[string][]string)
		}
		if len(entry.Samples[k]) < maxSamples {
			entry.Samples[k] = append(entry.Samples[k], v)
		}
	}

	if len(d.logMap) >= d.config.CountThreshold {
		d.flushLogs()
	}
}

func (d *LogCollector) split(fields map[string]interface{}) (map[string]interface{}, map[string]string) {
	stable := make(map[string]interface{}, len(fields))
	var samples map[string]string
	for k, v := range fields {
		if _, ok := d.volatile[k]; ok {
			if samples == nil {
				samples = make(map[string]string)
			}
			samples[k] = fmt.Sprint(v)
			continue
		}
		stable[k] = v
	}
	return stable, samples
}

func (d *LogCollector) generateKey(level, message string, fields map[string]interface{}, caller string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", level, message, caller)
	for _, k := range keys {
		v, _ := json.Marshal(fields[k])
		fmt.Fprintf(h, "\x00%s=%s", k, v)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (d *LogCollector) periodicFlush() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mutex.Lock()
			d.flushLogs()
			d.mutex.Unlock()
		case <-d.ctx.Done():
			// Final flush before shutdown
			d.mutex.Lock()
			batch := d.drain()
			d.mutex.Unlock()
			d.publish(batch)
			return
		}
	}
}

// drain empties the map. Callers hold the mutex.
func (d *LogCollector) drain() []AggregatedLogEntry {
	if len(d.logMap) == 0 {
		return nil
	}
	logs := make([]AggregatedLogEntry, 0, len(d.logMap))
	for _, entry := range d.logMap {
		logs = append(logs, *entry)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].FirstSeen.Before(logs[j].FirstSeen) })
	d.logMap = make(map[string]*AggregatedLogEntry)
	return logs
}

// flushLogs sends the current batch in the background. Callers hold the mutex.
func (d *LogCollector) flushLogs() {
	logs := d.drain()
	if len(logs) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.publish(logs)
	}()
}

func (d *LogCollector) publish(logs []AggregatedLogEntry) {
	if len(logs) == 0 || d.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, logs); err != nil {
		fmt.Fprintf(os.Stderr, "failed to publish %d aggregated logs to %s: %v\n", len(logs), d.config.Topic, err)
	}
}

// Close flushes what is left and waits for in-flight publishes.
func (d *LogCollector) Close() {
	d.cancel()
	d.wg.Wait()
}
