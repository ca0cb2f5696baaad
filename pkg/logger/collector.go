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
)

// Publisher ships aggregated log batches somewhere durable (Kafka in production).
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries before an early flush
	Topic          string
	Source         string // service identity stamped on each batch
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogBatch is the payload published on every flush.
type LogBatch struct {
	Source    string               `json:"source"`
	FlushedAt time.Time            `json:"flushed_at"`
	Entries   []AggregatedLogEntry `json:"entries"`
}

// LogCollector deduplicates error and critical lines so a failing instrument
// that logs the same error every cycle produces one entry with a count.
type LogCollector struct {
	config  *CollectionConfig
	logMap  map[string]*AggregatedLogEntry
	mutex   sync.Mutex
	batches chan LogBatch
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &LogCollector{
		config:  config,
		logMap:  make(map[string]*AggregatedLogEntry),
		batches: make(chan LogBatch, 8),
		ctx:     ctx,
		cancel:  cancel,
	}

	c.wg.Add(2)
	go c.periodicFlush()
	go c.sender()

	return c
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := generateKey(level, message, fields, caller)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if entry, ok := d.logMap[key]; ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		d.logMap[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(d.logMap) >= d.config.CountThreshold {
		d.flushLocked()
	}
}

func generateKey(level, message string, fields map[string]interface{}, caller string) string {
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{level, message, fields, caller}

	b, _ := json.Marshal(data)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

func (d *LogCollector) periodicFlush() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mutex.Lock()
			d.flushLocked()
			d.mutex.Unlock()
		case <-d.ctx.Done():
			d.mutex.Lock()
			d.flushLocked()
			d.mutex.Unlock()
			close(d.batches)
			return
		}
	}
}

// flushLocked hands the current aggregates to the sender. A full queue drops
// the batch rather than blocking the logging call site.
func (d *LogCollector) flushLocked() {
	if len(d.logMap) == 0 {
		return
	}

	entries := make([]AggregatedLogEntry, 0, len(d.logMap))
	for _, e := range d.logMap {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FirstSeen.Before(entries[j].FirstSeen) })
	d.logMap = make(map[string]*AggregatedLogEntry)

	batch := LogBatch{Source: d.config.Source, FlushedAt: time.Now(), Entries: entries}
	select {
	case d.batches <- batch:
	default:
		fmt.Fprintf(os.Stderr, "log collector: queue full, dropped %d entries\n", len(entries))
	}
}

func (d *LogCollector) sender() {
	defer d.wg.Done()
	for batch := range d.batches {
		if d.config.Publisher == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish failed: %v\n", err)
		}
		cancel()
	}
}

// Close flushes what is pending and waits for the sender to drain.
func (d *LogCollector) Close() {
	d.cancel()
	d.wg.Wait()
}
