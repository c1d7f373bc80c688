package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Well-known metric names
const (
	CounterEventsIngested     = "events_ingested"
	CounterEventsFailed       = "events_failed"
	CounterEventsReplayed     = "events_replayed"
	CounterOrdersCreated      = "orders_created"
	CounterTransitions        = "transitions_applied"
	CounterTransitionConflict = "transition_conflicts"
	CounterNotificationsSent  = "notifications_sent"
	CounterNotificationErrors = "notification_errors"
)

// TimerSnapshot is the exported view of one timer
type TimerSnapshot struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

type timer struct {
	count   int64
	totalMs int64
	maxMs   int64
}

// Collector tracks in-process counters, timers and component health
type Collector struct {
	mu        sync.RWMutex
	counters  map[string]*int64
	timers    map[string]*timer
	health    map[string]*int64
	startTime time.Time
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		counters:  make(map[string]*int64),
		timers:    make(map[string]*timer),
		health:    make(map[string]*int64),
		startTime: time.Now(),
	}
}

// Increment increments a counter by 1
func (c *Collector) Increment(name string) {
	c.Add(name, 1)
}

// Add increments a counter by the specified value
func (c *Collector) Add(name string, value int64) {
	c.mu.RLock()
	counter, exists := c.counters[name]
	c.mu.RUnlock()

	if !exists {
		c.mu.Lock()
		if counter, exists = c.counters[name]; !exists {
			var v int64
			counter = &v
			c.counters[name] = counter
		}
		c.mu.Unlock()
	}

	atomic.AddInt64(counter, value)
}

// Set overwrites a counter with an absolute value, for gauge-style
// readings like goroutine counts.
func (c *Collector) Set(name string, value int64) {
	c.mu.RLock()
	counter, exists := c.counters[name]
	c.mu.RUnlock()

	if !exists {
		c.mu.Lock()
		if counter, exists = c.counters[name]; !exists {
			var v int64
			counter = &v
			c.counters[name] = counter
		}
		c.mu.Unlock()
	}

	atomic.StoreInt64(counter, value)
}

// Time records one duration measurement under a timer name
func (c *Collector) Time(name string, duration time.Duration) {
	ms := duration.Milliseconds()

	c.mu.RLock()
	t, exists := c.timers[name]
	c.mu.RUnlock()

	if !exists {
		c.mu.Lock()
		if t, exists = c.timers[name]; !exists {
			t = &timer{}
			c.timers[name] = t
		}
		c.mu.Unlock()
	}

	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalMs, ms)
	for {
		max := atomic.LoadInt64(&t.maxMs)
		if ms <= max || atomic.CompareAndSwapInt64(&t.maxMs, max, ms) {
			break
		}
	}
}

// SetHealth records a component's health (true = healthy)
func (c *Collector) SetHealth(component string, healthy bool) {
	var value int64
	if healthy {
		value = 1
	}

	c.mu.RLock()
	h, exists := c.health[component]
	c.mu.RUnlock()

	if !exists {
		c.mu.Lock()
		if h, exists = c.health[component]; !exists {
			var v int64
			h = &v
			c.health[component] = h
		}
		c.mu.Unlock()
	}

	atomic.StoreInt64(h, value)
}

// Counters returns a copy of all counters
func (c *Collector) Counters() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int64, len(c.counters))
	for name, counter := range c.counters {
		out[name] = atomic.LoadInt64(counter)
	}
	return out
}

// Timers returns a snapshot of all timers
func (c *Collector) Timers() map[string]TimerSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]TimerSnapshot, len(c.timers))
	for name, t := range c.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalMs)
		var avg float64
		if count > 0 {
			avg = float64(total) / float64(count)
		}
		out[name] = TimerSnapshot{
			Count:         count,
			TotalTimeMs:   total,
			AverageTimeMs: avg,
			MaxTimeMs:     atomic.LoadInt64(&t.maxMs),
		}
	}
	return out
}

// Health returns the recorded component health states
func (c *Collector) Health() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]bool, len(c.health))
	for name, h := range c.health {
		out[name] = atomic.LoadInt64(h) > 0
	}
	return out
}

// UptimeSeconds returns the collector's uptime in seconds
func (c *Collector) UptimeSeconds() int64 {
	return int64(time.Since(c.startTime).Seconds())
}

// All returns every metric in a structured form for the metrics endpoint
func (c *Collector) All() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": c.UptimeSeconds(),
		"counters":       c.Counters(),
		"timers":         c.Timers(),
		"health":         c.Health(),
	}
}
