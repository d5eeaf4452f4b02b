// Package exporter implements the long-lived local metadata daemon: a
// set of periodic scrapers feeding one shared cache, served over
// token-authenticated HTTPS to the central orchestrator.
package exporter

import (
	"sync"
	"time"
)

// Task names, which double as the cache's slot names.
const (
	TaskHost       = "host"
	TaskDisks      = "disks"
	TaskDaemons    = "daemons"
	TaskHTTPServer = "http_server"
)

// TaskStatus is a scraper task's health marker.
type TaskStatus string

const (
	TaskActive   TaskStatus = "active"
	TaskInactive TaskStatus = "inactive"
)

// Slot holds one scrape's outcome. A slot that never completed a
// scrape keeps its zero value and serves as an empty object.
type Slot struct {
	ScrapeTimestamp    float64  `json:"scrape_timestamp,omitempty"`
	ScrapeDurationSecs float64  `json:"scrape_duration_secs,omitempty"`
	ScrapeErrors       []string `json:"scrape_errors,omitempty"`
	Data               any      `json:"data,omitempty"`
}

// Health is the exporter's self-view, served at /v1/metadata/health.
type Health struct {
	StartedEpochSecs float64               `json:"started_epoch_secs"`
	Tasks            map[string]TaskStatus `json:"tasks"`
	Errors           []string              `json:"errors"`
}

// Cache is the only state shared between the scrapers and the HTTP
// handlers. Every read and write takes the mutex; each slot is updated
// atomically under it.
type Cache struct {
	mu      sync.Mutex
	started float64
	tasks   map[string]TaskStatus
	errors  []string
	slots   map[string]Slot
}

// NewCache returns a Cache with every task marked inactive.
func NewCache() *Cache {
	return &Cache{
		started: float64(time.Now().UnixNano()) / 1e9,
		tasks: map[string]TaskStatus{
			TaskHost:       TaskInactive,
			TaskDisks:      TaskInactive,
			TaskDaemons:    TaskInactive,
			TaskHTTPServer: TaskInactive,
		},
		slots: map[string]Slot{},
	}
}

// UpdateTask replaces a slot's content.
func (c *Cache) UpdateTask(task string, s Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[task] = s
}

// UpdateHealth sets a task's status, recording errMsg when non-empty.
func (c *Cache) UpdateHealth(task string, status TaskStatus, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[task] = status
	if errMsg != "" {
		c.errors = append(c.errors, errMsg)
	}
}

// Task returns a copy of the named slot.
func (c *Cache) Task(task string) Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[task]
}

// Health returns a copy of the health view.
func (c *Cache) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks := make(map[string]TaskStatus, len(c.tasks))
	for k, v := range c.tasks {
		tasks[k] = v
	}
	return Health{
		StartedEpochSecs: c.started,
		Tasks:            tasks,
		Errors:           append([]string(nil), c.errors...),
	}
}

// Snapshot is the full cache JSON served at /v1/metadata.
type Snapshot struct {
	Health  Health `json:"health"`
	Host    Slot   `json:"host"`
	Daemons Slot   `json:"daemons"`
	Disks   Slot   `json:"disks"`
}

// ToJSON returns a consistent snapshot of every slot plus health.
func (c *Cache) ToJSON() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks := make(map[string]TaskStatus, len(c.tasks))
	for k, v := range c.tasks {
		tasks[k] = v
	}
	return Snapshot{
		Health: Health{
			StartedEpochSecs: c.started,
			Tasks:            tasks,
			Errors:           append([]string(nil), c.errors...),
		},
		Host:    c.slots[TaskHost],
		Daemons: c.slots[TaskDaemons],
		Disks:   c.slots[TaskDisks],
	}
}
