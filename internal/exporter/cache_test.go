package exporter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheStartsInactive(t *testing.T) {
	c := NewCache()
	h := c.Health()
	for _, task := range []string{TaskHost, TaskDisks, TaskDaemons, TaskHTTPServer} {
		assert.Equal(t, TaskInactive, h.Tasks[task], task)
	}
	assert.Empty(t, h.Errors)
	assert.NotZero(t, h.StartedEpochSecs)
}

func TestCacheUpdateTaskAndHealth(t *testing.T) {
	c := NewCache()
	c.UpdateHealth(TaskHost, TaskActive, "")
	c.UpdateTask(TaskHost, Slot{ScrapeTimestamp: 1, Data: map[string]any{"hostname": "h"}})

	assert.Equal(t, TaskActive, c.Health().Tasks[TaskHost])
	assert.Equal(t, float64(1), c.Task(TaskHost).ScrapeTimestamp)

	c.UpdateHealth(TaskHost, TaskInactive, "host scraper died")
	h := c.Health()
	assert.Equal(t, TaskInactive, h.Tasks[TaskHost])
	assert.Equal(t, []string{"host scraper died"}, h.Errors)
}

func TestCacheNeverScrapedSlotIsZero(t *testing.T) {
	c := NewCache()
	slot := c.Task(TaskDisks)
	assert.Nil(t, slot.Data)
	assert.Zero(t, slot.ScrapeTimestamp)
}

func TestCacheSnapshotIsCopy(t *testing.T) {
	c := NewCache()
	snap := c.ToJSON()
	snap.Health.Tasks[TaskHost] = TaskActive
	assert.Equal(t, TaskInactive, c.Health().Tasks[TaskHost], "mutating a snapshot must not leak into the cache")
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.UpdateTask(TaskHost, Slot{ScrapeTimestamp: float64(j)})
				c.UpdateHealth(TaskHost, TaskActive, "")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Task(TaskHost)
				c.ToJSON()
			}
		}()
	}
	wg.Wait()
}
