package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const loopDelay = time.Second

// Producer fetches one scrape's payload. A Producer that returns an
// error marks its task inactive; the task is never restarted, the dead
// task stays observable through the health endpoint.
type Producer func(ctx context.Context) (any, error)

// scraper runs one task's scrape loop: sleep in one-second increments
// so the stop flag is honored promptly, scrape every interval.
type scraper struct {
	name     string
	interval time.Duration
	produce  Producer
	cache    *Cache
	log      zerolog.Logger
	duration *prometheus.HistogramVec
}

func (s *scraper) run(ctx context.Context) {
	elapsed := s.interval // first scrape on the first one-second tick
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Str("task", s.name).Msg("scraper stopped")
			return
		case <-time.After(loopDelay):
		}
		elapsed += loopDelay
		if elapsed < s.interval {
			continue
		}
		elapsed = 0
		if !s.scrape(ctx) {
			s.log.Info().Str("task", s.name).Msg("scraper stopped after error")
			return
		}
	}
}

// scrape performs one collection, returning false when the task died.
func (s *scraper) scrape(ctx context.Context) bool {
	s.log.Debug().Str("task", s.name).Msg("executing scrape")
	start := time.Now()
	data, err := s.produce(ctx)
	took := time.Since(start)
	if s.duration != nil {
		s.duration.WithLabelValues(s.name).Observe(took.Seconds())
	}
	if err != nil {
		msg := fmt.Sprintf("%s scrape failed: %v", s.name, err)
		s.log.Error().Str("task", s.name).Err(err).Msg("scrape failed, marking task inactive")
		slot := s.cache.Task(s.name)
		slot.ScrapeErrors = append(slot.ScrapeErrors, msg)
		slot.Data = nil
		s.cache.UpdateTask(s.name, slot)
		s.cache.UpdateHealth(s.name, TaskInactive, msg)
		return false
	}
	s.cache.UpdateTask(s.name, Slot{
		ScrapeTimestamp:    float64(start.UnixNano()) / 1e9,
		ScrapeDurationSecs: took.Seconds(),
		ScrapeErrors:       []string{},
		Data:               data,
	})
	s.log.Debug().Str("task", s.name).Dur("took", took).Msg("completed scrape")
	return true
}
