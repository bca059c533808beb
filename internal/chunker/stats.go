package chunker

import (
	"sync"

	"github.com/okandolu/hae-gpt/internal/llmservice"
	"github.com/okandolu/hae-gpt/internal/models"
)

// Stats summarises a chunking run.
type Stats struct {
	Pages            int                     `json:"pages"`
	BlankPages       int                     `json:"blank_pages"`
	SkippedPages     int                     `json:"skipped_pages"`
	Chunks           int                     `json:"chunks"`
	ByStrategy       map[models.Strategy]int `json:"by_strategy"`
	AdvisoryCalls    int                     `json:"advisory_calls"`
	AdvisoryFailures int                     `json:"advisory_failures"`
	Advisor          *llmservice.UsageStats  `json:"advisor,omitempty"`
}

type collector struct {
	mu sync.Mutex
	s  Stats
}

func (c *collector) init() {
	c.s.ByStrategy = make(map[models.Strategy]int)
}

func (c *collector) page(class models.Classification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Pages++
	if class == models.ClassSkipped {
		c.s.SkippedPages++
	}
}

func (c *collector) blank() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Pages++
	c.s.BlankPages++
}

func (c *collector) chunk(strategy models.Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Chunks++
	c.s.ByStrategy[strategy]++
}

func (c *collector) advisoryCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.AdvisoryCalls++
}

func (c *collector) advisoryFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.AdvisoryFailures++
}

func (c *collector) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.s
	s.ByStrategy = make(map[models.Strategy]int, len(c.s.ByStrategy))
	for k, v := range c.s.ByStrategy {
		s.ByStrategy[k] = v
	}
	return s
}
