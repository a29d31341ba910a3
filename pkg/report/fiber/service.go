// Package fiber exposes the latest benchmark result over HTTP so a run can
// be scraped while in flight.
package fiber

import (
	"sync"

	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Service is an rte.Sink that retains the most recent snapshot and serves
// it as JSON, tagged with the run's identity.
type Service struct {
	// RunID identifies this benchmark run.
	RunID uuid.UUID

	mu   sync.RWMutex
	last rte.Result
	seen bool
}

var _ rte.Sink = (*Service)(nil)

// Report retains the snapshot for serving.
func (s *Service) Report(result rte.Result) {
	s.mu.Lock()
	s.last = result
	s.seen = true
	s.mu.Unlock()
}

// BindTo registers the service's routes on the parent router.
func (s *Service) BindTo(parent fiber.Router) {
	router := parent.Group("/benchmark")
	router.Get("/result", s.result)
}

type resultResponse struct {
	Run    uuid.UUID  `json:"run"`
	Result rte.Result `json:"result"`
}

func (s *Service) result(c *fiber.Ctx) error {
	s.mu.RLock()
	last, seen := s.last, s.seen
	s.mu.RUnlock()
	if !seen {
		c.Status(fiber.StatusNotFound)
		return c.JSON(fiber.Map{"error": "no result reported yet"})
	}
	return c.JSON(resultResponse{Run: s.RunID, Result: last})
}
