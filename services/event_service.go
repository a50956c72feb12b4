// services/event_service.go
package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"match-escrow-system/escrow"
	"match-escrow-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// EventSink receives ledger notifications after a call has committed.
// Publishing never fails the call that produced the events.
type EventSink interface {
	Publish(ctx context.Context, events ...escrow.Event)
}

// EventService persists ledger events and streams them to clients.
type EventService struct {
	DB           *gorm.DB
	PollInterval time.Duration
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{DB: db, PollInterval: 2 * time.Second}
}

func (s *EventService) Publish(ctx context.Context, events ...escrow.Event) {
	if len(events) == 0 {
		return
	}
	rows := make([]models.LedgerEvent, 0, len(events))
	for _, ev := range events {
		rows = append(rows, models.NewLedgerEvent(ev))
	}
	if err := s.DB.WithContext(ctx).Create(&rows).Error; err != nil {
		log.Printf("⚠️ [Events] failed to record %d events for match %s: %v", len(rows), events[0].MatchID, err)
		return
	}
	for _, ev := range events {
		log.Printf("📣 [Events] %s match=%s user=%s amount=%d", ev.Kind, ev.MatchID, ev.User, ev.Amount)
	}
}

// List returns a match's events in the order they were recorded.
func (s *EventService) List(ctx context.Context, matchID string, kind string) ([]models.LedgerEvent, error) {
	q := s.DB.WithContext(ctx).Where("match_id = ?", matchID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var out []models.LedgerEvent
	if err := q.Order("created_at ASC").Order("occurred_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *EventService) HandleListEvents(c *fiber.Ctx) error {
	events, err := s.List(c.UserContext(), c.Params("match_id"), c.Query("kind"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

// StreamMatchEventsSSE pushes new ledger events for one match.
func (s *EventService) StreamMatchEventsSSE(c *fiber.Ctx) error {
	matchID := c.Params("match_id")
	interval := s.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx := c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var cursor time.Time
		var latest models.LedgerEvent
		if err := s.DB.Where("match_id = ?", matchID).Order("created_at DESC").First(&latest).Error; err == nil {
			cursor = latest.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Events] SSE init error for match %s: %v", matchID, err)
		}

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-ticker.C:
				var fresh []models.LedgerEvent
				err := s.DB.
					Where("match_id = ? AND created_at > ?", matchID, cursor).
					Order("created_at ASC").
					Find(&fresh).Error
				if err != nil {
					log.Printf("[Events] SSE query error for match %s: %v", matchID, err)
					continue
				}
				if len(fresh) == 0 {
					// keepalive so dead clients surface as flush errors
					w.WriteString(":\n\n")
				}
				for _, ev := range fresh {
					payload, _ := json.Marshal(ev)
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
					cursor = ev.CreatedAt
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})
	return nil
}
