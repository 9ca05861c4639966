package services

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	"gamification-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// eventsAfter returns a user's reward events strictly after the (created_at,
// id) cursor, in cursor order. Events written in one transaction share a
// timestamp, so paging on created_at alone would skip or repeat them.
func (s *ProgressionService) eventsAfter(userID string, after time.Time, afterID string) ([]models.RewardEvent, error) {
	var events []models.RewardEvent
	err := s.DB.
		Where("user_id = ?", userID).
		Where("created_at > ? OR (created_at = ? AND id > ?)", after, after, afterID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, &StorageError{Op: "event poll", Err: err}
	}
	return events, nil
}

// StreamUserEventsSSE streams reward events for the authenticated user as
// they land in the outbox.
func (s *ProgressionService) StreamUserEventsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	// fasthttp stream writer replaces Flush on the fiber side
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var cursorAt time.Time
		var cursorID string

		var latest models.RewardEvent
		if err := s.DB.
			Where("user_id = ?", userID).
			Order("created_at DESC, id DESC").
			First(&latest).Error; err == nil {
			cursorAt = latest.CreatedAt
			cursorID = latest.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.Log.Warnw("sse cursor init failed", "user_id", userID, "error", err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				events, err := s.eventsAfter(userID, cursorAt, cursorID)
				if err != nil {
					s.Log.Warnw("sse poll failed", "user_id", userID, "error", err)
					continue
				}
				if len(events) == 0 {
					continue
				}

				last := events[len(events)-1]
				cursorAt, cursorID = last.CreatedAt, last.ID
				for _, e := range events {
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.EventType, e.Payload)
				}
				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
