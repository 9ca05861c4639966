package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gamification-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RewardNotificationWorker drains the reward event outbox and POSTs each
// batch to the notification service. Events are marked dispatched only after
// a successful POST, so delivery is at-least-once; the notification service
// dedupes on event id.
type RewardNotificationWorker struct {
	db           *gorm.DB
	log          *zap.SugaredLogger
	webhookURL   string
	serviceToken string
	interval     time.Duration
	httpClient   *http.Client
}

func NewRewardNotificationWorker(db *gorm.DB, log *zap.SugaredLogger, webhookURL, serviceToken string, interval time.Duration) *RewardNotificationWorker {
	return &RewardNotificationWorker{
		db:           db,
		log:          log,
		webhookURL:   webhookURL,
		serviceToken: serviceToken,
		interval:     interval,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *RewardNotificationWorker) Start(ctx context.Context) {
	w.log.Infow("reward notification worker started", "interval", w.interval)
	go w.run(ctx)
}

func (w *RewardNotificationWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.dispatchBatch(ctx); err != nil {
				w.log.Warnw("event dispatch failed", "error", err)
			}
		case <-ctx.Done():
			w.log.Infow("reward notification worker stopped")
			return
		}
	}
}

func (w *RewardNotificationWorker) dispatchBatch(ctx context.Context) error {
	var events []models.RewardEvent
	err := w.db.Where("dispatched_at IS NULL").
		Order("created_at ASC").
		Limit(100).
		Find(&events).Error
	if err != nil {
		return fmt.Errorf("outbox read: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	body, err := json.Marshal(eventEnvelope{Events: events})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	now := time.Now()
	err = w.db.Model(&models.RewardEvent{}).
		Where("id IN ?", ids).
		Update("dispatched_at", now).Error
	if err != nil {
		// events will be re-sent next tick; receiver dedupes on id
		return fmt.Errorf("mark dispatched: %w", err)
	}

	w.log.Infow("reward events dispatched", "count", len(events))
	return nil
}

type eventEnvelope struct {
	Events []models.RewardEvent `json:"events"`
}
