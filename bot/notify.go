package bot

import (
	"context"
	"time"
)

func (b *Bot) notifyLoop(ctx context.Context) {
	ticker := time.NewTicker(b.notifyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Notify(ctx)
		}
	}
}

// Notify sends a status update from every plant with readings to the
// configured chat. Plants notified within the cooldown are skipped, a failed
// notification is retried on the next round.
func (b *Bot) Notify(ctx context.Context) int {
	if b.chatID == 0 || b.assistant == nil {
		b.logger.Warn("notifications need a chat id and an assistant")
		return 0
	}
	plants, err := b.storage.ListPlants(ctx)
	if err != nil {
		b.logger.Errorf("cannot list plants: %s", err)
		return 0
	}
	sent := 0
	for i := range plants {
		plant := &plants[i]
		if b.cooling(plant.ID) {
			continue
		}
		reading, err := b.latest(ctx, plant.ID)
		if err != nil {
			b.logger.Errorf("cannot get reading of %s: %s", plant.Name, err)
			continue
		}
		if reading == nil {
			continue
		}
		text, err := b.assistant.Notification(ctx, plant, reading)
		if err != nil {
			b.logger.Warnf("cannot get notification for %s: %s", plant.Name, err)
			continue
		}
		if err := b.sendPlantMessage(b.chatID, plant.Name, text); err != nil {
			continue
		}
		b.mu.Lock()
		b.lastNotified[plant.ID] = b.now()
		b.mu.Unlock()
		sent++
	}
	return sent
}

func (b *Bot) cooling(plantID uint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	last, ok := b.lastNotified[plantID]
	return ok && b.now().Sub(last) < b.cooldown
}
