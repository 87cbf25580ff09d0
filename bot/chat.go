package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/evkuzin/planthealth/storage"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// route picks the plant a message is addressed to. A message that starts with
// a plant name goes to that plant with the name stripped, anything else goes
// to the first plant.
func route(plants []storage.Plant, text string) (*storage.Plant, string) {
	for i := range plants {
		name := plants[i].Name
		if name != "" && len(text) >= len(name) && strings.EqualFold(text[:len(name)], name) {
			return &plants[i], strings.TrimLeft(text[len(name):], ",:; ")
		}
	}
	return &plants[0], text
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	if b.assistant == nil {
		b.reply(msg, "Chatbot disabled - missing API key")
		return
	}
	plants, err := b.storage.ListPlants(ctx)
	if err != nil {
		b.logger.Errorf("cannot list plants: %s", err)
	}
	if len(plants) == 0 {
		b.reply(msg, "Sorry, I don't have any plants registered to chat with you.")
		return
	}
	plant, text := route(plants, msg.Text)

	history := b.historyFor(plant.ID)
	b.remember(plant.ID, "User: "+text)

	reading, err := b.latest(ctx, plant.ID)
	if err != nil {
		b.logger.Warnf("cannot get reading of %s: %s", plant.Name, err)
	}
	user := ""
	if msg.From != nil {
		user = msg.From.FirstName
	}
	answer, err := b.assistant.Chat(ctx, plant, reading, history, user, text)
	if err != nil {
		b.logger.Errorf("cannot chat with %s: %s", plant.Name, err)
		b.reply(msg, fmt.Sprintf("Sorry, %s is having trouble communicating right now.", plant.Name))
		return
	}
	b.remember(plant.ID, "Plant: "+answer)
	_ = b.sendPlantMessage(msg.Chat.ID, plant.Name, answer)
}

// historyFor returns a copy of the conversation with a plant. A conversation
// idle for longer than historyExpiry starts over.
func (b *Bot) historyFor(plantID uint) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.history[plantID]
	if !ok {
		return nil
	}
	if b.now().Sub(c.lastActive) > b.historyExpiry {
		delete(b.history, plantID)
		return nil
	}
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

func (b *Bot) remember(plantID uint, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.history[plantID]
	if !ok {
		c = &conversation{}
		b.history[plantID] = c
	}
	c.lastActive = b.now()
	c.messages = append(c.messages, line)
	if over := len(c.messages) - b.historyLength; b.historyLength > 0 && over > 0 {
		c.messages = c.messages[over:]
	}
}
