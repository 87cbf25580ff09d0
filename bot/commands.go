package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/evkuzin/planthealth/care"
	"github.com/evkuzin/planthealth/storage"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const startText = "Hi! I'm just a messenger. I will relay messages to plants while you are out!"

const helpText = `I can help you communicate with your plants!

Available commands:
/start - Start the bot
/help - Show this help message
/status - Check the status of all plants
/stats - Show moisture averages of all plants
/plants - List available plants
/addplant Name; Species; Location; Threshold - Register a new plant
/report [Name] - Get a PDF report of a plant

To chat with a specific plant, start your message with their name:
Example: 'Vendula, how are you feeling today?'`

const (
	noPlantsText = "No plants are registered with the bot yet."
	addPlantHelp = "Usage: /addplant Name; Species; Location; Threshold"
	timeLayout   = "2006-01-02 15:04"
)

func (b *Bot) cmdPlants(ctx context.Context, msg *tgbotapi.Message) {
	plants, err := b.storage.ListPlants(ctx)
	if err != nil {
		b.logger.Errorf("cannot list plants: %s", err)
		b.reply(msg, "Cannot get plants right now.")
		return
	}
	if len(plants) == 0 {
		b.reply(msg, noPlantsText)
		return
	}
	var sb strings.Builder
	sb.WriteString("Available plants:\n")
	for _, p := range plants {
		fmt.Fprintf(&sb, "- %s (%s) - %s\n", p.Name, p.Species, p.Persona)
	}
	b.reply(msg, strings.TrimSuffix(sb.String(), "\n"))
}

func statusText(plant *storage.Plant, reading *storage.Reading) string {
	if reading == nil {
		return fmt.Sprintf("🌱 %s\nNo sensor data available for %s", plant.Name, plant.Name)
	}
	eval := care.Evaluate(plant.MoistureThreshold, reading.Moisture)
	return fmt.Sprintf("🌱 %s\nMoisture: %.1f%%\nTemperature: %.1f°C\n%s %s: %s\nLast updated: %s",
		plant.Name,
		reading.Moisture,
		reading.Temperature,
		eval.Icon, eval.Status, eval.Message,
		reading.CreatedAt.Local().Format(timeLayout),
	)
}

// latest returns nil without an error when the plant has no readings yet.
func (b *Bot) latest(ctx context.Context, plantID uint) (*storage.Reading, error) {
	reading, err := b.storage.LatestReading(ctx, plantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return reading, err
}

// cmdStatus replies with the evaluation of every plant, then lets each plant
// with readings speak for itself.
func (b *Bot) cmdStatus(ctx context.Context, msg *tgbotapi.Message) {
	plants, err := b.storage.ListPlants(ctx)
	if err != nil {
		b.logger.Errorf("cannot list plants: %s", err)
		b.reply(msg, "Cannot get plants right now.")
		return
	}
	if len(plants) == 0 {
		b.reply(msg, noPlantsText)
		return
	}

	blocks := make([]string, 0, len(plants))
	readings := make([]*storage.Reading, len(plants))
	for i := range plants {
		reading, err := b.latest(ctx, plants[i].ID)
		if err != nil {
			b.logger.Errorf("cannot get reading of %s: %s", plants[i].Name, err)
		}
		readings[i] = reading
		blocks = append(blocks, statusText(&plants[i], reading))
	}
	b.reply(msg, strings.Join(blocks, "\n\n"))

	if b.assistant == nil {
		return
	}
	for i := range plants {
		if readings[i] == nil {
			continue
		}
		text, err := b.assistant.Notification(ctx, &plants[i], readings[i])
		if err != nil {
			b.logger.Warnf("cannot get notification for %s: %s", plants[i].Name, err)
			continue
		}
		_ = b.sendPlantMessage(msg.Chat.ID, plants[i].Name, text)
	}
}

func (b *Bot) avg(ctx context.Context, plantID uint, window time.Duration) string {
	v, err := b.storage.GetAvg(ctx, plantID, window)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.logger.Errorf("cannot get %s average: %s", window, err)
		}
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", v)
}

func (b *Bot) cmdStats(ctx context.Context, msg *tgbotapi.Message) {
	plants, err := b.storage.ListPlants(ctx)
	if err != nil {
		b.logger.Errorf("cannot list plants: %s", err)
		b.reply(msg, "Cannot get plants right now.")
		return
	}
	if len(plants) == 0 {
		b.reply(msg, noPlantsText)
		return
	}
	blocks := make([]string, 0, len(plants))
	for _, p := range plants {
		current := "n/a"
		reading, err := b.latest(ctx, p.ID)
		if err != nil {
			b.logger.Errorf("cannot get reading of %s: %s", p.Name, err)
		}
		if reading != nil {
			current = fmt.Sprintf("%.1f%%", reading.Moisture)
		}
		blocks = append(blocks, fmt.Sprintf("%s\n12h avg: %s\n6h avg: %s\n1h avg: %s\nCurrent: %s",
			p.Name,
			b.avg(ctx, p.ID, 12*time.Hour),
			b.avg(ctx, p.ID, 6*time.Hour),
			b.avg(ctx, p.ID, time.Hour),
			current,
		))
	}
	b.reply(msg, strings.Join(blocks, "\n\n"))
}

// parsePlant reads "Name; Species; Location; Threshold", the last two are
// optional.
func parsePlant(args string) (*storage.Plant, error) {
	parts := strings.Split(args, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || len(parts) > 4 || parts[0] == "" || parts[1] == "" {
		return nil, errors.New(addPlantHelp)
	}
	plant := &storage.Plant{Name: parts[0], Species: parts[1]}
	if len(parts) > 2 {
		plant.Location = parts[2]
	}
	if len(parts) > 3 && parts[3] != "" {
		threshold, err := strconv.Atoi(parts[3])
		if err != nil || threshold <= 0 || threshold > 100 {
			return nil, errors.New("Threshold must be a number between 1 and 100")
		}
		plant.MoistureThreshold = threshold
	}
	return plant, nil
}

func (b *Bot) cmdAddPlant(ctx context.Context, msg *tgbotapi.Message) {
	plant, err := parsePlant(msg.CommandArguments())
	if err != nil {
		b.reply(msg, err.Error())
		return
	}
	if _, err := b.storage.GetPlantByName(ctx, plant.Name); err == nil {
		b.reply(msg, fmt.Sprintf("Plant %s already exists.", plant.Name))
		return
	}
	err = b.storage.CreatePlant(ctx, plant)
	if err != nil {
		b.logger.Errorf("cannot create plant: %s", err)
		b.reply(msg, fmt.Sprintf("Cannot add plant %s.", plant.Name))
		return
	}
	b.logger.Infof("plant %s added with ideal moisture %d%%", plant.Name, plant.MoistureThreshold)
	b.reply(msg, fmt.Sprintf("Plant %s added.", plant.Name))
}

func (b *Bot) cmdReport(ctx context.Context, msg *tgbotapi.Message) {
	if b.renderer == nil {
		b.reply(msg, "Reports are not available.")
		return
	}
	var plant *storage.Plant
	if name := strings.TrimSpace(msg.CommandArguments()); name != "" {
		p, err := b.storage.GetPlantByName(ctx, name)
		if err != nil {
			b.reply(msg, fmt.Sprintf("Unknown plant %s.", name))
			return
		}
		plant = p
	} else {
		plants, err := b.storage.ListPlants(ctx)
		if err != nil || len(plants) == 0 {
			b.reply(msg, noPlantsText)
			return
		}
		plant = &plants[0]
	}

	pdf, err := b.renderer.RenderPDF(ctx, plant.ID)
	if err != nil {
		b.logger.Errorf("cannot render report of %s: %s", plant.Name, err)
		b.reply(msg, "Cannot build the report right now.")
		return
	}
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  strings.ToLower(plant.Name) + "-report.pdf",
		Bytes: pdf,
	})
	doc.ReplyToMessageID = msg.MessageID
	_ = b.send(doc)
}
