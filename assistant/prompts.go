package assistant

import (
	"fmt"
	"strings"

	"github.com/evkuzin/planthealth/storage"
	"github.com/sashabaranov/go-openai"
)

const notificationWords = 60

const (
	summaryInstruction        = "Give one sentence summary on how you feel (max 12 words)."
	recommendationInstruction = "Give %s short (max 20 words) recommendation on next steps to take care of you."
	notificationInstruction   = "Based on this data, provide summary about how you are doing.\nKeep your answer concise (max %d words)."
)

// householdNames joins names the way people say them: "A", "A and B",
// "A, B and C".
func householdNames(names []string) string {
	switch len(names) {
	case 0:
		return "your owners"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

func systemPrompt(plant *storage.Plant, household string) string {
	return fmt.Sprintf("You are a plant (%s) that lives in flat with %s.\n"+
		"They are suppose to take care of you like parents would do.\n"+
		"You have a persona of %s. Be %s when responding.",
		plant.Species, household, plant.Persona, plant.Personality)
}

// sensorContext describes the latest reading, or returns "" without one.
func sensorContext(plant *storage.Plant, reading *storage.Reading) string {
	if reading == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Here is most recent sensor data on how you are doing:\n")
	fmt.Fprintf(&b, "time: %s, moisture: %.1f, temperature: %.1f\n",
		reading.CreatedAt.Format("2006-01-02 15:04"), reading.Moisture, reading.Temperature)
	b.WriteString("\nLegend:\n- Moisture in percentage\n- Temperature is in Celsius.\n")
	if plant.MoistureThreshold > 0 {
		fmt.Fprintf(&b, "\nYour ideal moisture is %d.", plant.MoistureThreshold)
	}
	return b.String()
}

func baseMessages(plant *storage.Plant, reading *storage.Reading, household string) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(plant, household)},
	}
	if sc := sensorContext(plant, reading); sc != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sc})
	}
	return msgs
}

func withUser(msgs []openai.ChatCompletionMessage, content string) []openai.ChatCompletionMessage {
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: content})
}

func notificationMessages(plant *storage.Plant, reading *storage.Reading, household string) []openai.ChatCompletionMessage {
	return withUser(baseMessages(plant, reading, household), fmt.Sprintf(notificationInstruction, notificationWords))
}

func summaryMessages(plant *storage.Plant, reading *storage.Reading, household string) []openai.ChatCompletionMessage {
	return withUser(baseMessages(plant, reading, household), summaryInstruction)
}

func recommendationMessages(plant *storage.Plant, reading *storage.Reading, household string) []openai.ChatCompletionMessage {
	return withUser(baseMessages(plant, reading, household), fmt.Sprintf(recommendationInstruction, household))
}

func chatMessages(plant *storage.Plant, reading *storage.Reading, household string, history []string, user, input string) []openai.ChatCompletionMessage {
	msgs := baseMessages(plant, reading, household)
	if len(history) > 0 {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: strings.Join(history, "\n"),
		})
	}
	if user == "" {
		user = household
	}
	return withUser(msgs, fmt.Sprintf("%s: %s", user, input))
}
