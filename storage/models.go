package storage

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultPersona     = "little kid 7 years of age"
	DefaultPersonality = "cheerful, energetic, motivational"
	DefaultLocation    = "living room"
	DefaultThreshold   = 50
)

// Plant is a monitored plant and the character it plays in the chat.
type Plant struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"size:100;not null" json:"name"`
	NameKey           string    `gorm:"size:100;uniqueIndex" json:"-"`
	Species           string    `gorm:"size:100;not null" json:"species"`
	Persona           string    `json:"persona"`
	Personality       string    `json:"personality"`
	Location          string    `gorm:"size:100" json:"location"`
	MoistureThreshold int       `json:"moisture_threshold"`
	CreatedAt         time.Time `json:"created_at"`
}

func (p *Plant) BeforeCreate(_ *gorm.DB) error {
	if p.Name == "" {
		return errors.New("plant name is required")
	}
	if p.Species == "" {
		return errors.New("plant species is required")
	}
	p.NameKey = nameKey(p.Name)
	if p.Persona == "" {
		p.Persona = DefaultPersona
	}
	if p.Personality == "" {
		p.Personality = DefaultPersonality
	}
	if p.Location == "" {
		p.Location = DefaultLocation
	}
	if p.MoistureThreshold == 0 {
		p.MoistureThreshold = DefaultThreshold
	}
	return nil
}

// nameKey folds a plant name for case-insensitive lookups and uniqueness.
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Reading is a single sensor measurement. Rows are append-only.
type Reading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PlantID     uint      `gorm:"not null;index:idx_readings_plant_time,priority:1" json:"plant_id"`
	Moisture    float64   `json:"moisture"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `gorm:"index:idx_readings_plant_time,priority:2" json:"created_at"`
	Plant       *Plant    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// DailyValue is the aggregated moisture of one calendar day.
type DailyValue struct {
	Day      time.Time `json:"day"`
	Moisture float64   `json:"moisture"`
}

var seedPlants = []Plant{
	{
		Name:              "Vendula",
		Species:           "Venus flytrap",
		Persona:           "teenage girl full of hormones",
		Personality:       "very dramatic, sarcastic, emotional, and hilarious",
		Location:          "living room",
		MoistureThreshold: 80,
	},
	{
		Name:              "Bobeš",
		Species:           "Cactus",
		Persona:           "old grumpy grandpa",
		Personality:       "very grumpy, flegmatic, sarcastic and funny",
		Location:          "bedroom",
		MoistureThreshold: 15,
	},
}
