package nara

import (
	"encoding/json"
	"time"
)

// Session is the bearer-token state against the destination platform,
// held in memory for the life of the process.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// BirthDate unmarshals both bare dates and full timestamps.
type BirthDate struct {
	time.Time
}

func (d *BirthDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return err
		}
	}
	d.Time = t
	return nil
}

type Baby struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BirthDate BirthDate `json:"birth_date"`
}

type RecordType string

const (
	RecordDiaper  RecordType = "diaper"
	RecordFeeding RecordType = "feeding"
	RecordSleep   RecordType = "sleep"
	RecordHealth  RecordType = "health"
	RecordPhoto   RecordType = "photo"
	RecordNote    RecordType = "note"
)

type DiaperStatus string

const (
	DiaperWet   DiaperStatus = "wet"
	DiaperDirty DiaperStatus = "dirty"
	DiaperBoth  DiaperStatus = "both"
	DiaperDry   DiaperStatus = "dry"
)

type FeedingType string

const (
	FeedingBottle  FeedingType = "bottle"
	FeedingSolid   FeedingType = "solid"
	FeedingFormula FeedingType = "formula"
	FeedingPumped  FeedingType = "pumped"
)

type SleepType string

const (
	SleepNap   SleepType = "nap"
	SleepNight SleepType = "night"
)

// Record is the destination activity schema: the shared fields plus the
// per-type ones, serialized flat the way the API expects them.
type Record struct {
	ID     string     `json:"id,omitempty"`
	BabyID string     `json:"baby_id,omitempty"`
	Type   RecordType `json:"activity_type"`
	Time   time.Time  `json:"timestamp"`
	Notes  string     `json:"notes,omitempty"`

	// diaper
	Status       DiaperStatus `json:"status,omitempty"`
	CreamApplied bool         `json:"cream_applied,omitempty"`

	// feeding
	FeedingType FeedingType `json:"feeding_type,omitempty"`
	AmountMl    float64     `json:"amount_ml,omitempty"`
	FoodItems   []string    `json:"food_items,omitempty"`

	// sleep
	SleepType       SleepType  `json:"sleep_type,omitempty"`
	Start           *time.Time `json:"start_time,omitempty"`
	End             *time.Time `json:"end_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`

	// health
	TemperatureC float64 `json:"temperature_celsius,omitempty"`

	// photo
	PhotoURL string `json:"photo_url,omitempty"`
	Caption  string `json:"caption,omitempty"`
}
