package brightwheel

import (
	"encoding/json"
	"time"
)

// Session is the authenticated state against the origin platform. It is
// held in memory only and passed explicitly, never persisted.
type Session struct {
	UserID    string
	Cookie    string
	ExpiresAt time.Time
}

// Date unmarshals the platform's bare-date strings ("2022-01-01") as
// well as full ISO timestamps.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
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

type Guardian struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Student struct {
	ID               string     `json:"id"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Birthdate        Date       `json:"birthdate"`
	Room             *Room      `json:"room"`
	Guardians        []Guardian `json:"guardians"`
	EnrollmentStatus string     `json:"enrollment_status"`
}

type Kind string

const (
	KindDiaper      Kind = "diaper"
	KindBottle      Kind = "bottle"
	KindFood        Kind = "food"
	KindNap         Kind = "nap"
	KindMood        Kind = "mood"
	KindTemperature Kind = "temperature"
	KindIncident    Kind = "incident"
	KindMedication  Kind = "medication"
	KindPhoto       Kind = "photo"
	KindNote        Kind = "note"
	KindPotty       Kind = "potty"
)

type DiaperType string

const (
	DiaperWet   DiaperType = "wet"
	DiaperBM    DiaperType = "bm"
	DiaperWetBM DiaperType = "wet_bm"
	DiaperDry   DiaperType = "dry"
)

type Diaper struct {
	Type     DiaperType
	HasCream bool
}

type Bottle struct {
	AmountOz   float64
	BottleType string // milk, formula, pumped
}

type Food struct {
	MealType    string // breakfast, lunch, snack, dinner
	Foods       []string
	AmountEaten string // all, most, some, none
}

type Nap struct {
	Start time.Time
	// zero when the nap is still open
	End             time.Time
	DurationMinutes int
}

type Temperature struct {
	DegreesF float64
	Method   string // forehead, ear, oral
}

type Photo struct {
	URLs    []string
	Caption string
}

type Potty struct {
	Success   bool
	PottyType string // pee, poop, both
}

// Activity is a tagged variant over the platform's activity kinds.
// Exactly the field matching Kind is non-nil; kinds without a payload
// (mood, incident, medication, note) carry only the shared fields.
type Activity struct {
	ID        string
	Kind      Kind
	StudentID string
	Time      time.Time
	Notes     string

	Diaper      *Diaper
	Bottle      *Bottle
	Food        *Food
	Nap         *Nap
	Temperature *Temperature
	Photo       *Photo
	Potty       *Potty
}

// the feed serves every activity kind as one flat object keyed by
// activity_type
type activityWire struct {
	ID           string     `json:"id"`
	ActivityType Kind       `json:"activity_type"`
	StudentID    string     `json:"student_id"`
	Timestamp    *time.Time `json:"timestamp"`
	Notes        string     `json:"notes"`

	DiaperType DiaperType `json:"diaper_type"`
	HasCream   bool       `json:"has_cream"`

	AmountOz   float64 `json:"amount_oz"`
	BottleType string  `json:"bottle_type"`

	MealType    string   `json:"meal_type"`
	Foods       []string `json:"foods"`
	AmountEaten string   `json:"amount_eaten"`

	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`

	TemperatureF float64 `json:"temperature_f"`
	Method       string  `json:"method"`

	PhotoURLs []string `json:"photo_urls"`
	Caption   string   `json:"caption"`

	Success   bool   `json:"success"`
	PottyType string `json:"potty_type"`
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	var w activityWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	a.ID = w.ID
	a.Kind = w.ActivityType
	a.StudentID = w.StudentID
	a.Notes = w.Notes
	if w.Timestamp != nil {
		a.Time = *w.Timestamp
	} else if w.StartTime != nil {
		a.Time = *w.StartTime
	}

	switch w.ActivityType {
	case KindDiaper:
		a.Diaper = &Diaper{Type: w.DiaperType, HasCream: w.HasCream}
	case KindBottle:
		a.Bottle = &Bottle{AmountOz: w.AmountOz, BottleType: w.BottleType}
	case KindFood:
		a.Food = &Food{MealType: w.MealType, Foods: w.Foods, AmountEaten: w.AmountEaten}
	case KindNap:
		nap := &Nap{DurationMinutes: w.DurationMinutes}
		if w.StartTime != nil {
			nap.Start = *w.StartTime
		}
		if w.EndTime != nil {
			nap.End = *w.EndTime
		}
		a.Nap = nap
	case KindTemperature:
		a.Temperature = &Temperature{DegreesF: w.TemperatureF, Method: w.Method}
	case KindPhoto:
		a.Photo = &Photo{URLs: w.PhotoURLs, Caption: w.Caption}
	case KindPotty:
		a.Potty = &Potty{Success: w.Success, PottyType: w.PottyType}
	}
	return nil
}
