package transfer

import (
	"fmt"
	"strings"
	"time"

	"cribsync/lib/platforms/brightwheel"
	"cribsync/lib/platforms/nara"
)

// ErrUnsupported marks a source activity kind with no destination
// equivalent; it is counted and skipped, never fatal.
type ErrUnsupported struct {
	Kind brightwheel.Kind
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("no destination equivalent for %q activities", e.Kind)
}

const mlPerOz = 29.5735

func ozToMl(oz float64) float64 {
	return oz * mlPerOz
}

func fahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

var diaperStatus = map[brightwheel.DiaperType]nara.DiaperStatus{
	brightwheel.DiaperWet:   nara.DiaperWet,
	brightwheel.DiaperBM:    nara.DiaperDirty,
	brightwheel.DiaperWetBM: nara.DiaperBoth,
	brightwheel.DiaperDry:   nara.DiaperDry,
}

// TransformActivity maps one source activity into the destination
// schema. Pure; dispatches exhaustively on the activity kind.
func TransformActivity(a brightwheel.Activity) (nara.Record, error) {
	switch a.Kind {
	case brightwheel.KindDiaper:
		return transformDiaper(a), nil
	case brightwheel.KindPotty:
		return transformPotty(a), nil
	case brightwheel.KindBottle:
		return transformBottle(a), nil
	case brightwheel.KindFood:
		return transformFood(a), nil
	case brightwheel.KindNap:
		return transformNap(a), nil
	case brightwheel.KindTemperature:
		return transformTemperature(a), nil
	case brightwheel.KindPhoto:
		return transformPhoto(a), nil
	case brightwheel.KindNote:
		return nara.Record{
			Type:  nara.RecordNote,
			Time:  a.Time,
			Notes: a.Notes,
		}, nil
	default:
		// mood, incident, medication and anything the source adds later
		return nara.Record{}, &ErrUnsupported{Kind: a.Kind}
	}
}

func transformDiaper(a brightwheel.Activity) nara.Record {
	status, ok := diaperStatus[a.Diaper.Type]
	if !ok {
		status = nara.DiaperWet
	}
	return nara.Record{
		Type:         nara.RecordDiaper,
		Time:         a.Time,
		Notes:        a.Notes,
		Status:       status,
		CreamApplied: a.Diaper.HasCream,
	}
}

// the destination has no potty concept; successful potty trips land as
// diaper records, which is where its UI surfaces them
func transformPotty(a brightwheel.Activity) nara.Record {
	var status nara.DiaperStatus
	switch a.Potty.PottyType {
	case "pee":
		status = nara.DiaperWet
	case "poop":
		status = nara.DiaperDirty
	case "both":
		status = nara.DiaperBoth
	default:
		status = nara.DiaperDry
	}

	notes := "Potty"
	if !a.Potty.Success {
		notes = "Potty (attempt)"
	}
	if a.Notes != "" {
		notes += ": " + a.Notes
	}

	return nara.Record{
		Type:   nara.RecordDiaper,
		Time:   a.Time,
		Notes:  notes,
		Status: status,
	}
}

func transformBottle(a brightwheel.Activity) nara.Record {
	feedingType := nara.FeedingBottle
	switch a.Bottle.BottleType {
	case "formula":
		feedingType = nara.FeedingFormula
	case "pumped":
		feedingType = nara.FeedingPumped
	}

	return nara.Record{
		Type:        nara.RecordFeeding,
		Time:        a.Time,
		Notes:       a.Notes,
		FeedingType: feedingType,
		AmountMl:    ozToMl(a.Bottle.AmountOz),
	}
}

func transformFood(a brightwheel.Activity) nara.Record {
	mealType := a.Food.MealType
	if mealType == "" {
		mealType = "meal"
	}
	amountEaten := a.Food.AmountEaten
	if amountEaten == "" {
		amountEaten = "some"
	}
	notes := strings.TrimSpace(fmt.Sprintf("%s: %s eaten. %s", mealType, amountEaten, a.Notes))

	return nara.Record{
		Type:        nara.RecordFeeding,
		Time:        a.Time,
		Notes:       notes,
		FeedingType: nara.FeedingSolid,
		FoodItems:   a.Food.Foods,
	}
}

func transformNap(a brightwheel.Activity) nara.Record {
	rec := nara.Record{
		Type:      nara.RecordSleep,
		Time:      a.Nap.Start,
		Notes:     a.Notes,
		SleepType: nara.SleepNap,
	}
	start := a.Nap.Start
	rec.Start = &start

	if !a.Nap.End.IsZero() {
		end := a.Nap.End
		rec.End = &end
		rec.DurationMinutes = int(end.Sub(start) / time.Minute)
	} else if a.Nap.DurationMinutes > 0 {
		rec.DurationMinutes = a.Nap.DurationMinutes
	}
	return rec
}

func transformTemperature(a brightwheel.Activity) nara.Record {
	method := a.Temperature.Method
	if method == "" {
		method = "forehead"
	}
	notes := strings.TrimSpace(fmt.Sprintf("Temperature taken via %s. %s", method, a.Notes))

	return nara.Record{
		Type:         nara.RecordHealth,
		Time:         a.Time,
		Notes:        notes,
		TemperatureC: fahrenheitToCelsius(a.Temperature.DegreesF),
	}
}

func transformPhoto(a brightwheel.Activity) nara.Record {
	var photoURL string
	if len(a.Photo.URLs) > 0 {
		photoURL = a.Photo.URLs[0]
	}
	caption := a.Photo.Caption
	if caption == "" {
		caption = a.Notes
	}

	return nara.Record{
		Type:     nara.RecordPhoto,
		Time:     a.Time,
		PhotoURL: photoURL,
		Caption:  caption,
	}
}
