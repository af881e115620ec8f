package transfer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"cribsync/lib/platforms/brightwheel"
	"cribsync/lib/platforms/nara"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func normalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// the destination stores one display name; its first token is the
// first name
func babyFirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func matchKey(firstName string, birthdate time.Time) string {
	return normalizeName(firstName) + "|" + birthdate.UTC().Format("2006-01-02")
}

// Unmatched reports a source child that could not be paired, with the
// closest destination name as a hint for the user.
type Unmatched struct {
	Student brightwheel.Student
	Reason  string
	// closest destination child by name similarity, empty when the
	// destination has no children at all
	Suggestion string
}

type MatchResult struct {
	// source student id -> destination baby id
	Pairs     map[string]string
	Unmatched []Unmatched
}

// MatchChildren pairs source students with destination babies on
// (first name, birthdate) equality. A pairing is accepted only when
// exactly one student and exactly one baby share the key; anything
// ambiguous is reported, never guessed at.
func MatchChildren(students []brightwheel.Student, babies []nara.Baby) MatchResult {
	babiesByKey := make(map[string][]nara.Baby)
	for _, baby := range babies {
		key := matchKey(babyFirstName(baby.Name), baby.BirthDate.Time)
		babiesByKey[key] = append(babiesByKey[key], baby)
	}
	studentsByKey := make(map[string]int)
	for _, student := range students {
		studentsByKey[matchKey(student.FirstName, student.Birthdate.Time)]++
	}

	result := MatchResult{Pairs: map[string]string{}}
	for _, student := range students {
		key := matchKey(student.FirstName, student.Birthdate.Time)

		if studentsByKey[key] > 1 {
			result.Unmatched = append(result.Unmatched, Unmatched{
				Student: student,
				Reason:  "multiple source children share this name and birthdate",
			})
			continue
		}

		candidates := babiesByKey[key]
		switch len(candidates) {
		case 1:
			result.Pairs[student.ID] = candidates[0].ID
		case 0:
			result.Unmatched = append(result.Unmatched, Unmatched{
				Student:    student,
				Reason:     "no destination child with this name and birthdate",
				Suggestion: closestBabyName(student.FirstName, babies),
			})
		default:
			result.Unmatched = append(result.Unmatched, Unmatched{
				Student: student,
				Reason: fmt.Sprintf(
					"%d destination children share this name and birthdate",
					len(candidates),
				),
			})
		}
	}

	return result
}

func closestBabyName(firstName string, babies []nara.Baby) string {
	target := normalizeName(firstName)

	var best string
	var bestSimilarity float64
	for _, baby := range babies {
		similarity := matchr.JaroWinkler(target, normalizeName(babyFirstName(baby.Name)), false)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = baby.Name
		}
	}
	return best
}
