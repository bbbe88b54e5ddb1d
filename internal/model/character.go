// Package model contains internal domain models for the catalog service.
package model

import "strings"

// Status is the vital status of a character.
type Status string

const (
	StatusAlive   Status = "alive"
	StatusDead    Status = "dead"
	StatusUnknown Status = "unknown"
)

// Gender is the gender of a character.
type Gender string

const (
	GenderMale       Gender = "male"
	GenderFemale     Gender = "female"
	GenderGenderless Gender = "genderless"
	GenderUnknown    Gender = "unknown"
)

// Character is one catalog entry as synchronized from the remote API.
// Values are replaced wholesale on re-sync, never patched.
type Character struct {
	ID           int
	Name         string
	Status       Status
	Species      string
	Type         string
	Gender       Gender
	OriginName   string
	LocationName string
	ImageURL     string
	EpisodeURLs  []string
	Created      string
}

// ParseStatus maps a free-form status to the closed Status set.
// Anything unrecognised is StatusUnknown.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(StatusAlive):
		return StatusAlive
	case string(StatusDead):
		return StatusDead
	default:
		return StatusUnknown
	}
}

// ParseGender maps a free-form gender to the closed Gender set.
// Anything unrecognised is GenderUnknown.
func ParseGender(raw string) Gender {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(GenderMale):
		return GenderMale
	case string(GenderFemale):
		return GenderFemale
	case string(GenderGenderless):
		return GenderGenderless
	default:
		return GenderUnknown
	}
}

// CharacterIDs returns the ids of items in order.
func CharacterIDs(items []Character) []int {
	ids := make([]int, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}
