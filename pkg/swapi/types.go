// Package swapi defines the catalog records that flow through the ETL:
// raw people as the API returns them, the entities their reference URLs
// point to, and the enriched rows persisted to the store.
package swapi

import "strings"

// Separator joins resolved names inside a flattened category column.
const Separator = ","

// RawPerson is one entry of the people listing as returned by the API.
// Category fields hold reference URLs that still need resolving.
type RawPerson struct {
	Name      string   `json:"name"`
	Height    string   `json:"height"`
	Mass      string   `json:"mass"`
	HairColor string   `json:"hair_color"`
	SkinColor string   `json:"skin_color"`
	EyeColor  string   `json:"eye_color"`
	BirthYear string   `json:"birth_year"`
	Gender    string   `json:"gender"`
	Homeworld string   `json:"homeworld"`
	Films     []string `json:"films"`
	Species   []string `json:"species"`
	Starships []string `json:"starships"`
	Vehicles  []string `json:"vehicles"`
	URL       string   `json:"url"`
}

// PeoplePage is one page of the people listing.
type PeoplePage struct {
	Count    int         `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  []RawPerson `json:"results"`
}

// Entity is a resolved reference. Only the display name is kept; films
// carry a title instead of a name.
type Entity struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// DisplayName returns the entity name, falling back to its title.
func (e Entity) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Title
}

// Person is a RawPerson with every reference replaced by resolved names.
type Person struct {
	Name      string
	Height    string
	Mass      string
	HairColor string
	SkinColor string
	EyeColor  string
	BirthYear string
	Gender    string
	Homeworld string
	Films     string
	Species   string
	Starships string
	Vehicles  string
}

// NewPerson copies the scalar fields of raw. Reference fields are left empty
// for the enricher to fill.
func NewPerson(raw RawPerson) Person {
	return Person{
		Name:      raw.Name,
		Height:    raw.Height,
		Mass:      raw.Mass,
		HairColor: raw.HairColor,
		SkinColor: raw.SkinColor,
		EyeColor:  raw.EyeColor,
		BirthYear: raw.BirthYear,
		Gender:    raw.Gender,
	}
}

// Batch holds the enriched people of one listing page.
type Batch struct {
	Page   int
	People []Person
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int {
	return len(b.People)
}

// Join flattens resolved names into a single column value.
// An empty slice yields the empty string.
func Join(names []string) string {
	return strings.Join(names, Separator)
}

// Split reverses Join. The empty string yields nil.
func Split(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, Separator)
}
