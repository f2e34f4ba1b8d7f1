package swapi

// Category names a group of reference URLs on a person.
type Category struct {
	// Name is the JSON field and column name.
	Name string

	// URLs returns the reference URLs of this category on raw.
	URLs func(raw RawPerson) []string

	// Set stores the joined resolved names on p.
	Set func(p *Person, joined string)
}

// Categories lists the reference categories of a person in column order.
var Categories = []Category{
	{
		Name: "films",
		URLs: func(raw RawPerson) []string { return raw.Films },
		Set:  func(p *Person, joined string) { p.Films = joined },
	},
	{
		Name: "species",
		URLs: func(raw RawPerson) []string { return raw.Species },
		Set:  func(p *Person, joined string) { p.Species = joined },
	},
	{
		Name: "starships",
		URLs: func(raw RawPerson) []string { return raw.Starships },
		Set:  func(p *Person, joined string) { p.Starships = joined },
	},
	{
		Name: "vehicles",
		URLs: func(raw RawPerson) []string { return raw.Vehicles },
		Set:  func(p *Person, joined string) { p.Vehicles = joined },
	},
}
