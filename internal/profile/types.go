package profile

import "strings"

// Profile is the canonical shape shared by pool entries and queries.
// After normalization every field is populated and Skills is non-nil.
type Profile struct {
	Name     string  `json:"name"`
	Bio      string  `json:"bio"`
	Industry string  `json:"industry"`
	Location string  `json:"location"`
	Skills   []Skill `json:"skills"`
}

// Skill is a named skill with an optional proficiency level.
type Skill struct {
	Name  string  `json:"name"`
	Level *string `json:"level"`
}

// Query is a caller-supplied profile. Any field may be blank; FromQuery fills
// the gaps with the same defaults pool rows get.
type Query struct {
	Name       string  `json:"name"`
	Bio        string  `json:"bio"`
	Industry   string  `json:"industry"`
	Location   string  `json:"location"`
	Skills     []Skill `json:"skills"`
	Experience *int    `json:"experience,omitempty"` // years
	Education  string  `json:"education,omitempty"`
}

// Default field values for missing source data.
const (
	DefaultBio       = "No bio available"
	DefaultIndustry  = "Unknown industry"
	DefaultLocation  = "No location listed"
	DefaultQueryName = "Query profile"
)

// FromQuery converts q into a canonical Profile. Blank fields take the
// normalizer defaults and skills with blank names are dropped.
func FromQuery(q Query) Profile {
	p := Profile{
		Name:     orDefault(q.Name, DefaultQueryName),
		Bio:      orDefault(q.Bio, DefaultBio),
		Industry: orDefault(q.Industry, DefaultIndustry),
		Location: orDefault(q.Location, DefaultLocation),
		Skills:   make([]Skill, 0, len(q.Skills)),
	}
	for _, s := range q.Skills {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			continue
		}
		p.Skills = append(p.Skills, Skill{Name: name, Level: s.Level})
	}
	return p
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
