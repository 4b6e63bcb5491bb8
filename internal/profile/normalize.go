package profile

import (
	"fmt"
	"strings"

	"github.com/kalambet/cohatch/internal/source"
)

// Field names a canonical profile field.
type Field string

const (
	FieldName     Field = "name"
	FieldBio      Field = "bio"
	FieldIndustry Field = "industry"
	FieldLocation Field = "location"
	FieldSkills   Field = "skills"
)

// ColumnAliases maps each canonical field to the source columns it may be
// read from, in priority order. The first alias present in a table wins.
var ColumnAliases = map[Field][]string{
	FieldName:     {"name", "full_name"},
	FieldBio:      {"about", "bio", "summary"},
	FieldIndustry: {"sphere", "industry"},
	FieldLocation: {"locations", "location", "city"},
	FieldSkills:   {"specialties", "skills"},
}

// ResolveColumns returns the column index chosen for every canonical field,
// or -1 when no alias is present.
func ResolveColumns(t source.Table, aliases map[Field][]string) map[Field]int {
	resolved := make(map[Field]int, len(aliases))
	for field, names := range aliases {
		resolved[field] = -1
		for _, name := range names {
			if i := t.ColumnIndex(name); i >= 0 {
				resolved[field] = i
				break
			}
		}
	}
	return resolved
}

// Normalize maps every row of t to a canonical Profile, preserving row order.
// Missing or null values are replaced with defaults; rows are never dropped.
func Normalize(t source.Table) []Profile {
	cols := ResolveColumns(t, ColumnAliases)
	out := make([]Profile, t.Len())
	for i := range t.Rows {
		out[i] = normalizeRow(t, i, cols)
	}
	return out
}

func normalizeRow(t source.Table, row int, cols map[Field]int) Profile {
	value := func(f Field, def string) string {
		c := t.Cell(row, cols[f])
		if !c.Valid {
			return def
		}
		return c.String
	}

	p := Profile{
		Name:     value(FieldName, fmt.Sprintf("Profile %d", row)),
		Bio:      value(FieldBio, DefaultBio),
		Industry: value(FieldIndustry, DefaultIndustry),
		Location: value(FieldLocation, DefaultLocation),
		Skills:   []Skill{},
	}
	if c := t.Cell(row, cols[FieldSkills]); c.Valid {
		p.Skills = ParseSkills(c.String)
	}
	return p
}

// ParseSkills splits a comma-separated skills string. Pieces are trimmed and
// empty ones dropped; levels are left unset.
func ParseSkills(raw string) []Skill {
	skills := []Skill{}
	for _, piece := range strings.Split(raw, ",") {
		name := strings.TrimSpace(piece)
		if name == "" {
			continue
		}
		skills = append(skills, Skill{Name: name})
	}
	return skills
}
