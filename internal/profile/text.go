package profile

import "strings"

// Text flattens p into the descriptive string fed to the embedding model:
// bio, industry, skill names and location joined by single spaces. Pool rows
// and queries must both go through this function.
func Text(p Profile) string {
	names := make([]string, len(p.Skills))
	for i, s := range p.Skills {
		names[i] = s.Name
	}
	return p.Bio + " " + p.Industry + " " + strings.Join(names, " ") + " " + p.Location
}

// Texts projects a slice of profiles, keeping positions aligned.
func Texts(ps []Profile) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = Text(p)
	}
	return out
}
