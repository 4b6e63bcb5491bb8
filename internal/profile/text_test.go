package profile

import "testing"

func TestText(t *testing.T) {
	p := Profile{
		Name:     "Ada",
		Bio:      "Builds compilers",
		Industry: "Software",
		Location: "London",
		Skills:   []Skill{{Name: "Go"}, {Name: "Rust"}},
	}

	want := "Builds compilers Software Go Rust London"
	if got := Text(p); got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
}

func TestText_NoSkills(t *testing.T) {
	p := Profile{Bio: "b", Industry: "i", Location: "l", Skills: []Skill{}}

	if got, want := Text(p), "b i  l"; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
}

func TestText_Deterministic(t *testing.T) {
	p := Profile{Bio: "b", Industry: "i", Location: "l", Skills: []Skill{{Name: "x"}}}
	if Text(p) != Text(p) {
		t.Error("Text is not deterministic")
	}
}

func TestFromQuery(t *testing.T) {
	level := "expert"
	q := Query{
		Bio:    "Founder looking for a CTO",
		Skills: []Skill{{Name: " Sales "}, {Name: "  "}, {Name: "Growth", Level: &level}},
	}

	p := FromQuery(q)
	if p.Name != DefaultQueryName {
		t.Errorf("name = %q, want %q", p.Name, DefaultQueryName)
	}
	if p.Industry != DefaultIndustry || p.Location != DefaultLocation {
		t.Errorf("defaults not applied: %+v", p)
	}
	if len(p.Skills) != 2 || p.Skills[0].Name != "Sales" || p.Skills[1].Name != "Growth" {
		t.Fatalf("skills = %+v", p.Skills)
	}
	if p.Skills[1].Level == nil || *p.Skills[1].Level != "expert" {
		t.Errorf("level not carried: %+v", p.Skills[1])
	}

	want := "Founder looking for a CTO Unknown industry Sales Growth No location listed"
	if got := Text(p); got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
}
