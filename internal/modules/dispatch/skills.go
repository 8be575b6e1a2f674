// README: Service-category to required-skill derivation.
package dispatch

import "strings"

// categorySkills maps a job's appliance/service category to the synonym set
// technicians may list the skill under. Lookup is case-insensitive; an
// unknown category maps to itself as its sole required skill.
var categorySkills = map[string][]string{
	"ac":              {"AC", "Air Conditioner", "HVAC", "Cooling"},
	"refrigerator":    {"Refrigerator", "Fridge", "Cooling"},
	"washing machine": {"Washing Machine", "Washer", "Laundry"},
	"microwave":       {"Microwave", "Oven"},
	"tv":              {"TV", "Television", "LED", "LCD"},
	"geyser":          {"Geyser", "Water Heater"},
	"water purifier":  {"Water Purifier", "RO", "Filter"},
	"chimney":         {"Chimney", "Exhaust", "Kitchen Hood"},
	"plumbing":        {"Plumbing", "Plumber", "Pipes"},
	"electrical":      {"Electrical", "Electrician", "Wiring"},
}

// RequiredSkills derives the skill set a job's category demands.
func RequiredSkills(category string) []string {
	if skills, ok := categorySkills[strings.ToLower(strings.TrimSpace(category))]; ok {
		return skills
	}
	return []string{category}
}

// skillMatchRatio is the fraction of required skills the technician covers.
// Matching is a case-insensitive substring test in either direction, so
// "AC Repair" covers "AC" and "Cooling" covers "Cooling Systems".
func skillMatchRatio(techSkills, required []string) float64 {
	if len(required) == 0 {
		return 0
	}
	matched := 0
	for _, req := range required {
		r := strings.ToLower(req)
		for _, have := range techSkills {
			h := strings.ToLower(have)
			if strings.Contains(h, r) || strings.Contains(r, h) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(required))
}
