package views

import "strings"

type DrinkOptionGroup struct {
	Label   string   `json:"label"`
	Options []string `json:"options"`
}

var drinkOptions = map[string][]DrinkOptionGroup{
	"martini": {
		{Label: "Alcohol", Options: []string{"Gin", "Vodka"}},
		{Label: "Level of Dirt", Options: []string{"None", "Some", "Extra", "Filthy"}},
		{Label: "Vermouth", Options: []string{"Bone Dry", "Spray", "Standard", "Wet"}},
		{Label: "Garnish", Options: []string{"Garlic Olives", "Blue Cheese Olives", "Feta Olives", "Regular Olives", "Lemon Peel"}},
	},
	"old fashioned": {
		{Label: "Liquor", Options: []string{"Rye", "Bourbon (oaky side)", "Bourbon (vanilla side)"}},
	},
}

// DrinkOptions -> customization groups for a drink, nil when it has none
func DrinkOptions(drinkName string) []DrinkOptionGroup {
	return drinkOptions[strings.ToLower(strings.TrimSpace(drinkName))]
}

// SerializeDrinkOptions renders the chosen options as item notes: selections in group
// order joined by " | ", then any free-text notes on their own line.
func SerializeDrinkOptions(groups []DrinkOptionGroup, selections map[string]string, notes string) string {
	var parts []string
	for _, g := range groups {
		if v := selections[g.Label]; v != "" {
			parts = append(parts, v)
		}
	}
	result := strings.Join(parts, " | ")

	notes = strings.TrimSpace(notes)
	if notes == "" {
		return result
	}
	if result == "" {
		return notes
	}
	return result + "\n" + notes
}
