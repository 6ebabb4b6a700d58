package domain

// Region is a named geographic grouping used to classify places.
// A nil ParentID marks a top-level region (a city); a non-nil ParentID marks
// a sub-region of that city. The tree is exactly two levels deep.
type Region struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Country      string  `json:"country"`
	DisplayOrder int     `json:"display_order"`
	ParentID     *string `json:"parent_id"`
	IconURL      *string `json:"icon_url"`
}

// Read models for the search screen: country → city → sub-region, with place
// lists and counts at every level.

type SubRegionGroup struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Places []Place `json:"places"`
	Count  int     `json:"count"`
}

type CityGroup struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	IconURL    *string          `json:"icon_url"`
	Places     []Place          `json:"places"`
	Count      int              `json:"count"`
	SubRegions []SubRegionGroup `json:"sub_regions"`
}

type CountryGroup struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	IconURL *string     `json:"icon_url"`
	Cities  []CityGroup `json:"cities"`
	Places  []Place     `json:"places"`
	Count   int         `json:"count"`
}
