package app

import (
	"math"
	"sort"
	"strings"

	"parchment/internal/domain"
)

// FallbackBucket is the sentinel country/city used for places that cannot be
// matched to any region. The UI renders it as an "Other" section.
const FallbackBucket = "기타"

// GroupByRegion builds the country → city → sub-region tree the search screen
// renders. Pure and deterministic: same inputs, same tree, same ordering.
//
// Classification priority per place:
//  1. region_id referencing a sub-region: classify under the parent's
//     country/city and additionally under the sub-region. A dangling parent_id
//     degrades the sub-region to a top-level region (the sub-region level is
//     lost, never a crash).
//  2. region_id referencing a top-level region: its country/city.
//  3. case-insensitive exact match of place.city against top-level region
//     names; first match wins.
//  4. the FallbackBucket country, with place.city (or FallbackBucket) as city.
func GroupByRegion(places []domain.Place, regions []domain.Region) []domain.CountryGroup {
	byID := make(map[string]domain.Region, len(regions))
	var parents []domain.Region
	for _, r := range regions {
		byID[r.ID] = r
		if r.ParentID == nil {
			parents = append(parents, r)
		}
	}

	meta := make(map[string]countryMeta, len(parents))
	for _, r := range parents {
		m, ok := meta[r.Country]
		if !ok {
			m = countryMeta{order: r.DisplayOrder, iconURL: r.IconURL}
		} else {
			if r.DisplayOrder < m.order {
				m.order = r.DisplayOrder
			}
			if m.iconURL == nil {
				m.iconURL = r.IconURL
			}
		}
		meta[r.Country] = m
	}

	type cityAcc struct {
		id       string
		iconURL  *string
		places   []domain.Place
		subOrder []string
		subs     map[string]*domain.SubRegionGroup
	}
	type countryAcc struct {
		cityOrder []string
		cities    map[string]*cityAcc
	}

	var countryOrder []string
	countries := make(map[string]*countryAcc)

	for _, p := range places {
		country := FallbackBucket
		cityName := p.City
		if cityName == "" {
			cityName = FallbackBucket
		}
		cityID := cityName
		var cityIcon *string
		var subID, subName string

		region, hasRegion := lookupRegion(byID, p.RegionID)
		switch {
		case hasRegion && region.ParentID != nil:
			if parent, ok := byID[*region.ParentID]; ok {
				country = parent.Country
				cityName = parent.Name
				cityID = parent.ID
				cityIcon = parent.IconURL
				subID = region.ID
				subName = region.Name
			} else {
				// dangling parent: treat the region itself as top-level
				country = region.Country
				cityName = region.Name
				cityID = region.ID
				cityIcon = region.IconURL
			}
		case hasRegion:
			country = region.Country
			cityName = region.Name
			cityID = region.ID
			cityIcon = region.IconURL
		default:
			for _, r := range parents {
				if strings.EqualFold(r.Name, cityName) {
					country = r.Country
					cityName = r.Name // normalize casing to the region's name
					cityID = r.ID
					cityIcon = r.IconURL
					break
				}
			}
		}

		ca, ok := countries[country]
		if !ok {
			ca = &countryAcc{cities: make(map[string]*cityAcc)}
			countries[country] = ca
			countryOrder = append(countryOrder, country)
		}
		city, ok := ca.cities[cityName]
		if !ok {
			city = &cityAcc{id: cityID, iconURL: cityIcon, subs: make(map[string]*domain.SubRegionGroup)}
			ca.cities[cityName] = city
			ca.cityOrder = append(ca.cityOrder, cityName)
		}
		if subName != "" {
			sub, ok := city.subs[subName]
			if !ok {
				sub = &domain.SubRegionGroup{ID: subID, Name: subName}
				city.subs[subName] = sub
				city.subOrder = append(city.subOrder, subName)
			}
			sub.Places = append(sub.Places, p)
			sub.Count = len(sub.Places)
		}
		// every place lands in its city regardless of sub-region
		city.places = append(city.places, p)
	}

	out := make([]domain.CountryGroup, 0, len(countryOrder))
	for _, name := range countryOrder {
		ca := countries[name]
		cg := domain.CountryGroup{
			ID:      strings.ToLower(name),
			Name:    name,
			IconURL: meta[name].iconURL,
		}
		for _, cityName := range ca.cityOrder {
			city := ca.cities[cityName]
			subs := make([]domain.SubRegionGroup, 0, len(city.subOrder))
			for _, sn := range city.subOrder {
				subs = append(subs, *city.subs[sn])
			}
			cg.Cities = append(cg.Cities, domain.CityGroup{
				ID:         city.id,
				Name:       cityName,
				IconURL:    city.iconURL,
				Places:     city.places,
				Count:      len(city.places),
				SubRegions: subs,
			})
			cg.Places = append(cg.Places, city.places...)
		}
		cg.Count = len(cg.Places)
		out = append(out, cg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return countrySortOrder(meta, out[i].Name) < countrySortOrder(meta, out[j].Name)
	})
	return out
}

func lookupRegion(byID map[string]domain.Region, id *string) (domain.Region, bool) {
	if id == nil {
		return domain.Region{}, false
	}
	r, ok := byID[*id]
	return r, ok
}

// countryMeta is per-country display metadata derived from its top-level
// regions: minimum display_order as the sort key, first non-nil icon.
type countryMeta struct {
	order   int
	iconURL *string
}

func countrySortOrder(meta map[string]countryMeta, name string) int {
	if m, ok := meta[name]; ok {
		return m.order
	}
	return math.MaxInt // unmatched countries (FallbackBucket) sort last
}

// FilterTree prunes the grouped tree down to places matching query. An empty
// query returns the input unchanged. Matching is a case-insensitive substring
// test OR'd across place name, place city, country name, city name and vibe.
// Counts are recomputed; empty cities and then empty countries are dropped;
// surviving order is preserved.
func FilterTree(tree []domain.CountryGroup, query string) []domain.CountryGroup {
	if query == "" {
		return tree
	}
	q := strings.ToLower(query)

	matches := func(countryName, cityName string, p domain.Place) bool {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.City), q) ||
			strings.Contains(strings.ToLower(countryName), q) ||
			strings.Contains(strings.ToLower(cityName), q) {
			return true
		}
		return p.Vibe != nil && strings.Contains(strings.ToLower(*p.Vibe), q)
	}

	var out []domain.CountryGroup
	for _, country := range tree {
		filtered := domain.CountryGroup{
			ID:      country.ID,
			Name:    country.Name,
			IconURL: country.IconURL,
		}
		for _, city := range country.Cities {
			var kept []domain.Place
			for _, p := range city.Places {
				if matches(country.Name, city.Name, p) {
					kept = append(kept, p)
				}
			}
			if len(kept) == 0 {
				continue
			}
			var subs []domain.SubRegionGroup
			for _, sub := range city.SubRegions {
				var subKept []domain.Place
				for _, p := range sub.Places {
					if matches(country.Name, city.Name, p) {
						subKept = append(subKept, p)
					}
				}
				if len(subKept) > 0 {
					subs = append(subs, domain.SubRegionGroup{
						ID:     sub.ID,
						Name:   sub.Name,
						Places: subKept,
						Count:  len(subKept),
					})
				}
			}
			filtered.Cities = append(filtered.Cities, domain.CityGroup{
				ID:         city.ID,
				Name:       city.Name,
				IconURL:    city.IconURL,
				Places:     kept,
				Count:      len(kept),
				SubRegions: subs,
			})
			filtered.Places = append(filtered.Places, kept...)
		}
		if len(filtered.Places) == 0 {
			continue
		}
		filtered.Count = len(filtered.Places)
		out = append(out, filtered)
	}
	return out
}
