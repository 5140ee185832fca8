package validator

import "strings"

// roleAliases is the declarative alias table from spec §4.C4 step 2: role
// -> set of column-name patterns, matched case-insensitively by substring.
// Ported as a flat table rather than reflection over row shapes, per spec
// §9 "Dynamic column detection".
var roleAliases = map[string][]string{
	"longitude": {"longitude", "long", "lon", "lng", "x", "easting", "coord_x"},
	"latitude":  {"latitude", "lat", "y", "northing", "coord_y"},
	"diameter":  {"dia_cm", "diameter", "dbh", "girth", "gbh"},
	"height":    {"height_m", "height", "tree_height", "ht"},
	"class":     {"class", "tree_class", "quality_class"},
	"species":   {"species", "scientific_name", "tree_species"},
}

// roleOrder is the deterministic priority order in which roles are
// assigned when more than one header could match (spec §9 "deterministic
// priority order"). Required roles come first so ambiguous headers
// (e.g. "x" matching both "longitude" patterns loosely) resolve
// predictably.
var roleOrder = []string{"species", "diameter", "longitude", "latitude", "height", "class"}

// detectColumnRoles assigns each header to at most one role: the first
// role (in roleOrder) with an alias that occurs as a substring of the
// lower-cased header. The first header (in header order) matching a role
// fills it; a later header matching an already-filled role is still
// consumed by that role and is not offered to later roles.
func detectColumnRoles(headers []string) ColumnRoles {
	var roles ColumnRoles
	assigned := make(map[string]bool) // header already claimed by a role

	setRole := func(role, header string) {
		switch role {
		case "longitude":
			if roles.Longitude == "" {
				roles.Longitude = header
			}
		case "latitude":
			if roles.Latitude == "" {
				roles.Latitude = header
			}
		case "diameter":
			if roles.Diameter == "" {
				roles.Diameter = header
			}
		case "height":
			if roles.Height == "" {
				roles.Height = header
			}
		case "class":
			if roles.Class == "" {
				roles.Class = header
			}
		case "species":
			if roles.Species == "" {
				roles.Species = header
			}
		}
	}

	for _, role := range roleOrder {
		for _, h := range headers {
			if assigned[h] {
				continue
			}
			lower := strings.ToLower(strings.TrimSpace(h))
			for _, alias := range roleAliases[role] {
				if strings.Contains(lower, alias) {
					setRole(role, h)
					assigned[h] = true
					break
				}
			}
		}
	}
	return roles
}

// requiredRolesPresent reports whether every required role (species,
// diameter, x, y) was detected, per spec §4.C4 step 1.
func requiredRolesPresent(r ColumnRoles) (missing []string) {
	if r.Species == "" {
		missing = append(missing, "species")
	}
	if r.Diameter == "" {
		missing = append(missing, "diameter")
	}
	if r.Longitude == "" {
		missing = append(missing, "x")
	}
	if r.Latitude == "" {
		missing = append(missing, "y")
	}
	return missing
}
