// Package species implements C2, the Species Matcher, and the read-mostly
// in-process species table it matches against (spec §3 "Species", §4.C2,
// §5 "Shared resources").
//
// Grounded on the teacher's treatment of forest_parcels as a read path over
// a fixed, loaded-once dataset (internal/geo.AnalyzePolygon groups by
// fp.essence1): here the table is loaded once at startup into an immutable
// map, exactly as spec §9 "Global state" prescribes, and never mutated —
// matching requires a full process restart to pick up table changes.
package species

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Species is the canonical per-species record (spec §3).
type Species struct {
	Code            int
	ScientificName  string
	LocalName       string
	Aliases         []string
	A, B, C         float64
	A1, B1          float64
	S, M, BG        float64
	MaxDBHCm        float64
	MaxHeightM      float64
	TypicalHDLow    float64
	TypicalHDHigh   float64
	Active          bool
}

// Table is the immutable, process-lifetime species catalogue. Build it once
// with NewTable at startup and share it by reference; it is never mutated
// afterward (spec §5).
type Table struct {
	byCode      map[int]*Species
	byExactName map[string]*Species // lowercased scientific/local/alias -> species
	all         []*Species
}

// NewTable builds an immutable lookup table from a slice of species
// records. Scientific names are expected to be unique among active
// species (spec §3 invariant); NewTable does not check this. When several
// records share an exact-match key (scientific name, local name or alias,
// lower-cased), the first-loaded record wins whether active or not,
// consistent with a "read-mostly cache populated at startup" with no
// validation step of its own named in spec.
func NewTable(records []Species) *Table {
	t := &Table{
		byCode:      make(map[int]*Species, len(records)),
		byExactName: make(map[string]*Species),
	}
	for i := range records {
		s := records[i]
		t.all = append(t.all, &s)
		t.byCode[s.Code] = &s
		for _, name := range t.exactKeys(&s) {
			if _, exists := t.byExactName[name]; !exists {
				t.byExactName[name] = &s
			}
		}
	}
	return t
}

func (t *Table) exactKeys(s *Species) []string {
	keys := []string{strings.ToLower(s.ScientificName)}
	if s.LocalName != "" {
		keys = append(keys, strings.ToLower(s.LocalName))
	}
	for _, a := range s.Aliases {
		keys = append(keys, strings.ToLower(a))
	}
	return keys
}

// ByCode looks up a species by its integer code.
func (t *Table) ByCode(code int) (*Species, bool) {
	s, ok := t.byCode[code]
	return s, ok
}

// All returns every loaded species record (active and inactive), in the
// order they were loaded.
func (t *Table) All() []*Species { return t.all }

// MatchType enumerates how a token was resolved, per spec §4.C2.
type MatchType string

const (
	MatchCode        MatchType = "code"
	MatchExact       MatchType = "exact"
	MatchAlias       MatchType = "alias"
	MatchAbbreviated MatchType = "abbreviated"
	MatchFuzzy       MatchType = "fuzzy"
	MatchNone        MatchType = "none"
)

// Match is the outcome of resolving a single token.
type Match struct {
	Species      *Species
	MatchType    MatchType
	Confidence   float64
	MatchedField string // "code", "scientific_name", "local_name", "alias"
	// NearMatches holds up to 5 best candidates with scores, populated only
	// when MatchType == MatchNone (spec §4.C2 Failure).
	NearMatches []NearMatch
}

// NearMatch is one candidate offered back when nothing clears threshold.
type NearMatch struct {
	Species    *Species
	Confidence float64
}

// defaultFuzzyThreshold is used by C2's fuzzy stage per spec (0.85 default).
const defaultFuzzyThreshold = 0.85

// Resolve maps a single token to a canonical species, stopping at the first
// strategy that clears threshold (spec §4.C2 "Resolution order"). threshold
// is in [0,1]; pass 0 to use the C2 default (0.85). The threshold gates
// every stage, so under the default no abbreviated match (confidence at
// most 0.80) is accepted.
func (t *Table) Resolve(token string, threshold float64) Match {
	if threshold <= 0 {
		threshold = defaultFuzzyThreshold
	}

	// 1. Numeric token <-> species code.
	if code, err := strconv.Atoi(strings.TrimSpace(token)); err == nil {
		if s, ok := t.byCode[code]; ok {
			if 1.0 >= threshold {
				return Match{Species: s, MatchType: MatchCode, Confidence: 1.0, MatchedField: "code"}
			}
		}
	}

	// 2. Abbreviated pattern.
	if m, ok := t.matchAbbreviated(token, threshold); ok {
		return m
	}

	// 3. Exact match.
	norm := strings.ToLower(strings.TrimSpace(token))
	if s, ok := t.byExactName[norm]; ok {
		field := "scientific_name"
		switch {
		case strings.EqualFold(s.LocalName, token):
			field = "local_name"
		case containsFold(s.Aliases, token):
			field = "alias"
		}
		mt := MatchExact
		if field == "alias" {
			mt = MatchAlias
		}
		if 1.0 >= threshold {
			return Match{Species: s, MatchType: mt, Confidence: 1.0, MatchedField: field}
		}
	}

	// 4. Fuzzy match.
	if m, ok := t.matchFuzzy(token, threshold); ok {
		return m
	}

	return Match{MatchType: MatchNone, NearMatches: t.nearMatches(token, 5)}
}

func containsFold(list []string, tok string) bool {
	for _, a := range list {
		if strings.EqualFold(a, tok) {
			return true
		}
	}
	return false
}

// normalizeAbbrev lowercases and turns /,-,_ separators into spaces, per
// spec §4.C2 stage 2.
func normalizeAbbrev(token string) []string {
	s := strings.ToLower(token)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '-', '_':
			return ' '
		}
		return r
	}, s)
	fields := strings.Fields(s)
	return fields
}

func (t *Table) matchAbbreviated(token string, threshold float64) (Match, bool) {
	parts := normalizeAbbrev(token)
	if len(parts) == 0 {
		return Match{}, false
	}

	type candidate struct {
		s          *Species
		confidence float64
	}
	var candidates []candidate

	if len(parts) == 1 {
		p := parts[0]
		if len(p) < 3 {
			return Match{}, false
		}
		for _, s := range t.all {
			genus, epithet := splitBinomial(s.ScientificName)
			if genus != "" && strings.HasPrefix(strings.ToLower(genus), p) {
				candidates = append(candidates, candidate{s, prefixConfidence(0.70, p, genus)})
			}
			if epithet != "" && strings.HasPrefix(strings.ToLower(epithet), p) {
				candidates = append(candidates, candidate{s, prefixConfidence(0.65, p, epithet)})
			}
		}
	} else {
		genusPart, epithetPart := parts[0], parts[1]
		for _, s := range t.all {
			genus, epithet := splitBinomial(s.ScientificName)
			if genus == "" || epithet == "" {
				continue
			}
			if strings.HasPrefix(strings.ToLower(genus), genusPart) && strings.HasPrefix(strings.ToLower(epithet), epithetPart) {
				conf := prefixConfidence(0.80, genusPart+epithetPart, genus+epithet)
				candidates = append(candidates, candidate{s, conf})
			}
		}
	}

	if len(candidates) == 0 {
		return Match{}, false
	}

	best := -1.0
	for _, c := range candidates {
		if c.confidence > best {
			best = c.confidence
		}
	}
	if best < threshold {
		return Match{}, false
	}

	var tied []*Species
	for _, c := range candidates {
		if c.confidence == best {
			tied = append(tied, c.s)
		}
	}
	sort.Slice(tied, func(i, j int) bool { return tied[i].ScientificName < tied[j].ScientificName })

	return Match{
		Species:      tied[0],
		MatchType:    MatchAbbreviated,
		Confidence:   best,
		MatchedField: "scientific_name",
	}, true
}

// prefixConfidence scales base confidence by how much of the target word the
// prefix covers (spec: "Confidence scales with length of prefix relative to
// target word").
func prefixConfidence(base float64, prefix, target string) float64 {
	if len(target) == 0 {
		return base
	}
	ratio := float64(len(prefix)) / float64(len(target))
	if ratio > 1 {
		ratio = 1
	}
	conf := base * (0.5 + 0.5*ratio)
	if conf > base {
		conf = base
	}
	return conf
}

func splitBinomial(scientific string) (genus, epithet string) {
	fields := strings.Fields(scientific)
	if len(fields) == 0 {
		return "", ""
	}
	genus = fields[0]
	if len(fields) > 1 {
		epithet = fields[1]
	}
	return genus, epithet
}

func (t *Table) matchFuzzy(token string, threshold float64) (Match, bool) {
	norm := strings.ToLower(strings.TrimSpace(token))
	if norm == "" {
		return Match{}, false
	}

	best := -1.0
	var bestSpecies *Species
	for _, s := range t.all {
		for _, candidate := range t.exactKeys(s) {
			score := similarity(norm, candidate)
			if score > best {
				best = score
				bestSpecies = s
			}
		}
	}
	if bestSpecies == nil || best < threshold {
		return Match{}, false
	}
	return Match{
		Species:      bestSpecies,
		MatchType:    MatchFuzzy,
		Confidence:   best,
		MatchedField: "scientific_name",
	}, true
}

// similarity converts a Levenshtein edit distance into a [0,1] score
// normalised by the longer string's length, matching spec's
// "report score/100 as confidence" on a 0-1 scale. The strings are
// compared whole; tokens are not sorted first.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	score := 1.0 - float64(dist)/float64(maxLen)
	if score < 0 {
		score = 0
	}
	return score
}

func (t *Table) nearMatches(token string, limit int) []NearMatch {
	norm := strings.ToLower(strings.TrimSpace(token))
	type scored struct {
		s     *Species
		score float64
	}
	var all []scored
	seen := make(map[int]float64)
	for _, s := range t.all {
		best := 0.0
		for _, candidate := range t.exactKeys(s) {
			if sc := similarity(norm, candidate); sc > best {
				best = sc
			}
		}
		if prev, ok := seen[s.Code]; !ok || best > prev {
			seen[s.Code] = best
		}
	}
	for _, s := range t.all {
		all = append(all, scored{s, seen[s.Code]})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]NearMatch, len(all))
	for i, a := range all {
		out[i] = NearMatch{Species: a.s, Confidence: a.score}
	}
	return out
}
