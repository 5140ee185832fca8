package species

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *Table {
	return NewTable([]Species{
		{Code: 101, ScientificName: "Shorea robusta", LocalName: "Sal", Aliases: []string{"sal tree"}, A: -2.3, B: 1.8, C: 1.1, Active: true},
		{Code: 102, ScientificName: "Dalbergia sissoo", LocalName: "Sissoo", Active: true},
		{Code: 103, ScientificName: "Pinus roxburghii", LocalName: "Khote Salla", Active: true},
	})
}

func TestByCode(t *testing.T) {
	tbl := testTable()
	s, ok := tbl.ByCode(101)
	require.True(t, ok)
	assert.Equal(t, "Shorea robusta", s.ScientificName)

	_, ok = tbl.ByCode(999)
	assert.False(t, ok)
}

func TestResolve_Code(t *testing.T) {
	tbl := testTable()
	m := tbl.Resolve("101", 0)
	assert.Equal(t, MatchCode, m.MatchType)
	assert.Equal(t, 1.0, m.Confidence)
	require.NotNil(t, m.Species)
	assert.Equal(t, 101, m.Species.Code)
}

func TestResolve_ExactScientificName(t *testing.T) {
	tbl := testTable()
	m := tbl.Resolve("Shorea robusta", 0)
	assert.Equal(t, MatchExact, m.MatchType)
	assert.Equal(t, "scientific_name", m.MatchedField)
}

func TestResolve_ExactLocalName(t *testing.T) {
	tbl := testTable()
	m := tbl.Resolve("Sal", 0)
	assert.Equal(t, MatchExact, m.MatchType)
	assert.Equal(t, "local_name", m.MatchedField)
}

func TestResolve_Alias(t *testing.T) {
	tbl := testTable()
	m := tbl.Resolve("sal tree", 0)
	assert.Equal(t, MatchAlias, m.MatchType)
	assert.Equal(t, "alias", m.MatchedField)
}

func TestResolve_AbbreviatedTwoPart(t *testing.T) {
	tbl := testTable()
	m := tbl.Resolve("shor rob", 0.5)
	assert.Equal(t, MatchAbbreviated, m.MatchType)
	assert.Equal(t, 101, m.Species.Code)
}

func TestResolve_Fuzzy(t *testing.T) {
	tbl := testTable()
	m := tbl.Resolve("Shorea robsta", 0.85)
	assert.Equal(t, MatchFuzzy, m.MatchType)
	assert.Equal(t, 101, m.Species.Code)
}

func TestResolve_NoneReturnsNearMatches(t *testing.T) {
	tbl := testTable()
	m := tbl.Resolve("zzzzzzzzz totally unrelated", 0.85)
	assert.Equal(t, MatchNone, m.MatchType)
	assert.LessOrEqual(t, len(m.NearMatches), 5)
}

func TestNewTable_FirstLoadedWinsOnDuplicateName(t *testing.T) {
	tbl := NewTable([]Species{
		{Code: 1, ScientificName: "Shorea robusta"},
		{Code: 2, ScientificName: "Shorea robusta"},
	})
	m := tbl.Resolve("Shorea robusta", 0)
	assert.Equal(t, 1, m.Species.Code)
}

func TestAll_PreservesLoadOrder(t *testing.T) {
	tbl := testTable()
	all := tbl.All()
	require.Len(t, all, 3)
	assert.Equal(t, 101, all[0].Code)
	assert.Equal(t, 103, all[2].Code)
}
