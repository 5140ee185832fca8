package species

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"forest-analysis-core/internal/coreerr"
)

// speciesCSVColumns is the fixed header the species coefficient table file
// must carry. Loaded once at startup (spec §5 "Species table... populated
// at startup"); no third-party CSV library appears anywhere in the
// retrieved example pack, so this loader uses encoding/csv directly, same
// as the validator's tabular inventory reader (see DESIGN.md).
var speciesCSVColumns = []string{
	"code", "scientific_name", "local_name", "aliases",
	"a", "b", "c", "a1", "b1", "s", "m", "bg",
	"max_dbh_cm", "max_height_m", "typical_hd_low", "typical_hd_high", "active",
}

// LoadTableFromCSV reads the species coefficient table from disk and
// builds the immutable in-process Table C2 matches against.
func LoadTableFromCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, err, "open species table %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, err, "read species table header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range speciesCSVColumns {
		if _, ok := col[want]; !ok {
			return nil, coreerr.New(coreerr.KindInternal, "species table missing column %q", want)
		}
	}

	var records []Species
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		get := func(name string) string { return strings.TrimSpace(row[col[name]]) }
		getF := func(name string) float64 {
			v, _ := strconv.ParseFloat(get(name), 64)
			return v
		}
		code, _ := strconv.Atoi(get("code"))
		var aliases []string
		if raw := get("aliases"); raw != "" {
			for _, a := range strings.Split(raw, ";") {
				if a = strings.TrimSpace(a); a != "" {
					aliases = append(aliases, a)
				}
			}
		}
		records = append(records, Species{
			Code:           code,
			ScientificName: get("scientific_name"),
			LocalName:      get("local_name"),
			Aliases:        aliases,
			A:              getF("a"),
			B:              getF("b"),
			C:              getF("c"),
			A1:             getF("a1"),
			B1:             getF("b1"),
			S:              getF("s"),
			M:              getF("m"),
			BG:             getF("bg"),
			MaxDBHCm:       getF("max_dbh_cm"),
			MaxHeightM:     getF("max_height_m"),
			TypicalHDLow:   getF("typical_hd_low"),
			TypicalHDHigh:  getF("typical_hd_high"),
			Active:         strings.EqualFold(get("active"), "true") || get("active") == "1",
		})
	}

	return NewTable(records), nil
}
