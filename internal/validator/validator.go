// Package validator implements C4, the Inventory Validator: orchestrates
// C1 (CRS detection), C3 (diameter-type detection), and C2 (species
// matching) plus range/consistency checks over a tabular input, producing
// a Report and, on success, a normalised row set (spec §4.C4).
package validator

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"forest-analysis-core/internal/crsdetect"
	"forest-analysis-core/internal/diameter"
	"forest-analysis-core/internal/geomutil"
	"forest-analysis-core/internal/model"
	"forest-analysis-core/internal/species"
)

// NormalizedRow is one validated, normalised tree record ready for
// persistence (spec §4.C4 "Output guarantees").
type NormalizedRow struct {
	RowNumber   int
	SpeciesCode int
	DiameterCm  float64
	HeightM     float64
	HasHeight   bool
	Class       model.TreeClass
	Location    geomutil.Point // WGS84
}

// Input bundles everything the validator needs (spec §4.C4 "Contract").
type Input struct {
	TabularBytes    []byte
	UserCRS         *crsdetect.CRS // optional override
	AllowAutoSwap   bool
	Boundary        *model.Boundary // optional context, unused beyond presence today
	Species         *species.Table
	FuzzyThreshold  float64 // 0 => package default (0.85)
}

var bomBytes = []byte{0xEF, 0xBB, 0xBF}

// Validate runs the full C4 pipeline. It returns no error: row-level
// problems accumulate into the returned Report, and conditions that make
// the file unreadable at all (invalid encoding, empty file, unparsable
// header) are recorded there as fatal issues with nil rows (spec §4.C4:
// "never throw out of the validator" for row issues).
func Validate(in Input) (*Report, []NormalizedRow) {
	report := &Report{}

	data := in.TabularBytes
	hadBOM := bytes.HasPrefix(data, bomBytes)
	if hadBOM {
		data = data[len(bomBytes):]
	}
	if !utf8.Valid(data) {
		report.addFatal(Issue{Kind: "ENCODING_INVALID", Message: "file is not valid UTF-8"})
		report.finalize()
		return report, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // tolerate ragged rows; flagged below
	reader.TrimLeadingSpace = true

	headerRaw, err := reader.Read()
	if err == io.EOF {
		report.addFatal(Issue{Kind: "EMPTY_FILE", Message: "file has no rows"})
		report.finalize()
		return report, nil
	}
	if err != nil {
		report.addFatal(Issue{Kind: "STRUCTURE_INVALID", Message: fmt.Sprintf("failed to parse header row: %v", err)})
		report.finalize()
		return report, nil
	}
	headers := make([]string, len(headerRaw))
	for i, h := range headerRaw {
		headers[i] = strings.TrimSpace(h)
	}

	var rawRows [][]string
	var rawRowNums []int // CSV row number of each rawRows entry
	rowNum := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			report.addWarning(Issue{RowNumber: rowNum, Kind: "ROW_MALFORMED", Message: fmt.Sprintf("skipped malformed row: %v", err)})
			continue
		}
		if isTrailingEmptyRow(rec) {
			continue
		}
		rawRows = append(rawRows, rec)
		rawRowNums = append(rawRowNums, rowNum)
	}

	// Step 2: column role detection.
	roles := detectColumnRoles(headers)
	report.Roles = roles
	if missing := requiredRolesPresent(roles); len(missing) > 0 {
		report.addFatal(Issue{Kind: "MISSING_REQUIRED_COLUMN", Message: fmt.Sprintf("missing required column role(s): %s", strings.Join(missing, ", "))})
		report.finalize()
		return report, nil
	}

	colIdx := func(name string) int {
		for i, h := range headers {
			if h == name {
				return i
			}
		}
		return -1
	}
	lonIdx := colIdx(roles.Longitude)
	latIdx := colIdx(roles.Latitude)
	diaIdx := colIdx(roles.Diameter)
	speciesIdx := colIdx(roles.Species)
	heightIdx := colIdx(roles.Height)
	classIdx := colIdx(roles.Class)

	get := func(rec []string, idx int) string {
		if idx < 0 || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	var parsed []parsedRow
	for i, rec := range rawRows {
		rowNumber := rawRowNums[i] // header is row 1
		lonRaw, latRaw, diaRaw := get(rec, lonIdx), get(rec, latIdx), get(rec, diaIdx)

		lon, errLon := strconv.ParseFloat(lonRaw, 64)
		lat, errLat := strconv.ParseFloat(latRaw, 64)
		dia, errDia := strconv.ParseFloat(diaRaw, 64)
		if errLon != nil || errLat != nil || errDia != nil {
			report.addFatal(Issue{RowNumber: rowNumber, Kind: "NON_NUMERIC", Message: "longitude/latitude/diameter must be numeric"})
			continue
		}

		var height float64
		var hasHeight bool
		if heightIdx >= 0 {
			hRaw := get(rec, heightIdx)
			if hRaw != "" {
				h, errH := strconv.ParseFloat(hRaw, 64)
				if errH != nil {
					report.addWarning(Issue{RowNumber: rowNumber, Column: roles.Height, Original: hRaw, Kind: "HEIGHT_NON_NUMERIC", Message: "height not numeric, treated as absent"})
				} else {
					height = h
					hasHeight = true
				}
			}
		}

		parsed = append(parsed, parsedRow{
			rowNumber:    rowNumber,
			lon:          lon,
			lat:          lat,
			dia:          dia,
			height:       height,
			hasHeight:    hasHeight,
			speciesToken: get(rec, speciesIdx),
			classToken:   get(rec, classIdx),
		})
	}

	// Step 3: CRS detection.
	xs := make([]float64, len(parsed))
	ys := make([]float64, len(parsed))
	for i, p := range parsed {
		xs[i] = p.lon
		ys[i] = p.lat
	}
	var detected crsdetect.Result
	if len(parsed) > 0 {
		detected, _ = crsdetect.Detect(xs, ys)
	} else {
		detected = crsdetect.Result{CRS: crsdetect.Unknown, Confidence: crsdetect.Low}
	}
	report.DetectedCRS = string(detected.CRS)
	report.DetectedCRSConfidence = string(detected.Confidence)

	if detected.Swapped {
		if in.AllowAutoSwap {
			for i := range parsed {
				parsed[i].lon, parsed[i].lat = parsed[i].lat, parsed[i].lon
			}
			report.addWarning(Issue{Kind: "COORDS_SWAPPED", Message: "longitude/latitude columns appear swapped; auto-corrected", Corrected: "swap", HasCorrect: true})
			detected.CRS = crsdetect.WGS84Geographic
		} else {
			report.addFatal(Issue{Kind: "COORDS_SWAPPED", Message: "longitude/latitude columns appear swapped; auto-swap not permitted"})
		}
	}

	if in.UserCRS != nil && *in.UserCRS != detected.CRS && detected.CRS != crsdetect.Unknown {
		report.addWarning(Issue{Kind: "CRS_MISMATCH", Message: fmt.Sprintf("user specified %s but detection found %s", *in.UserCRS, detected.CRS)})
	}
	if detected.CRS == crsdetect.Unknown {
		if in.UserCRS == nil {
			report.addFatal(Issue{Kind: "CRS_UNDETECTABLE", Message: "could not detect CRS from coordinate samples and no override supplied"})
		} else {
			detected.CRS = *in.UserCRS
		}
	}

	// Step 4: diameter-type detection.
	diaSamples := make([]float64, len(parsed))
	for i, p := range parsed {
		diaSamples[i] = p.dia
	}
	diaResult := diameter.Detect(diaSamples, roles.Diameter)
	report.DiameterType = string(diaResult.Type)
	report.DiameterConfidence = string(diaResult.Confidence)

	if diaResult.Type == diameter.Girth {
		samples := make([]string, 0, 3)
		for i := 0; i < len(parsed) && len(samples) < 3; i++ {
			converted := diaResult.Converter(parsed[i].dia)
			samples = append(samples, fmt.Sprintf("%.1f->%.1f", parsed[i].dia, converted))
		}
		report.addInfo(Issue{Kind: "girth_to_diameter", Message: "girth column converted to diameter: " + strings.Join(samples, ", ")})
		for i := range parsed {
			parsed[i].dia = diaResult.Converter(parsed[i].dia)
		}
	}
	if diaResult.RequiresConfirmation {
		report.addWarning(Issue{Kind: "GIRTH_AMBIGUOUS", Message: "diameter vs girth could not be determined with confidence; defaulted to diameter"})
	}

	// Step 5 + 6: per-row checks and species resolution.
	heightOverDiaCount := 0
	var normalized []NormalizedRow
	for _, p := range parsed {
		rowFatal := false

		if p.dia < 1 || p.dia > 200 {
			report.addFatal(Issue{RowNumber: p.rowNumber, Column: roles.Diameter, Kind: "RANGE_FATAL", Message: fmt.Sprintf("diameter %.1f cm out of [1,200]", p.dia)})
			rowFatal = true
		}

		if p.hasHeight {
			if p.height < 1.3 || p.height > 50 {
				report.addFatal(Issue{RowNumber: p.rowNumber, Column: roles.Height, Kind: "RANGE_FATAL", Message: fmt.Sprintf("height %.2f m out of [1.3,50]", p.height)})
				rowFatal = true
			} else if p.dia > 0 {
				ratio := (p.height * 100) / p.dia
				if ratio < 30 || ratio > 150 {
					report.addWarning(Issue{RowNumber: p.rowNumber, Kind: "HD_RATIO_OUT_OF_RANGE", Message: fmt.Sprintf("height/diameter ratio %.1f outside [30,150]", ratio)})
				}
				if p.height > p.dia {
					heightOverDiaCount++
				}
			}
		}

		if p.lon == 0 && p.lat == 0 {
			report.addFatal(Issue{RowNumber: p.rowNumber, Kind: "ORIGIN_COORDS", Message: "coordinates are (0,0)"})
			rowFatal = true
		} else if p.lon < -180 || p.lon > 180 || p.lat < -90 || p.lat > 90 {
			report.addFatal(Issue{RowNumber: p.rowNumber, Kind: "RANGE_FATAL", Message: "coordinates outside world bounds"})
			rowFatal = true
		} else if p.lon < crsdetect.LonMin || p.lon > crsdetect.LonMax || p.lat < crsdetect.LatMin || p.lat > crsdetect.LatMax {
			report.addWarning(Issue{RowNumber: p.rowNumber, Kind: "OUTSIDE_NEPAL", Message: "coordinates outside Nepal bounds"})
		}

		var spCode int
		if in.Species != nil {
			match := in.Species.Resolve(p.speciesToken, in.FuzzyThreshold)
			switch match.MatchType {
			case species.MatchNone:
				report.addFatal(Issue{RowNumber: p.rowNumber, Column: roles.Species, Original: p.speciesToken, Kind: "SPECIES_UNKNOWN", Message: "no species match found"})
				rowFatal = true
			case species.MatchFuzzy:
				spCode = match.Species.Code
				report.addWarning(Issue{
					RowNumber: p.rowNumber, Column: roles.Species, Original: p.speciesToken,
					Corrected: match.Species.ScientificName, HasCorrect: true,
					Kind: "SPECIES_FUZZY_MATCH", Message: "species auto-corrected via fuzzy match",
					Confidence: match.Confidence, HasConf: true,
				})
			default:
				spCode = match.Species.Code
				if p.dia > match.Species.MaxDBHCm && p.dia <= 200 {
					report.addWarning(Issue{RowNumber: p.rowNumber, Kind: "DBH_EXCEEDS_SPECIES_MAX", Message: fmt.Sprintf("diameter %.1f exceeds species max %.1f", p.dia, match.Species.MaxDBHCm)})
				}
			}
		}

		class := model.ClassB
		switch strings.ToUpper(p.classToken) {
		case "A":
			class = model.ClassA
		case "C":
			class = model.ClassC
		}

		if rowFatal {
			continue
		}
		normalized = append(normalized, NormalizedRow{
			RowNumber:   p.rowNumber,
			SpeciesCode: spCode,
			DiameterCm:  p.dia,
			HeightM:     p.height,
			HasHeight:   p.hasHeight,
			Class:       class,
			Location:    geomutil.Point{X: p.lon, Y: p.lat},
		})
	}

	// Step 7: cross-row consistency.
	if len(parsed) > 0 && float64(heightOverDiaCount)/float64(len(parsed)) > 0.5 {
		report.addFatal(Issue{Kind: "PROBABLE_COLUMN_SWAP", Message: "more than 50% of rows have height > diameter; columns are probably swapped"})
	}
	checkDuplicateCoordinates(report, parsed)

	report.finalize()
	if !report.ReadyForProcessing {
		return report, nil
	}
	return report, normalized
}

// parsedRow is one intermediate (pre-normalisation) parsed CSV row.
type parsedRow struct {
	rowNumber    int
	lon, lat     float64
	dia          float64
	hasHeight    bool
	height       float64
	speciesToken string
	classToken   string
}

// checkDuplicateCoordinates flags pairs of rows within ~1 metre of each
// other (spec §4.C4 step 7). ~1m at Nepal's latitude is about 0.000009
// degrees; we use a slightly looser 0.00001 threshold on raw WGS84
// degrees, which is adequate for a duplicate-detection heuristic (not a
// distance computation, so the "no degrees for distance" discipline of
// spec §9 does not apply here).
//
// Reports each pair by its original CSV row number (parsedRow.rowNumber),
// not by its index into parsed — earlier steps can drop rows from parsed
// (e.g. non-numeric fields), so the two are not interchangeable.
func checkDuplicateCoordinates(report *Report, parsed []parsedRow) {
	const eps = 0.00001
	for i := 0; i < len(parsed); i++ {
		for j := i + 1; j < len(parsed); j++ {
			dx := parsed[i].lon - parsed[j].lon
			dy := parsed[i].lat - parsed[j].lat
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if dx < eps && dy < eps {
				report.addWarning(Issue{Kind: "DUPLICATE_COORDINATES", Message: fmt.Sprintf("rows %d and %d share near-identical coordinates", parsed[i].rowNumber, parsed[j].rowNumber)})
			}
		}
	}
}

func isTrailingEmptyRow(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
