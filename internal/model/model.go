// Package model holds the shared entity types of spec §3: Polygon,
// Boundary, Calculation, Inventory, Tree, and ValidationReport. These are
// plain structs passed by value/reference between packages — the
// validators form a pipeline, not a class hierarchy (spec §9).
package model

import (
	"time"

	"forest-analysis-core/internal/geomutil"
)

// Polygon is a single simple polygon in a declared CRS (spec §3).
type Polygon struct {
	Exterior geomutil.Ring
	Holes    []geomutil.Ring
	// BlockName is an optional human-readable label for this polygon within
	// a Boundary.
	BlockName string
}

// CRSName identifies one of the three admissible reference systems by
// name, independent of the crsdetect package's Result type so model has no
// import-cycle-inducing dependency on detection logic.
type CRSName string

const (
	CRSWGS84Geographic CRSName = "WGS84-geographic"
	CRSUTM44N          CRSName = "UTM-44N"
	CRSUTM45N          CRSName = "UTM-45N"
)

// Boundary is an ordered sequence of Polygon sharing one CRS (spec §3).
type Boundary struct {
	Polygons []Polygon
	CRS      CRSName
}

// CalculationStatus is the Calculation lifecycle state (spec §3).
type CalculationStatus string

const (
	CalcPending       CalculationStatus = "pending"
	CalcRunning       CalculationStatus = "running"
	CalcSucceeded     CalculationStatus = "succeeded"
	CalcFailedPartial CalculationStatus = "failed_partial"
	CalcFailed        CalculationStatus = "failed"
)

// OptionMask is the Analysis Orchestrator's recognised flag set (spec
// §4.C9). Field order is the fixed, documented raster-layer processing
// order (spec §5 "raster layers per polygon processed in the fixed
// enumeration order of the option mask").
type OptionMask struct {
	RunRasterAnalysis bool // master switch; false disables all raster flags

	RunElevation    bool
	RunSlope        bool
	RunAspect       bool
	RunCanopy       bool
	RunBiomass      bool
	RunForestHealth bool
	RunForestType   bool
	RunLandcover    bool
	RunForestLoss   bool
	RunForestGain   bool
	RunFireLoss     bool
	RunTemperature  bool
	RunPrecipitation bool
	RunSoil         bool

	RunProximity bool

	AutoGenerateFieldbook bool
	AutoGenerateSampling  bool
}

// Calculation is one run of the Analysis Orchestrator against one Boundary
// (spec §3).
type Calculation struct {
	ID         string
	Owner      string
	ForestName string
	CreatedAt  time.Time
	Options    OptionMask
	Boundary   Boundary

	PerPolygon []PolygonResult
	Aggregate  map[string]any

	Status CalculationStatus
	// TimedOut marks a deadline-expiry failed_partial termination (spec §5
	// "Cancellation and timeouts").
	TimedOut bool
}

// PolygonResult is one element of a Calculation's dense per-polygon array
// (spec §3 invariant: "length equals polygon count; any failed polygon
// yields a document carrying an error payload rather than being omitted").
type PolygonResult struct {
	Index      int
	BlockName  string
	Layers     map[string]any // raster layer name -> result document
	Proximity  map[string]any // "settlements"/"roads"/"rivers"/"ridges" -> directional lists
	Errors     []string
}

// InventoryStatus is the Inventory lifecycle state (spec §3).
type InventoryStatus string

const (
	InvValidated  InventoryStatus = "validated"
	InvProcessing InventoryStatus = "processing"
	InvCompleted  InventoryStatus = "completed"
	InvFailed     InventoryStatus = "failed"
)

// Inventory is a set of Tree rows bound to a user principal (spec §3).
type Inventory struct {
	ID              string
	Owner           string
	CalculationID   string // optional link to a Calculation on the same boundary
	GridSpacingM    float64
	TargetCRS       CRSName
	Status          InventoryStatus

	TreeCount      int
	MotherCount    int
	FellingCount   int
	SeedlingCount  int
	TotalStemM3    float64
	TotalNetM3     float64
	TotalFirewoodM3 float64
}

// TreeClass is a Tree's optional input quality class (spec §3).
type TreeClass string

const (
	ClassA TreeClass = "A"
	ClassB TreeClass = "B"
	ClassC TreeClass = "C"
)

// TreeClassification is the derived harvest classification (spec §3).
type TreeClassification string

const (
	TreeMother   TreeClassification = "Mother Tree"
	TreeFelling  TreeClassification = "Felling Tree"
	TreeSeedling TreeClassification = "Seedling"
)

// Tree is one row of an Inventory (spec §3).
type Tree struct {
	ID            int64
	InventoryID   string
	RowNumber     int
	SpeciesCode   int
	DBHCm         float64
	HeightM       float64 // 0 means "not present" (optional for seedlings)
	HasHeight     bool
	Class         TreeClass

	LocationWGS84 geomutil.Point

	// Derived, populated after processing (C5/C6).
	StemM3         float64
	BranchM3       float64
	TreeM3         float64
	GrossM3        float64
	NetM3          float64
	NetCft         float64
	FirewoodM3     float64
	FirewoodChatta float64
	Classification TreeClassification
	GridCellID     int
	HasGridCell    bool

	Remark string
}
