// Package persistence implements C10: idempotent upserts for Calculation
// documents, batched all-or-nothing Inventory tree inserts, validation log
// rows, and a Redis read-through cache for the two document reads (spec
// §4.C10). The cache-aside shape is grounded on the teacher's
// internal/tiles.Handler.serveTile: check Redis, miss to Postgres, cache
// the result, never the other way around.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"forest-analysis-core/internal/coreerr"
	"forest-analysis-core/internal/model"
	"forest-analysis-core/internal/validator"
)

// treeBatchSize is the bulk-insert batch size spec §4.C10 names.
const treeBatchSize = 1000

const (
	calcCacheTTL = 5 * time.Minute
	invCacheTTL  = 5 * time.Minute
)

// Store is the persistence layer's single entry point, holding both the
// spatial database pool and the read-through cache.
type Store struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

func NewStore(db *pgxpool.Pool, cache *redis.Client) *Store {
	return &Store{DB: db, Cache: cache}
}

// NewCalculationID and NewInventoryID mint fresh identifiers for newly
// created documents.
func NewCalculationID() string { return uuid.NewString() }
func NewInventoryID() string   { return uuid.NewString() }

// UpsertCalculation writes a Calculation document, idempotent by its ID
// (spec §4.C10 invariant (b), "upserts are idempotent by (owner,
// calculation_id)"). Runs as its own single transaction — one unit of
// work, never spanning a polygon's own transactions.
func (s *Store) UpsertCalculation(ctx context.Context, calc *model.Calculation) error {
	resultDoc, err := json.Marshal(calc.PerPolygon)
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, err, "marshal per-polygon result")
	}
	aggregateDoc, err := json.Marshal(calc.Aggregate)
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, err, "marshal boundary aggregate")
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return coreerr.Wrap(coreerr.KindDBTransient, err, "begin calculation upsert")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	const q = `
		INSERT INTO calculations
			(id, owner, forest_name, created_at, status, timed_out, result_doc, aggregate_doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			timed_out = EXCLUDED.timed_out,
			result_doc = EXCLUDED.result_doc,
			aggregate_doc = EXCLUDED.aggregate_doc
	`
	_, err = tx.Exec(ctx, q, calc.ID, calc.Owner, calc.ForestName, calc.CreatedAt, calc.Status, calc.TimedOut, resultDoc, aggregateDoc)
	if err != nil {
		return coreerr.Wrap(coreerr.KindDBFatal, err, "upsert calculation %s", calc.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return coreerr.Wrap(coreerr.KindDBTransient, err, "commit calculation upsert")
	}
	committed = true

	if s.Cache != nil {
		_ = s.Cache.Del(ctx, calcCacheKey(calc.ID)).Err()
	}
	return nil
}

// GetCalculation is a cache-aside read: check Redis, fall back to
// Postgres, populate the cache, matching the teacher's tile-serving
// cache-then-DB-then-cache shape.
func (s *Store) GetCalculation(ctx context.Context, id string) (*model.Calculation, error) {
	if s.Cache != nil {
		if cached, err := s.Cache.Get(ctx, calcCacheKey(id)).Bytes(); err == nil {
			var calc model.Calculation
			if jsonErr := json.Unmarshal(cached, &calc); jsonErr == nil {
				return &calc, nil
			}
		}
	}

	const q = `
		SELECT id, owner, forest_name, created_at, status, timed_out, result_doc, aggregate_doc
		FROM calculations WHERE id = $1
	`
	var calc model.Calculation
	var resultDoc, aggregateDoc []byte
	err := s.DB.QueryRow(ctx, q, id).Scan(
		&calc.ID, &calc.Owner, &calc.ForestName, &calc.CreatedAt, &calc.Status, &calc.TimedOut, &resultDoc, &aggregateDoc,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, coreerr.New(coreerr.KindInvalidInput, "calculation %s not found", id)
		}
		return nil, coreerr.Wrap(coreerr.KindDBFatal, err, "fetch calculation %s", id)
	}
	if len(resultDoc) > 0 {
		_ = json.Unmarshal(resultDoc, &calc.PerPolygon)
	}
	if len(aggregateDoc) > 0 {
		_ = json.Unmarshal(aggregateDoc, &calc.Aggregate)
	}

	if s.Cache != nil {
		if blob, err := json.Marshal(&calc); err == nil {
			_ = s.Cache.Set(ctx, calcCacheKey(id), blob, calcCacheTTL).Err()
		}
	}
	return &calc, nil
}

// BulkInsertTrees inserts an Inventory's trees in batches of 1,000, all
// within a single transaction: spec §4.C10 invariant (a) is explicit that
// one failed batch must roll back the whole Inventory, so — unlike the
// orchestrator's per-polygon/per-direction isolation — this one operation
// is deliberately a single unit of work spanning every batch (see
// DESIGN.md).
func (s *Store) BulkInsertTrees(ctx context.Context, invID string, trees []model.Tree) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return coreerr.Wrap(coreerr.KindDBTransient, err, "begin bulk tree insert")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	for start := 0; start < len(trees); start += treeBatchSize {
		end := start + treeBatchSize
		if end > len(trees) {
			end = len(trees)
		}
		if err := insertTreeBatch(ctx, tx, invID, trees[start:end]); err != nil {
			return coreerr.Wrap(coreerr.KindDBFatal, err, "tree batch [%d:%d] failed, rolling back inventory %s", start, end, invID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return coreerr.Wrap(coreerr.KindDBTransient, err, "commit bulk tree insert")
	}
	committed = true
	return nil
}

func insertTreeBatch(ctx context.Context, tx pgx.Tx, invID string, batch []model.Tree) error {
	b := &pgx.Batch{}
	const q = `
		INSERT INTO inventory_trees
			(inventory_id, row_number, species_code, dbh_cm, height_m, has_height, class,
			 longitude, latitude, stem_m3, branch_m3, tree_m3, gross_m3, net_m3, net_cft,
			 firewood_m3, firewood_chatta, classification, grid_cell_id, has_grid_cell, remark)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (inventory_id, row_number) DO UPDATE SET
			species_code = EXCLUDED.species_code,
			dbh_cm = EXCLUDED.dbh_cm,
			height_m = EXCLUDED.height_m,
			stem_m3 = EXCLUDED.stem_m3,
			net_m3 = EXCLUDED.net_m3,
			classification = EXCLUDED.classification,
			grid_cell_id = EXCLUDED.grid_cell_id
	`
	for _, t := range batch {
		b.Queue(q,
			invID, t.RowNumber, t.SpeciesCode, t.DBHCm, t.HeightM, t.HasHeight, string(t.Class),
			t.LocationWGS84.X, t.LocationWGS84.Y, t.StemM3, t.BranchM3, t.TreeM3, t.GrossM3, t.NetM3, t.NetCft,
			t.FirewoodM3, t.FirewoodChatta, string(t.Classification), t.GridCellID, t.HasGridCell, t.Remark,
		)
	}

	results := tx.SendBatch(ctx, b)
	defer results.Close()
	for range batch {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertValidationLog writes one parent row per upload plus one child row
// per issue (spec §4.C10 "Validation logs"), in its own transaction.
func (s *Store) InsertValidationLog(ctx context.Context, invID string, report *validator.Report) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return coreerr.Wrap(coreerr.KindDBTransient, err, "begin validation log insert")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var logID string
	const insertLog = `
		INSERT INTO validation_logs (inventory_id, detected_crs, diameter_type, ready_for_processing)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err = tx.QueryRow(ctx, insertLog, invID, report.DetectedCRS, report.DiameterType, report.ReadyForProcessing).Scan(&logID)
	if err != nil {
		return coreerr.Wrap(coreerr.KindDBFatal, err, "insert validation log for inventory %s", invID)
	}

	allIssues := make([]validator.Issue, 0, len(report.Fatal)+len(report.Warnings)+len(report.Info))
	allIssues = append(allIssues, report.Fatal...)
	allIssues = append(allIssues, report.Warnings...)
	allIssues = append(allIssues, report.Info...)

	const insertIssue = `
		INSERT INTO validation_issues
			(log_id, row_number, column_name, severity, kind, message, original, corrected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, issue := range allIssues {
		_, err := tx.Exec(ctx, insertIssue, logID, issue.RowNumber, issue.Column, string(issue.Severity), issue.Kind, issue.Message, issue.Original, issue.Corrected)
		if err != nil {
			return coreerr.Wrap(coreerr.KindDBFatal, err, "insert validation issue for log %s", logID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return coreerr.Wrap(coreerr.KindDBTransient, err, "commit validation log insert")
	}
	committed = true
	return nil
}

// UpsertInventory writes an Inventory's typed summary columns, idempotent
// by ID.
func (s *Store) UpsertInventory(ctx context.Context, inv *model.Inventory) error {
	const q = `
		INSERT INTO inventories
			(id, owner, calculation_id, grid_spacing_m, target_crs, status,
			 tree_count, mother_count, felling_count, seedling_count,
			 total_stem_m3, total_net_m3, total_firewood_m3)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			tree_count = EXCLUDED.tree_count,
			mother_count = EXCLUDED.mother_count,
			felling_count = EXCLUDED.felling_count,
			seedling_count = EXCLUDED.seedling_count,
			total_stem_m3 = EXCLUDED.total_stem_m3,
			total_net_m3 = EXCLUDED.total_net_m3,
			total_firewood_m3 = EXCLUDED.total_firewood_m3
	`
	_, err := s.DB.Exec(ctx, q, inv.ID, inv.Owner, nullableString(inv.CalculationID), inv.GridSpacingM, string(inv.TargetCRS), string(inv.Status),
		inv.TreeCount, inv.MotherCount, inv.FellingCount, inv.SeedlingCount, inv.TotalStemM3, inv.TotalNetM3, inv.TotalFirewoodM3)
	if err != nil {
		return coreerr.Wrap(coreerr.KindDBFatal, err, "upsert inventory %s", inv.ID)
	}
	if s.Cache != nil {
		_ = s.Cache.Del(ctx, invCacheKey(inv.ID)).Err()
	}
	return nil
}

// GetInventory is a cache-aside read mirroring GetCalculation.
func (s *Store) GetInventory(ctx context.Context, id string) (*model.Inventory, error) {
	if s.Cache != nil {
		if cached, err := s.Cache.Get(ctx, invCacheKey(id)).Bytes(); err == nil {
			var inv model.Inventory
			if jsonErr := json.Unmarshal(cached, &inv); jsonErr == nil {
				return &inv, nil
			}
		}
	}

	const q = `
		SELECT id, owner, COALESCE(calculation_id, ''), grid_spacing_m, target_crs, status,
			tree_count, mother_count, felling_count, seedling_count,
			total_stem_m3, total_net_m3, total_firewood_m3
		FROM inventories WHERE id = $1
	`
	var inv model.Inventory
	var targetCRS, status string
	err := s.DB.QueryRow(ctx, q, id).Scan(
		&inv.ID, &inv.Owner, &inv.CalculationID, &inv.GridSpacingM, &targetCRS, &status,
		&inv.TreeCount, &inv.MotherCount, &inv.FellingCount, &inv.SeedlingCount,
		&inv.TotalStemM3, &inv.TotalNetM3, &inv.TotalFirewoodM3,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, coreerr.New(coreerr.KindInvalidInput, "inventory %s not found", id)
		}
		return nil, coreerr.Wrap(coreerr.KindDBFatal, err, "fetch inventory %s", id)
	}
	inv.TargetCRS = model.CRSName(targetCRS)
	inv.Status = model.InventoryStatus(status)

	if s.Cache != nil {
		if blob, err := json.Marshal(&inv); err == nil {
			_ = s.Cache.Set(ctx, invCacheKey(id), blob, invCacheTTL).Err()
		}
	}
	return &inv, nil
}

// FetchTrees loads every tree row for an Inventory, ordered by row number
// (the order C11's export serializers rely on).
func (s *Store) FetchTrees(ctx context.Context, invID string) ([]model.Tree, error) {
	const q = `
		SELECT row_number, species_code, dbh_cm, height_m, has_height, class,
			longitude, latitude, stem_m3, branch_m3, tree_m3, gross_m3, net_m3, net_cft,
			firewood_m3, firewood_chatta, classification, grid_cell_id, has_grid_cell, remark
		FROM inventory_trees WHERE inventory_id = $1 ORDER BY row_number
	`
	rows, err := s.DB.Query(ctx, q, invID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindDBFatal, err, "fetch trees for inventory %s", invID)
	}
	defer rows.Close()

	var trees []model.Tree
	for rows.Next() {
		var t model.Tree
		var class, classification string
		t.InventoryID = invID
		if err := rows.Scan(
			&t.RowNumber, &t.SpeciesCode, &t.DBHCm, &t.HeightM, &t.HasHeight, &class,
			&t.LocationWGS84.X, &t.LocationWGS84.Y, &t.StemM3, &t.BranchM3, &t.TreeM3, &t.GrossM3, &t.NetM3, &t.NetCft,
			&t.FirewoodM3, &t.FirewoodChatta, &classification, &t.GridCellID, &t.HasGridCell, &t.Remark,
		); err != nil {
			return nil, coreerr.Wrap(coreerr.KindDBFatal, err, "scan tree row for inventory %s", invID)
		}
		t.Class = model.TreeClass(class)
		t.Classification = model.TreeClassification(classification)
		trees = append(trees, t)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.KindDBFatal, err, "iterate trees for inventory %s", invID)
	}
	if len(trees) == 0 {
		return nil, coreerr.New(coreerr.KindNoTrees, "inventory %s has no trees", invID)
	}
	return trees, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func calcCacheKey(id string) string { return fmt.Sprintf("calc:%s", id) }
func invCacheKey(id string) string  { return fmt.Sprintf("inv:%s", id) }
