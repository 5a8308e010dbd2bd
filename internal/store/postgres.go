package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lg/nutrition-ledger-go-api/internal/catalog"
	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/nutrition"
)

const defaultSearchLimit = 50

// Postgres is the durable Store. It also serves the foods table as a
// read-only catalog.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// OpenPool creates a connection pool. A pool (not a single conn) survives
// the server closing idle connections.
func OpenPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from server-side prepared statement caches after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

/* ─── Query helpers ───────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Logs query and scan errors for debugging (e.g. struct/column mismatches).
func queryOne[T any](ctx context.Context, pool *pgxpool.Pool, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		log.Printf("[queryOne] Query error: %v", err)
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("[queryOne] Scan error: %v", err)
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](ctx context.Context, pool *pgxpool.Pool, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		log.Printf("[queryMany] Query error: %v", err)
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		log.Printf("[queryMany] Scan error: %v", err)
	}
	return results, err
}

/* ─── Row shapes ──────────────────────────────────────────────────────── */

// entryRow maps to ledger_entries (and the entry half of archive_entries).
type entryRow struct {
	ID            string    `db:"id"`
	LoggedAt      time.Time `db:"logged_at"`
	FoodName      string    `db:"food_name"`
	QuantityG     float64   `db:"quantity_g"`
	Calories      float64   `db:"calories"`
	FatG          float64   `db:"fat_g"`
	ProteinG      float64   `db:"protein_g"`
	CarbohydrateG float64   `db:"carbohydrate_g"`
}

type archiveEntryRow struct {
	ClosedAt time.Time `db:"closed_at"`
	entryRow
}

// profileRow maps to user_profiles. Nullable columns use pointers.
type profileRow struct {
	WeightKG        float64  `db:"weight_kg"`
	HeightCM        float64  `db:"height_cm"`
	AgeYears        int      `db:"age_years"`
	Gender          string   `db:"gender"`
	Goal            string   `db:"goal"`
	ActivityLevel   *string  `db:"activity_level"`
	DesiredWeightKG *float64 `db:"desired_weight_kg"`
}

type foodRow struct {
	Name          string  `db:"name"`
	Calories      float64 `db:"calories"`
	FatG          float64 `db:"fat_g"`
	ProteinG      float64 `db:"protein_g"`
	CarbohydrateG float64 `db:"carbohydrate_g"`
}

func (r entryRow) toEntry() (nutrition.Entry, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nutrition.Entry{}, fmt.Errorf("parse entry id %q: %w", r.ID, err)
	}
	return nutrition.Entry{
		ID:        id,
		Timestamp: r.LoggedAt,
		FoodName:  r.FoodName,
		QuantityG: r.QuantityG,
		Nutrients: nutrition.Vector{
			Calories:      r.Calories,
			FatG:          r.FatG,
			ProteinG:      r.ProteinG,
			CarbohydrateG: r.CarbohydrateG,
		},
	}, nil
}

func entryArgs(userID string, e nutrition.Entry) pgx.NamedArgs {
	return pgx.NamedArgs{
		"userID": userID, "id": e.ID.String(), "loggedAt": e.Timestamp,
		"foodName": e.FoodName, "quantityG": e.QuantityG,
		"calories": e.Nutrients.Calories, "fatG": e.Nutrients.FatG,
		"proteinG": e.Nutrients.ProteinG, "carbohydrateG": e.Nutrients.CarbohydrateG,
	}
}

const insertEntrySQL = `INSERT INTO ledger_entries (id, user_id, logged_at, food_name, quantity_g, calories, fat_g, protein_g, carbohydrate_g)
	VALUES (@id, @userID, @loggedAt, @foodName, @quantityG, @calories, @fatG, @proteinG, @carbohydrateG)`

/* ─── Ledger ──────────────────────────────────────────────────────────── */

func (p *Postgres) LoadLedger(ctx context.Context, userID string) (*nutrition.Ledger, error) {
	rows, err := queryMany[entryRow](ctx, p.pool,
		`SELECT id, logged_at, food_name, quantity_g, calories, fat_g, protein_g, carbohydrate_g
		 FROM ledger_entries
		 WHERE user_id = @userID
		 ORDER BY seq`,
		pgx.NamedArgs{"userID": userID})
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	l := nutrition.NewLedger(userID)
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		l.Append(e)
	}
	return l, nil
}

func (p *Postgres) AppendEntry(ctx context.Context, userID string, e nutrition.Entry) error {
	if _, err := p.pool.Exec(ctx, insertEntrySQL, entryArgs(userID, e)); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (p *Postgres) AppendEntries(ctx context.Context, userID string, entries []nutrition.Entry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append entries: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, e := range entries {
		if _, err := tx.Exec(ctx, insertEntrySQL, entryArgs(userID, e)); err != nil {
			return fmt.Errorf("append entry %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append entries: %w", err)
	}
	return nil
}

/* ─── Archive ─────────────────────────────────────────────────────────── */

// ArchiveAndReset writes the archive record and deletes the archived ledger
// rows in one transaction. The (user_id, closed_at) primary key makes a
// replayed record a no-op; a record under a taken key whose entries are not
// all archived there already fails with ErrArchiveConflict.
func (p *Postgres) ArchiveAndReset(ctx context.Context, rec nutrition.ArchiveRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback(ctx)

	keyArgs := pgx.NamedArgs{"userID": rec.UserID, "closedAt": rec.ClosedAt.UTC()}
	tag, err := tx.Exec(ctx,
		`INSERT INTO archive_records (user_id, closed_at) VALUES (@userID, @closedAt)
		 ON CONFLICT (user_id, closed_at) DO NOTHING`, keyArgs)
	if err != nil {
		return fmt.Errorf("insert archive record: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if err := checkReplay(ctx, tx, rec); err != nil {
			return err
		}
	} else {
		for i, e := range rec.Entries {
			args := entryArgs(rec.UserID, e)
			args["closedAt"] = rec.ClosedAt.UTC()
			args["position"] = i
			if _, err := tx.Exec(ctx,
				`INSERT INTO archive_entries (user_id, closed_at, position, id, logged_at, food_name, quantity_g, calories, fat_g, protein_g, carbohydrate_g)
				 VALUES (@userID, @closedAt, @position, @id, @loggedAt, @foodName, @quantityG, @calories, @fatG, @proteinG, @carbohydrateG)`,
				args); err != nil {
				return fmt.Errorf("insert archive entry %d: %w", i+1, err)
			}
		}
	}

	ids := make([]string, len(rec.Entries))
	for i, e := range rec.Entries {
		ids[i] = e.ID.String()
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM ledger_entries WHERE user_id = @userID AND id = ANY(@ids::text[])`,
		pgx.NamedArgs{"userID": rec.UserID, "ids": ids}); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// checkReplay verifies that every entry of rec is already archived under
// rec's key, so deleting them from the ledger cannot lose anything.
func checkReplay(ctx context.Context, tx pgx.Tx, rec nutrition.ArchiveRecord) error {
	rows, err := tx.Query(ctx,
		`SELECT id FROM archive_entries WHERE user_id = @userID AND closed_at = @closedAt`,
		pgx.NamedArgs{"userID": rec.UserID, "closedAt": rec.ClosedAt.UTC()})
	if err != nil {
		return fmt.Errorf("load archived ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan archived ids: %w", err)
	}

	archived := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("parse archived id %q: %w", id, err)
		}
		archived[parsed] = true
	}
	if !coveredBy(rec.Entries, archived) {
		return fmt.Errorf("%w: user %s at %s", ErrArchiveConflict, rec.UserID, rec.ClosedAt.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

func (p *Postgres) LastClosedAt(ctx context.Context, userID string) (time.Time, error) {
	var last *time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT max(closed_at) FROM archive_records WHERE user_id = @userID`,
		pgx.NamedArgs{"userID": userID}).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("load last closed_at: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return last.UTC(), nil
}

func (p *Postgres) Archives(ctx context.Context, userID string) ([]nutrition.ArchiveRecord, error) {
	rows, err := queryMany[archiveEntryRow](ctx, p.pool,
		`SELECT closed_at, id, logged_at, food_name, quantity_g, calories, fat_g, protein_g, carbohydrate_g
		 FROM archive_entries
		 WHERE user_id = @userID
		 ORDER BY closed_at, position`,
		pgx.NamedArgs{"userID": userID})
	if err != nil {
		return nil, fmt.Errorf("load archives: %w", err)
	}

	var records []nutrition.ArchiveRecord
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		n := len(records)
		if n == 0 || !records[n-1].ClosedAt.Equal(r.ClosedAt) {
			records = append(records, nutrition.ArchiveRecord{UserID: userID, ClosedAt: r.ClosedAt})
			n++
		}
		records[n-1].Entries = append(records[n-1].Entries, e)
	}
	return records, nil
}

/* ─── Profiles ────────────────────────────────────────────────────────── */

func (p *Postgres) LoadProfile(ctx context.Context, userID string) (goals.Profile, error) {
	row, err := queryOne[profileRow](ctx, p.pool,
		`SELECT weight_kg, height_cm, age_years, gender, goal, activity_level, desired_weight_kg
		 FROM user_profiles WHERE user_id = @userID`,
		pgx.NamedArgs{"userID": userID})
	if errors.Is(err, pgx.ErrNoRows) {
		return goals.Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return goals.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	prof := goals.Profile{
		WeightKG:        row.WeightKG,
		HeightCM:        row.HeightCM,
		AgeYears:        row.AgeYears,
		Gender:          goals.Gender(row.Gender),
		Goal:            goals.Goal(row.Goal),
		DesiredWeightKG: row.DesiredWeightKG,
	}
	if row.ActivityLevel != nil {
		prof.ActivityLevel = *row.ActivityLevel
	}
	return prof, nil
}

func (p *Postgres) SaveProfile(ctx context.Context, userID string, prof goals.Profile) error {
	var activity *string
	if prof.ActivityLevel != "" {
		activity = &prof.ActivityLevel
	}
	goal := prof.Goal
	if goal == "" {
		goal = goals.Maintain
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, weight_kg, height_cm, age_years, gender, goal, activity_level, desired_weight_kg)
		 VALUES (@userID, @weightKG, @heightCM, @ageYears, @gender, @goal, @activityLevel, @desiredWeightKG)
		 ON CONFLICT (user_id) DO UPDATE SET
			weight_kg = EXCLUDED.weight_kg,
			height_cm = EXCLUDED.height_cm,
			age_years = EXCLUDED.age_years,
			gender = EXCLUDED.gender,
			goal = EXCLUDED.goal,
			activity_level = EXCLUDED.activity_level,
			desired_weight_kg = EXCLUDED.desired_weight_kg,
			updated_at = now()`,
		pgx.NamedArgs{
			"userID": userID, "weightKG": prof.WeightKG, "heightCM": prof.HeightCM,
			"ageYears": prof.AgeYears, "gender": string(prof.Gender), "goal": string(goal),
			"activityLevel": activity, "desiredWeightKG": prof.DesiredWeightKG,
		})
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

/* ─── Foods catalog ───────────────────────────────────────────────────── */

func (p *Postgres) Lookup(ctx context.Context, name string) (catalog.Food, error) {
	row, err := queryOne[foodRow](ctx, p.pool,
		`SELECT name, calories, fat_g, protein_g, carbohydrate_g
		 FROM foods WHERE name_norm = @nameNorm`,
		pgx.NamedArgs{"nameNorm": catalog.NormalizeName(name)})
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Food{}, catalog.ErrFoodNotFound
	}
	if err != nil {
		return catalog.Food{}, fmt.Errorf("lookup food: %w", err)
	}
	return catalog.Food{
		Name: row.Name,
		Per100g: nutrition.Vector{
			Calories:      row.Calories,
			FatG:          row.FatG,
			ProteinG:      row.ProteinG,
			CarbohydrateG: row.CarbohydrateG,
		},
	}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (p *Postgres) SearchFoods(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := queryMany[struct {
		Name string `db:"name"`
	}](ctx, p.pool,
		`SELECT name FROM foods
		 WHERE name_norm LIKE '%' || @q || '%'
		 ORDER BY name
		 LIMIT @limit`,
		pgx.NamedArgs{"q": likeEscaper.Replace(catalog.NormalizeName(query)), "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("search foods: %w", err)
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	return names, nil
}
