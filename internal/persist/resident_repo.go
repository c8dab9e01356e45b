package persist

import (
	"context"
	"fmt"

	"github.com/havenport/worldserver/internal/world"
)

// ResidentRepo persists resident rows and their inventory lines.
type ResidentRepo struct {
	db *DB
}

func NewResidentRepo(db *DB) *ResidentRepo {
	return &ResidentRepo{db: db}
}

// CreateAccount registers a new passport with its registration-token hash,
// the prerequisite for the foreign key every resident row carries.
func (r *ResidentRepo) CreateAccount(ctx context.Context, passport, tokenHash string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO accounts (passport, registration_token_hash) VALUES ($1, $2)`,
		passport, tokenHash,
	)
	return err
}

// AccountTokenHash returns the stored registration-token hash for a
// passport, or pgx.ErrNoRows if the account does not exist.
func (r *ResidentRepo) AccountTokenHash(ctx context.Context, passport string) (string, error) {
	var hash string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT registration_token_hash FROM accounts WHERE passport = $1`, passport,
	).Scan(&hash)
	return hash, err
}

// Create inserts a brand-new resident row.
func (r *ResidentRepo) Create(ctx context.Context, row world.ResidentRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO residents (
			id, passport, type, status, display_name, webhook_url,
			x, y, facing, hunger, thirst, energy, bladder, health, social, wallet,
			job_id, on_shift, shift_seconds
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
		)`,
		row.ID, row.Passport, string(row.Type), string(row.Status), row.DisplayName, row.WebhookURL,
		row.X, row.Y, row.Facing, row.Hunger, row.Thirst, row.Energy, row.Bladder, row.Health, row.Social, row.Wallet,
		row.JobID, row.JobOnShift, row.JobShiftSeconds,
	)
	return err
}

// LoadAll loads every resident row not yet departed, for boot-time
// rehydration via world.State.LoadFromStore.
func (r *ResidentRepo) LoadAll(ctx context.Context) ([]world.ResidentRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, passport, type, status, display_name, webhook_url,
		        x, y, facing, hunger, thirst, energy, bladder, health, social, wallet,
		        job_id, on_shift, shift_seconds,
		        offenses, prison_sentence_end, arrested_by, carrying_suspect_id, carrying_body_id,
		        ever_collected_ubi, last_ubi_at
		 FROM residents WHERE status <> 'departed'`,
	)
	if err != nil {
		return nil, fmt.Errorf("query residents: %w", err)
	}
	defer rows.Close()

	var out []world.ResidentRow
	for rows.Next() {
		var row world.ResidentRow
		var typ, status string
		if err := rows.Scan(
			&row.ID, &row.Passport, &typ, &status, &row.DisplayName, &row.WebhookURL,
			&row.X, &row.Y, &row.Facing, &row.Hunger, &row.Thirst, &row.Energy, &row.Bladder, &row.Health, &row.Social, &row.Wallet,
			&row.JobID, &row.JobOnShift, &row.JobShiftSeconds,
			&row.Offenses, &row.PrisonSentenceEnd, &row.ArrestedBy, &row.CarryingSuspectID, &row.CarryingBodyID,
			&row.EverCollectedUBI, &row.LastUBIAt,
		); err != nil {
			return nil, fmt.Errorf("scan resident: %w", err)
		}
		row.Type = world.ResidentType(typ)
		row.Status = world.Status(status)
		inv, err := r.loadInventory(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		row.Inventory = inv
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *ResidentRepo) loadInventory(ctx context.Context, residentID string) ([]world.ItemStack, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT item_id, item_type, quantity, durability FROM inventory_items WHERE resident_id = $1`,
		residentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query inventory for %q: %w", residentID, err)
	}
	defer rows.Close()

	var out []world.ItemStack
	for rows.Next() {
		var it world.ItemStack
		if err := rows.Scan(&it.ID, &it.Type, &it.Quantity, &it.Durability); err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Save upserts one resident's mutable fields and replaces its inventory
// wholesale, inside a single transaction. Called from SaveAll's batched
// save, not per-action.
func (r *ResidentRepo) Save(ctx context.Context, row world.ResidentRow) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE residents SET
			status = $1, display_name = $2, webhook_url = $3,
			x = $4, y = $5, facing = $6,
			hunger = $7, thirst = $8, energy = $9, bladder = $10, health = $11, social = $12,
			wallet = $13,
			job_id = $14, on_shift = $15, shift_seconds = $16,
			offenses = $17, prison_sentence_end = $18, arrested_by = $19,
			carrying_suspect_id = $20, carrying_body_id = $21,
			ever_collected_ubi = $22, last_ubi_at = $23,
			updated_at = now()
		 WHERE id = $24`,
		string(row.Status), row.DisplayName, row.WebhookURL,
		row.X, row.Y, row.Facing,
		row.Hunger, row.Thirst, row.Energy, row.Bladder, row.Health, row.Social,
		row.Wallet,
		row.JobID, row.JobOnShift, row.JobShiftSeconds,
		row.Offenses, row.PrisonSentenceEnd, row.ArrestedBy,
		row.CarryingSuspectID, row.CarryingBodyID,
		row.EverCollectedUBI, row.LastUBIAt,
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("update resident %q: %w", row.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM inventory_items WHERE resident_id = $1`, row.ID); err != nil {
		return fmt.Errorf("clear inventory for %q: %w", row.ID, err)
	}
	for _, it := range row.Inventory {
		if _, err := tx.Exec(ctx,
			`INSERT INTO inventory_items (resident_id, item_id, item_type, quantity, durability) VALUES ($1,$2,$3,$4,$5)`,
			row.ID, it.ID, it.Type, it.Quantity, it.Durability,
		); err != nil {
			return fmt.Errorf("insert inventory item for %q: %w", row.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// SaveAll saves every row, collecting each resident's failure in the
// returned slice rather than aborting — one bad row should not block the rest of the batch from
// persisting.
func (r *ResidentRepo) SaveAll(ctx context.Context, rows []world.ResidentRow) []error {
	var errs []error
	for _, row := range rows {
		if err := r.Save(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Remove deletes a departed or fully-processed resident's row (and, via
// cascade, its inventory).
func (r *ResidentRepo) Remove(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM residents WHERE id = $1`, id)
	return err
}

// NameExists reports whether a resident display name is already taken, to
// the extent callers want to enforce uniqueness.
func (r *ResidentRepo) NameExists(ctx context.Context, displayName string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM residents WHERE display_name = $1)`, displayName,
	).Scan(&exists)
	return exists, err
}
