package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// WorldStateRow is the single-row snapshot of clock timers.
type WorldStateRow struct {
	WorldSeconds  int64
	LastTrainAt   int64
	LastRestockAt int64
}

// WorldStateRepo persists the singleton world clock row and the
// per-item shop stock table.
type WorldStateRepo struct {
	db *DB
}

func NewWorldStateRepo(db *DB) *WorldStateRepo {
	return &WorldStateRepo{db: db}
}

// Load returns the persisted clock snapshot, or the zero value if the
// world has never been saved before (fresh boot).
func (r *WorldStateRepo) Load(ctx context.Context) (WorldStateRow, error) {
	var row WorldStateRow
	err := r.db.Pool.QueryRow(ctx,
		`SELECT world_seconds, last_train_at, last_restock_at FROM world_state WHERE id = 1`,
	).Scan(&row.WorldSeconds, &row.LastTrainAt, &row.LastRestockAt)
	if err == pgx.ErrNoRows {
		return WorldStateRow{}, nil
	}
	if err != nil {
		return WorldStateRow{}, fmt.Errorf("load world state: %w", err)
	}
	return row, nil
}

// Save upserts the singleton clock row.
func (r *WorldStateRepo) Save(ctx context.Context, row WorldStateRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO world_state (id, world_seconds, last_train_at, last_restock_at, updated_at)
		 VALUES (1, $1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET
			world_seconds = EXCLUDED.world_seconds,
			last_train_at = EXCLUDED.last_train_at,
			last_restock_at = EXCLUDED.last_restock_at,
			updated_at = now()`,
		row.WorldSeconds, row.LastTrainAt, row.LastRestockAt,
	)
	return err
}

// LoadShopStock returns the persisted stock count for every item type
// with a saved row.
func (r *WorldStateRepo) LoadShopStock(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT item_type, quantity FROM shop_stock`)
	if err != nil {
		return nil, fmt.Errorf("query shop stock: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var itemType string
		var qty int
		if err := rows.Scan(&itemType, &qty); err != nil {
			return nil, fmt.Errorf("scan shop stock: %w", err)
		}
		out[itemType] = qty
	}
	return out, rows.Err()
}

// SaveShopStock upserts every item type's current stock count.
func (r *WorldStateRepo) SaveShopStock(ctx context.Context, stock map[string]int) error {
	for itemType, qty := range stock {
		if _, err := r.db.Pool.Exec(ctx,
			`INSERT INTO shop_stock (item_type, quantity) VALUES ($1, $2)
			 ON CONFLICT (item_type) DO UPDATE SET quantity = EXCLUDED.quantity`,
			itemType, qty,
		); err != nil {
			return fmt.Errorf("save shop stock for %q: %w", itemType, err)
		}
	}
	return nil
}
