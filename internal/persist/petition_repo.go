package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/havenport/worldserver/internal/world"
)

// PetitionRepo persists council petitions and their votes.
type PetitionRepo struct {
	db *DB
}

func NewPetitionRepo(db *DB) *PetitionRepo {
	return &PetitionRepo{db: db}
}

// Create inserts a newly-filed petition. expiresAt is a wall-clock
// timestamp derived from the world-seconds expiry at write time.
func (r *PetitionRepo) Create(ctx context.Context, p *world.Petition, expiresAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO petitions (id, author_id, title, body, status, expires_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.AuthorID, p.Title, p.Body, string(p.Status), expiresAt,
	)
	return err
}

// SetStatus updates a petition's status (open -> passed/failed) once
// ExpirePetitions closes it.
func (r *PetitionRepo) SetStatus(ctx context.Context, id string, status world.PetitionStatus) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE petitions SET status = $1 WHERE id = $2`, string(status), id)
	return err
}

// Vote records one resident's vote, upserting in case of a vote change.
func (r *PetitionRepo) Vote(ctx context.Context, petitionID, residentID string, forIt bool) error {
	vote := "against"
	if forIt {
		vote = "for"
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO petition_votes (petition_id, resident_id, vote) VALUES ($1,$2,$3)
		 ON CONFLICT (petition_id, resident_id) DO UPDATE SET vote = EXCLUDED.vote, cast_at = now()`,
		petitionID, residentID, vote,
	)
	return err
}

// LoadOpen rehydrates every open petition and its votes on boot.
func (r *PetitionRepo) LoadOpen(ctx context.Context) ([]*world.Petition, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, author_id, title, body, status, extract(epoch from created_at)::bigint, extract(epoch from expires_at)::bigint
		 FROM petitions WHERE status = 'open'`,
	)
	if err != nil {
		return nil, fmt.Errorf("query petitions: %w", err)
	}
	defer rows.Close()

	var out []*world.Petition
	for rows.Next() {
		p := &world.Petition{Votes: make(map[string]bool)}
		var status string
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &status, &p.CreatedAt, &p.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan petition: %w", err)
		}
		p.Status = world.PetitionStatus(status)
		votes, err := r.loadVotes(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Votes = votes
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PetitionRepo) loadVotes(ctx context.Context, petitionID string) (map[string]bool, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT resident_id, vote FROM petition_votes WHERE petition_id = $1`, petitionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query votes for %q: %w", petitionID, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var residentID, vote string
		if err := rows.Scan(&residentID, &vote); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		out[residentID] = vote == "for"
	}
	return out, rows.Err()
}
