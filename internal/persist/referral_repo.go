package persist

import (
	"context"
	"fmt"

	"github.com/havenport/worldserver/internal/world"
)

// ReferralRepo persists referral codes and the claims filed against them.
type ReferralRepo struct {
	db *DB
}

func NewReferralRepo(db *DB) *ReferralRepo {
	return &ReferralRepo{db: db}
}

// EnsureCode upserts a referrer's code, a no-op if it already exists.
func (r *ReferralRepo) EnsureCode(ctx context.Context, code, referrerID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO referral_codes (code, referrer_id) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`,
		code, referrerID,
	)
	return err
}

// RecordClaim inserts a claim against a code, a no-op if this claimant
// has already claimed it.
func (r *ReferralRepo) RecordClaim(ctx context.Context, code, claimedBy string, claimedAtWorldSeconds int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO referral_claims (code, claimed_by) VALUES ($1, $2) ON CONFLICT (code, claimed_by) DO NOTHING`,
		code, claimedBy,
	)
	return err
}

// LoadAll rehydrates every referral code and its claims on boot.
func (r *ReferralRepo) LoadAll(ctx context.Context) (map[string]*world.ReferralCode, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT code, referrer_id FROM referral_codes`)
	if err != nil {
		return nil, fmt.Errorf("query referral codes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*world.ReferralCode)
	for rows.Next() {
		rc := &world.ReferralCode{}
		if err := rows.Scan(&rc.Code, &rc.ReferrerID); err != nil {
			return nil, fmt.Errorf("scan referral code: %w", err)
		}
		out[rc.Code] = rc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for code, rc := range out {
		claims, err := r.loadClaims(ctx, code)
		if err != nil {
			return nil, err
		}
		rc.Claims = claims
	}
	return out, nil
}

func (r *ReferralRepo) loadClaims(ctx context.Context, code string) ([]*world.ReferralClaim, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT claimed_by, extract(epoch from claimed_at)::bigint FROM referral_claims WHERE code = $1`, code,
	)
	if err != nil {
		return nil, fmt.Errorf("query claims for %q: %w", code, err)
	}
	defer rows.Close()

	var out []*world.ReferralClaim
	for rows.Next() {
		c := &world.ReferralClaim{}
		if err := rows.Scan(&c.ClaimedBy, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
