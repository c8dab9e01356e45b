package persist

import "context"

// FeedbackRepo persists free-text feedback submissions.
type FeedbackRepo struct {
	db *DB
}

func NewFeedbackRepo(db *DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

// Submit records one feedback body against the resident it came from.
func (r *FeedbackRepo) Submit(ctx context.Context, residentID, body string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO feedback_submissions (resident_id, body) VALUES ($1, $2)`,
		residentID, body,
	)
	return err
}
