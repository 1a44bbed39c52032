package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ruteri/tee-secret-management/interfaces"
)

// FindChallenge returns the credential stored for taskID, or nil if there is
// none. The private key is returned encrypted.
func (s *Store) FindChallenge(ctx context.Context, taskID string) (*interfaces.EphemeralCredential, error) {
	cred := &interfaces.EphemeralCredential{TaskID: taskID, IsEncrypted: true}

	err := s.db.QueryRowContext(ctx,
		`SELECT address, private_key FROM challenges WHERE task_id = ?`,
		taskID,
	).Scan(&cred.Address, &cred.PrivateKey)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query challenge: %w", err)
	}
	return cred, nil
}

// InsertChallenge stores cred if no credential exists for its task. It
// returns false when the task already has one.
func (s *Store) InsertChallenge(ctx context.Context, cred *interfaces.EphemeralCredential) (bool, error) {
	if !cred.IsEncrypted {
		return false, ErrPlaintextValue
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO challenges (task_id, address, private_key) VALUES (?, ?, ?)`,
		cred.TaskID, cred.Address, cred.PrivateKey,
	)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert challenge: %w", err)
	}
	return true, nil
}

// CountChallenges returns the number of stored credentials.
func (s *Store) CountChallenges(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM challenges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count challenges: %w", err)
	}
	return n, nil
}
