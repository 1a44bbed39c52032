package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ruteri/tee-secret-management/interfaces"
)

// ErrPlaintextValue is returned when asked to persist a secret whose value
// is not encrypted.
var ErrPlaintextValue = errors.New("refusing to store a plaintext secret value")

// SecretTable persists encrypted secrets of one header kind.
type SecretTable[H interfaces.SecretHeader] struct {
	db         *sql.DB
	name       string
	keyColumns []string
	keyArgs    func(H) []any
}

// Web2Secrets returns the table of owner/key addressed secrets.
func (s *Store) Web2Secrets() *SecretTable[interfaces.Web2SecretHeader] {
	return &SecretTable[interfaces.Web2SecretHeader]{
		db:         s.db,
		name:       "web2_secrets",
		keyColumns: []string{"owner_address", "secret_key"},
		keyArgs: func(h interfaces.Web2SecretHeader) []any {
			return []any{h.OwnerAddress, h.Key}
		},
	}
}

// Web3Secrets returns the table of address-keyed secrets.
func (s *Store) Web3Secrets() *SecretTable[interfaces.Web3SecretHeader] {
	return &SecretTable[interfaces.Web3SecretHeader]{
		db:         s.db,
		name:       "web3_secrets",
		keyColumns: []string{"address"},
		keyArgs: func(h interfaces.Web3SecretHeader) []any {
			return []any{h.Address}
		},
	}
}

// ComputeSecrets returns the table of app runtime secrets.
func (s *Store) ComputeSecrets() *SecretTable[interfaces.ComputeSecretHeader] {
	return &SecretTable[interfaces.ComputeSecretHeader]{
		db:         s.db,
		name:       "compute_secrets",
		keyColumns: []string{"app_address", "secret_index"},
		keyArgs: func(h interfaces.ComputeSecretHeader) []any {
			return []any{h.AppAddress, h.Index}
		},
	}
}

func (t *SecretTable[H]) where() string {
	clauses := make([]string, len(t.keyColumns))
	for i, c := range t.keyColumns {
		clauses[i] = c + " = ?"
	}
	return strings.Join(clauses, " AND ")
}

func (t *SecretTable[H]) placeholders() string {
	return strings.TrimSuffix(strings.Repeat("?, ", len(t.keyColumns)+1), ", ")
}

// Find returns the stored secret for header, or nil if there is none.
// Returned values are always encrypted.
func (t *SecretTable[H]) Find(ctx context.Context, header H) (*interfaces.Secret[H], error) {
	var value string
	err := t.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE %s`, t.name, t.where()),
		t.keyArgs(header)...,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}

	return &interfaces.Secret[H]{Header: header, Value: value, IsEncryptedValue: true}, nil
}

// Insert stores secret if no secret exists for its header. It returns
// false when the header is already taken.
func (t *SecretTable[H]) Insert(ctx context.Context, secret *interfaces.Secret[H]) (bool, error) {
	if !secret.IsEncryptedValue {
		return false, ErrPlaintextValue
	}

	args := append(t.keyArgs(secret.Header), secret.Value)
	_, err := t.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, value) VALUES (%s)`, t.name, strings.Join(t.keyColumns, ", "), t.placeholders()),
		args...,
	)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", t.name, err)
	}
	return true, nil
}

// Update replaces the value of an existing secret. It returns false when no
// secret exists for the header.
func (t *SecretTable[H]) Update(ctx context.Context, secret *interfaces.Secret[H]) (bool, error) {
	if !secret.IsEncryptedValue {
		return false, ErrPlaintextValue
	}

	args := append([]any{secret.Value}, t.keyArgs(secret.Header)...)
	res, err := t.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE %s`, t.name, t.where()),
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", t.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s: %w", t.name, err)
	}
	return n > 0, nil
}

// Upsert inserts or replaces the secret in one transaction. It returns the
// secret found under the header, or nil if the header was new, and whether
// it wrote. A found secret is left in place when unchanged reports true for
// it; unchanged may be nil.
func (t *SecretTable[H]) Upsert(ctx context.Context, secret *interfaces.Secret[H], unchanged func(*interfaces.Secret[H]) bool) (*interfaces.Secret[H], bool, error) {
	if !secret.IsEncryptedValue {
		return nil, false, ErrPlaintextValue
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous *interfaces.Secret[H]
	var value string
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE %s`, t.name, t.where()),
		t.keyArgs(secret.Header)...,
	).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, false, fmt.Errorf("query %s: %w", t.name, err)
	default:
		previous = &interfaces.Secret[H]{Header: secret.Header, Value: value, IsEncryptedValue: true}
		if unchanged != nil && unchanged(previous) {
			return previous, false, nil
		}
	}

	cols := strings.Join(t.keyColumns, ", ")
	args := append(t.keyArgs(secret.Header), secret.Value)
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, value) VALUES (%s)
			ON CONFLICT (%s) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			t.name, cols, t.placeholders(), cols),
		args...,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert %s: %w", t.name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}
	return previous, true, nil
}

// Count returns the number of stored secrets.
func (t *SecretTable[H]) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return n, nil
}
