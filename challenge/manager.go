// Package challenge issues the enclave challenge identity of each task.
//
// Exactly one keypair is ever stored per task id. Concurrent first requests
// in this process are coalesced, and requests racing across processes are
// arbitrated by the unique constraint of the store: the loser re-reads the
// winner's credential.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/tee-secret-management/cryptoutils"
	"github.com/ruteri/tee-secret-management/interfaces"
	"golang.org/x/sync/singleflight"
)

// Store persists credentials with their private key encrypted.
type Store interface {
	// FindChallenge returns nil when the task has no credential.
	FindChallenge(ctx context.Context, taskID string) (*interfaces.EphemeralCredential, error)
	// InsertChallenge returns false when the task already has a credential.
	InsertChallenge(ctx context.Context, cred *interfaces.EphemeralCredential) (bool, error)
}

// createTimeout bounds the coalesced lookup and creation of a credential,
// which outlives the cancellation of the caller that started it.
const createTimeout = 10 * time.Second

var errLostInsertRace = errors.New("challenge vanished after a conflicting insert")

// Manager creates and returns enclave challenge credentials.
type Manager struct {
	store  Store
	cipher interfaces.Cipher
	log    *slog.Logger

	group singleflight.Group
}

// NewManager creates a manager over store, encrypting private keys with cipher.
func NewManager(store Store, cipher interfaces.Cipher, log *slog.Logger) *Manager {
	return &Manager{store: store, cipher: cipher, log: log}
}

// Get returns the credential of taskID. It returns an error wrapping
// interfaces.ErrNotFound if none has been created.
func (m *Manager) Get(ctx context.Context, taskID string, decrypt bool) (*interfaces.EphemeralCredential, error) {
	taskID = interfaces.CanonicalAddress(taskID)

	cred, err := m.store.FindChallenge(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("looking up challenge of task %s: %w", taskID, err)
	}
	if cred == nil {
		return nil, fmt.Errorf("challenge of task %s: %w", taskID, interfaces.ErrNotFound)
	}
	return m.maybeDecrypt(cred, decrypt)
}

// GetOrCreate returns the credential of taskID, creating it if needed.
// A caller whose ctx ends returns early; callers waiting on the same task
// are not affected.
func (m *Manager) GetOrCreate(ctx context.Context, taskID string, decrypt bool) (*interfaces.EphemeralCredential, error) {
	taskID = interfaces.CanonicalAddress(taskID)

	ch := m.group.DoChan(taskID, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
		defer cancel()
		return m.getOrCreate(sharedCtx, taskID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// The shared result must not be mutated by one caller's decryption.
	cred := *res.Val.(*interfaces.EphemeralCredential)
	return m.maybeDecrypt(&cred, decrypt)
}

func (m *Manager) getOrCreate(ctx context.Context, taskID string) (*interfaces.EphemeralCredential, error) {
	existing, err := m.store.FindChallenge(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("looking up challenge of task %s: %w", taskID, err)
	}
	if existing != nil {
		return existing, nil
	}

	keypair, err := cryptoutils.GenerateEthereumKeypair()
	if err != nil {
		return nil, err
	}
	cred := &interfaces.EphemeralCredential{
		TaskID:     taskID,
		Address:    keypair.Address,
		PrivateKey: keypair.PrivateKey,
	}
	if err := cred.Encrypt(m.cipher); err != nil {
		return nil, err
	}

	inserted, err := m.store.InsertChallenge(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("storing challenge of task %s: %w", taskID, err)
	}
	if inserted {
		m.log.Info("Created enclave challenge",
			slog.String("taskID", taskID),
			slog.String("address", cred.Address))
		return cred, nil
	}

	// Someone else just created it.
	existing, err = m.store.FindChallenge(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("looking up challenge of task %s: %w", taskID, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, errLostInsertRace)
	}
	m.log.Debug("Enclave challenge created concurrently", slog.String("taskID", taskID))
	return existing, nil
}

func (m *Manager) maybeDecrypt(cred *interfaces.EphemeralCredential, decrypt bool) (*interfaces.EphemeralCredential, error) {
	if decrypt && cred.IsEncrypted {
		if err := cred.Decrypt(m.cipher); err != nil {
			return nil, err
		}
	}
	return cred, nil
}
