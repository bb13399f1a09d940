package usecase

import (
	"context"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
)

type rewrapUseCase struct {
	blobRepo  WrappedBlobRepository
	rewrapper Rewrapper
	keyring   *cryptoDomain.Keyring
}

type staleKek struct {
	id       uuid.UUID
	tenantID string
}

// staleKeks lists the KEKs blobs of scope must move off. For a tenant with its own
// KEK this includes every global KEK, restricted to the tenant's blobs.
func (r *rewrapUseCase) staleKeks(scope string) []staleKek {
	var stale []staleKek
	for _, kek := range r.keyring.Deprecated(scope) {
		stale = append(stale, staleKek{id: kek.ID, tenantID: scope})
	}
	if scope == cryptoDomain.GlobalScope || !r.keyring.HasScope(scope) {
		return stale
	}

	if global, ok := r.keyring.Active(cryptoDomain.GlobalScope); ok && global.Scope == cryptoDomain.GlobalScope {
		stale = append(stale, staleKek{id: global.ID, tenantID: scope})
	}
	for _, kek := range r.keyring.Deprecated(cryptoDomain.GlobalScope) {
		stale = append(stale, staleKek{id: kek.ID, tenantID: scope})
	}
	return stale
}

// Rewrap moves at most batchSize blobs of scope onto the scope's active KEK. Each
// blob is updated with a single conditional write, so concurrent readers always see
// either the old or the new wrap and a blob rewritten meanwhile is left alone.
func (r *rewrapUseCase) Rewrap(ctx context.Context, scope string, batchSize int) (int, error) {
	moved := 0
	for _, stale := range r.staleKeks(scope) {
		if moved >= batchSize {
			break
		}

		blobs, err := r.blobRepo.ListByKek(ctx, stale.id, stale.tenantID, batchSize-moved)
		if err != nil {
			return moved, err
		}

		for _, blob := range blobs {
			if err := ctx.Err(); err != nil {
				return moved, err
			}

			rewrapped, changed, err := r.rewrapper.Rewrap(blob)
			if err != nil {
				return moved, err
			}
			if !changed {
				continue
			}

			updated, err := r.blobRepo.UpdateWrap(ctx, rewrapped, stale.id)
			if err != nil {
				return moved, err
			}
			if updated {
				moved++
			}
		}
	}
	return moved, nil
}

// RewrapAll drains every scope in batches.
func (r *rewrapUseCase) RewrapAll(ctx context.Context, batchSize int) (int, error) {
	total := 0
	for _, scope := range r.keyring.Scopes() {
		for {
			n, err := r.Rewrap(ctx, scope, batchSize)
			total += n
			if err != nil {
				return total, err
			}
			if n == 0 {
				break
			}
		}
	}
	return total, nil
}

// NewRewrapUseCase creates a new RewrapUseCase.
func NewRewrapUseCase(
	blobRepo WrappedBlobRepository,
	rewrapper Rewrapper,
	keyring *cryptoDomain.Keyring,
) RewrapUseCase {
	return &rewrapUseCase{
		blobRepo:  blobRepo,
		rewrapper: rewrapper,
		keyring:   keyring,
	}
}
