package projection

import (
	"context"

	"socialindex/events"
)

// Store is the persistence capability the engine requires. Implementations
// must make Apply atomic: either every write issued through the Tx lands or
// none do. The engine owns no retry logic; a failed Apply is surfaced to the
// ingestion side, which redelivers the whole event.
type Store interface {
	// Apply runs fn inside one transaction boundary.
	Apply(ctx context.Context, fn func(Tx) error) error
	// Checkpoint returns the highest fully processed block height, or 0
	// when nothing has been processed yet.
	Checkpoint(ctx context.Context) (uint64, error)
	// SetCheckpoint records the highest fully processed block height.
	SetCheckpoint(ctx context.Context, height uint64) error
	Close() error
}

// Tx exposes get/upsert per entity kind. Getters return (nil, nil) when the
// entity does not exist; a non-nil error is reserved for store failures.
// Every Put is an upsert keyed by the entity's natural key.
type Tx interface {
	// HasUpdate reports whether the immutable log entry with the derived
	// id was already written, which is how the engine detects redelivery.
	HasUpdate(category events.Category, id string) (bool, error)

	PutDataUpdate(*DataUpdate) error
	PutStorageUpdate(*StorageUpdate) error
	PutGroupUpdate(*GroupUpdate) error
	PutPermissionUpdate(*PermissionUpdate) error
	PutContractUpdate(*ContractUpdate) error

	GetAccount(accountID string) (*Account, error)
	PutAccount(*Account) error
	GetGroup(groupID string) (*Group, error)
	PutGroup(*Group) error
	GetGroupMember(groupID, memberID string) (*GroupMember, error)
	PutGroupMember(*GroupMember) error
	GetProposal(groupID, proposalID string) (*Proposal, error)
	PutProposal(*Proposal) error
	GetStoragePool(poolKey string) (*StoragePool, error)
	PutStoragePool(*StoragePool) error
	GetSharedAllocation(poolID, targetID string) (*SharedStorageAllocation, error)
	PutSharedAllocation(*SharedStorageAllocation) error
	GetPermissionGrant(granter, grantee, path string) (*PermissionGrant, error)
	PutPermissionGrant(*PermissionGrant) error
}
