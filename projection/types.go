// Package projection turns decoded contract events into an append-only
// per-category log and a set of mutable aggregates representing current
// state. Handlers are backend-agnostic: they mutate state only through the
// Store capability interface, so every persistence backend yields
// field-equivalent results for the same input stream by construction.
package projection

// EventMeta is the block/receipt metadata shared by every immutable log
// entity. The ID is a pure function of (receipt, log index, category); the
// same event always overwrites in place rather than duplicating.
type EventMeta struct {
	ID             string `gorm:"primaryKey;size:128" json:"id"`
	ReceiptID      string `gorm:"index;size:128" json:"receipt_id"`
	BlockHeight    uint64 `gorm:"index" json:"block_height"`
	BlockTimestamp int64  `json:"block_timestamp"`
	LogIndex       int    `json:"log_index"`
	Operation      string `gorm:"index;size:64" json:"operation"`
	Author         string `gorm:"index;size:128" json:"author"`
	PartitionID    string `gorm:"size:64" json:"partition_id"`
}

// DataUpdate is the immutable log entity for core social data events. It
// carries the derived ownership and reference fields so consumers never need
// to re-parse paths or value payloads.
type DataUpdate struct {
	EventMeta
	Path           string   `gorm:"index;size:512" json:"path"`
	Value          string   `json:"value"`
	AccountID      string   `gorm:"index;size:128" json:"account_id"`
	DataType       string   `gorm:"index;size:64" json:"data_type"`
	DataID         string   `gorm:"size:128" json:"data_id"`
	GroupID        string   `gorm:"index;size:128" json:"group_id"`
	IsGroupContent bool     `json:"is_group_content"`
	TargetAccount  string   `gorm:"index;size:128" json:"target_account"`
	ParentPath     string   `gorm:"size:512" json:"parent_path"`
	ParentAuthor   string   `gorm:"size:128" json:"parent_author"`
	ParentType     string   `gorm:"size:64" json:"parent_type"`
	RefPath        string   `gorm:"size:512" json:"ref_path"`
	RefAuthor      string   `gorm:"size:128" json:"ref_author"`
	RefType        string   `gorm:"size:64" json:"ref_type"`
	Refs           []string `gorm:"serializer:json" json:"refs"`
	RefAuthors     []string `gorm:"serializer:json" json:"ref_authors"`
}

// StorageUpdate is the immutable log entity for storage and quota events.
// Balance fields are decimal strings; the engine never does arithmetic on
// them, it only mirrors what the contract reported.
type StorageUpdate struct {
	EventMeta
	Amount      string `gorm:"size:64" json:"amount"`
	NewBalance  string `gorm:"size:64" json:"new_balance"`
	PoolKey     string `gorm:"index;size:128" json:"pool_key"`
	PoolID      string `gorm:"index;size:128" json:"pool_id"`
	TargetID    string `gorm:"index;size:128" json:"target_id"`
	MaxBytes    uint64 `json:"max_bytes"`
	SharedBytes uint64 `json:"shared_bytes"`
	UsedBytes   uint64 `json:"used_bytes"`
}

// GroupUpdate is the immutable log entity for group and governance events.
type GroupUpdate struct {
	EventMeta
	GroupID    string `gorm:"index;size:128" json:"group_id"`
	MemberID   string `gorm:"index;size:128" json:"member_id"`
	ProposalID string `gorm:"index;size:128" json:"proposal_id"`
	Details    string `json:"details"`
}

// PermissionUpdate is the immutable log entity for permission events.
type PermissionUpdate struct {
	EventMeta
	Grantee   string `gorm:"index;size:256" json:"grantee"`
	Path      string `gorm:"index;size:512" json:"path"`
	Deleted   bool   `json:"deleted"`
	ExpiresAt int64  `json:"expires_at"`
}

// ContractUpdate is the immutable log entity for contract administration
// events. The category has no aggregate projection; it exists purely as an
// audit trail.
type ContractUpdate struct {
	EventMeta
	Key      string `gorm:"index;size:256" json:"key"`
	Value    string `json:"value"`
	TargetID string `gorm:"index;size:128" json:"target_id"`
}

// Account is the mutable aggregate for one protocol account. Accounts are
// created lazily on first reference and never deleted.
type Account struct {
	AccountID             string `gorm:"primaryKey;size:128" json:"account_id"`
	StorageBalance        string `gorm:"size:64" json:"storage_balance"`
	FirstSeenAt           int64  `json:"first_seen_at"`
	LastActiveAt          int64  `json:"last_active_at"`
	DataUpdateCount       int64  `json:"data_update_count"`
	StorageUpdateCount    int64  `json:"storage_update_count"`
	PermissionUpdateCount int64  `json:"permission_update_count"`
}

// Group is the mutable aggregate for one group, created on create_group and
// thereafter mutated by roughly twenty-five operation types. Member and
// join-request counters are clamped at zero: a decrement below zero is a
// no-op, never a negative value.
type Group struct {
	GroupID                 string   `gorm:"primaryKey;size:128" json:"group_id"`
	Owner                   string   `gorm:"index;size:128" json:"owner"`
	PreviousOwners          []string `gorm:"serializer:json" json:"previous_owners"`
	IsPrivate               bool     `json:"is_private"`
	MemberCount             int64    `json:"member_count"`
	ProposalCount           int64    `json:"proposal_count"`
	ActiveProposalCount     int64    `json:"active_proposal_count"`
	PendingJoinRequestCount int64    `json:"pending_join_request_count"`
	PoolBalance             string   `gorm:"size:64" json:"pool_balance"`
	VotingPeriod            int64    `json:"voting_period"`
	ParticipationQuorumBps  int64    `json:"participation_quorum_bps"`
	MajorityThresholdBps    int64    `json:"majority_threshold_bps"`
	HasPool                 bool     `json:"has_pool"`
	HasSponsorConfig        bool     `json:"has_sponsor_config"`
	LastActivityAt          int64    `json:"last_activity_at"`
	UpdateCount             int64    `json:"update_count"`
}

// GroupMember records one account's membership in one group. Members are
// never physically deleted; leaving or blacklisting flips state flags so the
// membership history survives.
type GroupMember struct {
	GroupID       string `gorm:"primaryKey;size:128" json:"group_id"`
	MemberID      string `gorm:"primaryKey;size:128" json:"member_id"`
	Level         int64  `json:"level"`
	Nonce         int64  `json:"nonce"`
	IsActive      bool   `json:"is_active"`
	IsBlacklisted bool   `json:"is_blacklisted"`
	JoinedAt      int64  `json:"joined_at"`
	LeftAt        int64  `json:"left_at"`
	LastActiveAt  int64  `json:"last_active_at"`
}

// ProposalStatus enumerates the governance proposal lifecycle. Terminal
// states are final: a status update on a non-active proposal is logged as an
// anomaly and leaves the aggregate untouched.
type ProposalStatus string

const (
	ProposalStatusActive   ProposalStatus = "active"
	ProposalStatusExecuted ProposalStatus = "executed"
	ProposalStatusRejected ProposalStatus = "rejected"
	ProposalStatusExpired  ProposalStatus = "expired"
)

// Terminal reports whether the status accepts no further transitions.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case ProposalStatusExecuted, ProposalStatusRejected, ProposalStatusExpired:
		return true
	default:
		return false
	}
}

// ParseProposalStatus validates a status carried by an event. Unknown values
// return false so handlers can treat them as anomalies rather than
// persisting garbage.
func ParseProposalStatus(raw string) (ProposalStatus, bool) {
	switch ProposalStatus(raw) {
	case ProposalStatusActive, ProposalStatusExecuted, ProposalStatusRejected, ProposalStatusExpired:
		return ProposalStatus(raw), true
	default:
		return "", false
	}
}

// Proposal is the mutable aggregate for one governance proposal. The voting
// rule parameters are a snapshot of the group's configuration at creation
// time so later config changes cannot retroactively alter the outcome. The
// tallies maintain yesVotes + noVotes == totalVotes at every observed state.
type Proposal struct {
	GroupID                string         `gorm:"primaryKey;size:128" json:"group_id"`
	ProposalID             string         `gorm:"primaryKey;size:128" json:"proposal_id"`
	ProposalType           string         `gorm:"size:64" json:"proposal_type"`
	Description            string         `json:"description"`
	Proposer               string         `gorm:"index;size:128" json:"proposer"`
	Status                 ProposalStatus `gorm:"index;size:16" json:"status"`
	YesVotes               int64          `json:"yes_votes"`
	NoVotes                int64          `json:"no_votes"`
	TotalVotes             int64          `json:"total_votes"`
	VotingPeriod           int64          `json:"voting_period"`
	ParticipationQuorumBps int64          `json:"participation_quorum_bps"`
	MajorityThresholdBps   int64          `json:"majority_threshold_bps"`
	CreatedAt              int64          `json:"created_at"`
	ExpiresAt              int64          `json:"expires_at"`
	ExecutedAt             int64          `json:"executed_at"`
	UpdatedAt              int64          `json:"updated_at"`
	CustomData             string         `json:"custom_data"`
}

// PoolType classifies storage pools by their key shape.
type PoolType string

const (
	PoolTypeGroup    PoolType = "group"
	PoolTypePlatform PoolType = "platform"
	PoolTypeShared   PoolType = "shared"
)

// StoragePool is the mutable aggregate for one storage pool. Balances and
// byte counters are overwritten from event values, never accumulated.
type StoragePool struct {
	PoolKey       string   `gorm:"primaryKey;size:128" json:"pool_key"`
	PoolType      PoolType `gorm:"size:16" json:"pool_type"`
	Balance       string   `gorm:"size:64" json:"balance"`
	SharedBytes   uint64   `json:"shared_bytes"`
	UsedBytes     uint64   `json:"used_bytes"`
	GroupID       string   `gorm:"index;size:128" json:"group_id"`
	LastUpdatedAt int64    `json:"last_updated_at"`
}

// SharedStorageAllocation tracks bytes a pool has granted to one target.
// Returning storage deactivates the allocation; it is never deleted.
type SharedStorageAllocation struct {
	PoolID      string `gorm:"primaryKey;size:128" json:"pool_id"`
	TargetID    string `gorm:"primaryKey;size:128" json:"target_id"`
	MaxBytes    uint64 `json:"max_bytes"`
	UsedBytes   uint64 `json:"used_bytes"`
	IsActive    bool   `json:"is_active"`
	AllocatedAt int64  `json:"allocated_at"`
	ReturnedAt  int64  `json:"returned_at"`
}

// PermissionGrant mirrors the permission event stream into a currently
// active grants view keyed by (granter, grantee, path).
type PermissionGrant struct {
	Granter   string `gorm:"primaryKey;size:128" json:"granter"`
	Grantee   string `gorm:"primaryKey;size:256" json:"grantee"`
	Path      string `gorm:"primaryKey;size:512" json:"path"`
	IsActive  bool   `json:"is_active"`
	ExpiresAt int64  `json:"expires_at"`
	RevokedAt int64  `json:"revoked_at"`
	UpdatedAt int64  `json:"updated_at"`
}
