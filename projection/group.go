package projection

import (
	"fmt"

	"socialindex/events"
)

// Group operation names emitted by the group/governance contract.
const (
	opCreateGroup            = "create_group"
	opAddMember              = "add_member"
	opRemoveMember           = "remove_member"
	opMemberInvited          = "member_invited"
	opAddToBlacklist         = "add_to_blacklist"
	opRemoveFromBlacklist    = "remove_from_blacklist"
	opPermissionChanged      = "permission_changed"
	opTransferOwnership      = "transfer_ownership"
	opPrivacyChanged         = "privacy_changed"
	opGroupUpdated           = "group_updated"
	opProposalCreated        = "proposal_created"
	opVoteCast               = "vote_cast"
	opProposalStatusUpdated  = "proposal_status_updated"
	opGroupPoolDeposit       = "group_pool_deposit"
	opGroupPoolCreated       = "group_pool_created"
	opJoinRequestSubmitted   = "join_request_submitted"
	opJoinRequestApproved    = "join_request_approved"
	opJoinRequestRejected    = "join_request_rejected"
	opJoinRequestCancelled   = "join_request_cancelled"
	opVotingConfigChanged    = "voting_config_changed"
	opSponsorQuotaSet        = "group_sponsor_quota_set"
	opSponsorDefaultSet      = "group_sponsor_default_set"
	opStatsUpdated           = "stats_updated"
	opMemberNonceUpdated     = "member_nonce_updated"
	opPathPermissionGranted  = "path_permission_granted"
	opPathPermissionRevoked  = "path_permission_revoked"
	opCustomProposalExecuted = "custom_proposal_executed"
)

// logOnlyGroupOps are deliberate no-op branches: the immutable log entry is
// written and no aggregate moves. Adding a mutation for one of these later
// is a reviewable change, not a forgotten case.
var logOnlyGroupOps = map[string]struct{}{
	opStatsUpdated:           {},
	opMemberNonceUpdated:     {},
	opPathPermissionGranted:  {},
	opPathPermissionRevoked:  {},
	opCustomProposalExecuted: {},
}

// touchGroup applies the invariants shared by every group mutation: bump
// last activity and count the update.
func touchGroup(g *Group, ts int64) {
	if ts > g.LastActivityAt {
		g.LastActivityAt = ts
	}
	g.UpdateCount++
}

// clampDecrement lowers a counter without ever letting it go negative.
func clampDecrement(counter *int64) {
	if *counter > 0 {
		*counter--
	}
}

// applyGroup projects group lifecycle, membership, join-request, pool,
// sponsorship, and governance events.
func (e *Engine) applyGroup(tx Tx, env *events.Envelope, replayed bool) error {
	fields := env.Fields
	groupID := fields.String("group_id")
	memberID := fields.String("member_id")
	proposalID := fields.String("proposal_id")

	upd := &GroupUpdate{
		EventMeta:  meta(env),
		GroupID:    groupID,
		MemberID:   memberID,
		ProposalID: proposalID,
		Details:    rawValue(fields, "details"),
	}
	if err := tx.PutGroupUpdate(upd); err != nil {
		return fmt.Errorf("put group update: %w", err)
	}
	if replayed {
		return nil
	}
	if _, ok := logOnlyGroupOps[env.Operation]; ok {
		return nil
	}
	if groupID == "" {
		e.anomaly("group_event_without_group_id", env)
		return nil
	}

	ts := env.BlockTimestamp
	group, err := tx.GetGroup(groupID)
	if err != nil {
		return fmt.Errorf("get group %s: %w", groupID, err)
	}
	if env.Operation == opCreateGroup {
		if group == nil {
			group = &Group{GroupID: groupID, PoolBalance: "0"}
		}
	} else if group == nil {
		e.anomaly("group_event_unknown_group", env, "group_id", groupID)
		return nil
	}

	switch env.Operation {
	case opCreateGroup:
		cfg := fields.Object("config")
		if cfg == nil {
			cfg = fields
		}
		owner := cfg.String("owner")
		if owner == "" {
			owner = env.Author
		}
		group.Owner = owner
		group.IsPrivate = cfg.Bool("is_private")
		if period, ok := cfg.Int64OK("voting_period"); ok {
			group.VotingPeriod = period
		}
		if quorum, ok := cfg.Int64OK("participation_quorum_bps"); ok {
			group.ParticipationQuorumBps = quorum
		}
		if threshold, ok := cfg.Int64OK("majority_threshold_bps"); ok {
			group.MajorityThresholdBps = threshold
		}

	case opAddMember, opMemberInvited:
		group.MemberCount++
		if err := e.grantMembership(tx, env, groupID, memberID, ts); err != nil {
			return err
		}

	case opJoinRequestApproved:
		group.MemberCount++
		clampDecrement(&group.PendingJoinRequestCount)
		if err := e.grantMembership(tx, env, groupID, memberID, ts); err != nil {
			return err
		}

	case opRemoveMember:
		clampDecrement(&group.MemberCount)
		if err := e.revokeMembership(tx, env, groupID, memberID, ts, false); err != nil {
			return err
		}

	case opAddToBlacklist:
		clampDecrement(&group.MemberCount)
		if err := e.revokeMembership(tx, env, groupID, memberID, ts, true); err != nil {
			return err
		}

	case opRemoveFromBlacklist:
		member, err := e.lookupMember(tx, env, groupID, memberID)
		if err != nil || member == nil {
			return err
		}
		member.IsBlacklisted = false
		member.LastActiveAt = ts
		if err := tx.PutGroupMember(member); err != nil {
			return fmt.Errorf("put member %s/%s: %w", groupID, memberID, err)
		}

	case opPermissionChanged:
		member, err := e.lookupMember(tx, env, groupID, memberID)
		if err != nil || member == nil {
			return err
		}
		if level, ok := fields.Int64OK("level"); ok {
			member.Level = level
		}
		member.LastActiveAt = ts
		if err := tx.PutGroupMember(member); err != nil {
			return fmt.Errorf("put member %s/%s: %w", groupID, memberID, err)
		}

	case opTransferOwnership:
		newOwner := fields.String("new_owner")
		if newOwner == "" {
			newOwner = fields.String("owner")
		}
		if newOwner == "" {
			e.anomaly("transfer_ownership_without_owner", env, "group_id", groupID)
			return nil
		}
		if group.Owner != "" {
			group.PreviousOwners = append(group.PreviousOwners, group.Owner)
		}
		group.Owner = newOwner

	case opPrivacyChanged, opGroupUpdated:
		if private, ok := fields.BoolOK("is_private"); ok {
			group.IsPrivate = private
		}

	case opProposalCreated:
		if proposalID == "" {
			e.anomaly("proposal_created_without_id", env, "group_id", groupID)
			return nil
		}
		group.ProposalCount++
		group.ActiveProposalCount++
		if err := e.createProposal(tx, env, group, proposalID, ts); err != nil {
			return err
		}

	case opVoteCast:
		if err := e.castVote(tx, env, groupID, proposalID, ts); err != nil {
			return err
		}

	case opProposalStatusUpdated:
		if err := e.updateProposalStatus(tx, env, group, groupID, proposalID, ts); err != nil {
			return err
		}

	case opGroupPoolDeposit:
		if balance := fields.String("pool_balance"); balance != "" {
			group.PoolBalance = balance
		}

	case opGroupPoolCreated:
		group.HasPool = true

	case opJoinRequestSubmitted:
		group.PendingJoinRequestCount++

	case opJoinRequestRejected, opJoinRequestCancelled:
		clampDecrement(&group.PendingJoinRequestCount)

	case opVotingConfigChanged:
		if period, ok := fields.Int64OK("voting_period"); ok {
			group.VotingPeriod = period
		}
		if quorum, ok := fields.Int64OK("participation_quorum_bps"); ok {
			group.ParticipationQuorumBps = quorum
		}
		if threshold, ok := fields.Int64OK("majority_threshold_bps"); ok {
			group.MajorityThresholdBps = threshold
		}

	case opSponsorQuotaSet, opSponsorDefaultSet:
		if fields.Bool("enabled") {
			group.HasSponsorConfig = true
		}

	default:
		e.log.Debug("group operation without aggregate mutation",
			"operation", env.Operation, "group_id", groupID)
	}

	touchGroup(group, ts)
	if err := tx.PutGroup(group); err != nil {
		return fmt.Errorf("put group %s: %w", groupID, err)
	}
	return nil
}

// grantMembership upserts an active membership row, creating it on the
// first grant and clearing a prior blacklist flag.
func (e *Engine) grantMembership(tx Tx, env *events.Envelope, groupID, memberID string, ts int64) error {
	if memberID == "" {
		e.anomaly("membership_grant_without_member", env, "group_id", groupID)
		return nil
	}
	member, err := tx.GetGroupMember(groupID, memberID)
	if err != nil {
		return fmt.Errorf("get member %s/%s: %w", groupID, memberID, err)
	}
	if member == nil {
		member = &GroupMember{GroupID: groupID, MemberID: memberID, JoinedAt: ts}
	}
	member.IsActive = true
	member.IsBlacklisted = false
	member.LeftAt = 0
	member.LastActiveAt = ts
	if nonce, ok := env.Fields.Int64OK("nonce"); ok {
		member.Nonce = nonce
	}
	if level, ok := env.Fields.Int64OK("level"); ok {
		member.Level = level
	}
	if err := tx.PutGroupMember(member); err != nil {
		return fmt.Errorf("put member %s/%s: %w", groupID, memberID, err)
	}
	return nil
}

// revokeMembership marks a member inactive, optionally blacklisting. The
// row is retained so the membership history survives.
func (e *Engine) revokeMembership(tx Tx, env *events.Envelope, groupID, memberID string, ts int64, blacklist bool) error {
	member, err := e.lookupMember(tx, env, groupID, memberID)
	if err != nil || member == nil {
		return err
	}
	member.IsActive = false
	member.LeftAt = ts
	if blacklist {
		member.IsBlacklisted = true
	}
	if err := tx.PutGroupMember(member); err != nil {
		return fmt.Errorf("put member %s/%s: %w", groupID, memberID, err)
	}
	return nil
}

// lookupMember resolves the member row targeted by a membership mutation. A
// missing target is a recoverable anomaly, not an error.
func (e *Engine) lookupMember(tx Tx, env *events.Envelope, groupID, memberID string) (*GroupMember, error) {
	if memberID == "" {
		e.anomaly("membership_event_without_member", env, "group_id", groupID)
		return nil, nil
	}
	member, err := tx.GetGroupMember(groupID, memberID)
	if err != nil {
		return nil, fmt.Errorf("get member %s/%s: %w", groupID, memberID, err)
	}
	if member == nil {
		e.anomaly("membership_event_unknown_member", env, "group_id", groupID, "member_id", memberID)
		return nil, nil
	}
	return member, nil
}

// createProposal records a new active proposal, snapshotting the voting rule
// parameters in effect at creation so later config changes cannot alter the
// outcome. Values carried by the event take precedence over the group's
// current configuration.
func (e *Engine) createProposal(tx Tx, env *events.Envelope, group *Group, proposalID string, ts int64) error {
	fields := env.Fields
	proposal := &Proposal{
		GroupID:                group.GroupID,
		ProposalID:             proposalID,
		ProposalType:           fields.String("proposal_type"),
		Description:            fields.String("description"),
		Proposer:               env.Author,
		Status:                 ProposalStatusActive,
		VotingPeriod:           group.VotingPeriod,
		ParticipationQuorumBps: group.ParticipationQuorumBps,
		MajorityThresholdBps:   group.MajorityThresholdBps,
		CreatedAt:              ts,
		UpdatedAt:              ts,
		CustomData:             rawValue(fields, "custom_data"),
	}
	if period, ok := fields.Int64OK("voting_period"); ok {
		proposal.VotingPeriod = period
	}
	if quorum, ok := fields.Int64OK("participation_quorum_bps"); ok {
		proposal.ParticipationQuorumBps = quorum
	}
	if threshold, ok := fields.Int64OK("majority_threshold_bps"); ok {
		proposal.MajorityThresholdBps = threshold
	}
	if expires, ok := fields.Int64OK("expires_at"); ok {
		proposal.ExpiresAt = expires
	} else if proposal.VotingPeriod > 0 {
		proposal.ExpiresAt = ts + proposal.VotingPeriod
	}
	if err := tx.PutProposal(proposal); err != nil {
		return fmt.Errorf("put proposal %s/%s: %w", group.GroupID, proposalID, err)
	}
	return nil
}

// castVote updates a proposal's tallies. Votes touch no group counters, so
// the group row is left alone; a vote on an unknown or settled proposal is
// an anomaly that leaves aggregates untouched.
func (e *Engine) castVote(tx Tx, env *events.Envelope, groupID, proposalID string, ts int64) error {
	proposal, err := e.lookupProposal(tx, env, groupID, proposalID)
	if err != nil || proposal == nil {
		return err
	}
	if proposal.Status != ProposalStatusActive {
		e.anomaly("vote_on_settled_proposal", env,
			"group_id", groupID, "proposal_id", proposalID, "status", string(proposal.Status))
		return nil
	}
	vote := env.Fields.String("vote")
	if vote == "" {
		if approve, ok := env.Fields.BoolOK("approve"); ok {
			if approve {
				vote = "yes"
			} else {
				vote = "no"
			}
		}
	}
	switch vote {
	case "yes":
		proposal.YesVotes++
	case "no":
		proposal.NoVotes++
	default:
		e.anomaly("vote_with_unknown_choice", env,
			"group_id", groupID, "proposal_id", proposalID, "vote", vote)
		return nil
	}
	proposal.TotalVotes = proposal.YesVotes + proposal.NoVotes
	proposal.UpdatedAt = ts
	if err := tx.PutProposal(proposal); err != nil {
		return fmt.Errorf("put proposal %s/%s: %w", groupID, proposalID, err)
	}
	return nil
}

// updateProposalStatus settles a proposal. Terminal states are final: an
// update targeting a non-active proposal writes nothing beyond the log
// entry already persisted.
func (e *Engine) updateProposalStatus(tx Tx, env *events.Envelope, group *Group, groupID, proposalID string, ts int64) error {
	proposal, err := e.lookupProposal(tx, env, groupID, proposalID)
	if err != nil || proposal == nil {
		return err
	}
	status, ok := ParseProposalStatus(env.Fields.String("status"))
	if !ok {
		e.anomaly("proposal_status_unknown", env,
			"group_id", groupID, "proposal_id", proposalID, "status", env.Fields.String("status"))
		return nil
	}
	if proposal.Status != ProposalStatusActive {
		e.anomaly("status_update_on_settled_proposal", env,
			"group_id", groupID, "proposal_id", proposalID, "status", string(proposal.Status))
		return nil
	}
	proposal.Status = status
	if yes, ok := env.Fields.Int64OK("yes_votes"); ok {
		proposal.YesVotes = yes
	}
	if no, ok := env.Fields.Int64OK("no_votes"); ok {
		proposal.NoVotes = no
	}
	proposal.TotalVotes = proposal.YesVotes + proposal.NoVotes
	if status == ProposalStatusExecuted {
		proposal.ExecutedAt = ts
	}
	proposal.UpdatedAt = ts
	if err := tx.PutProposal(proposal); err != nil {
		return fmt.Errorf("put proposal %s/%s: %w", groupID, proposalID, err)
	}
	if status.Terminal() {
		clampDecrement(&group.ActiveProposalCount)
	}
	return nil
}

func (e *Engine) lookupProposal(tx Tx, env *events.Envelope, groupID, proposalID string) (*Proposal, error) {
	if proposalID == "" {
		e.anomaly("proposal_event_without_id", env, "group_id", groupID)
		return nil, nil
	}
	proposal, err := tx.GetProposal(groupID, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal %s/%s: %w", groupID, proposalID, err)
	}
	if proposal == nil {
		e.anomaly("proposal_event_unknown_proposal", env,
			"group_id", groupID, "proposal_id", proposalID)
		return nil, nil
	}
	return proposal, nil
}
