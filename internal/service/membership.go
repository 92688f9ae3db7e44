package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/repository"
)

// MembershipAuthorizer owns group membership edges and the access gate in
// front of every group-scoped read and write.
type MembershipAuthorizer struct {
	groups  repository.GroupRepository
	members repository.GroupMemberRepository
}

func NewMembershipAuthorizer(groups repository.GroupRepository, members repository.GroupMemberRepository) *MembershipAuthorizer {
	return &MembershipAuthorizer{
		groups:  groups,
		members: members,
	}
}

func (a *MembershipAuthorizer) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	ok, err := a.members.Exists(ctx, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

func (a *MembershipAuthorizer) Join(ctx context.Context, groupID, userID int64) error {
	if err := a.members.Add(ctx, groupID, userID); err != nil {
		return fmt.Errorf("join group %d: %w", groupID, err)
	}
	return nil
}

func (a *MembershipAuthorizer) Leave(ctx context.Context, groupID, userID int64) error {
	if err := a.members.Remove(ctx, groupID, userID); err != nil {
		return fmt.Errorf("leave group %d: %w", groupID, err)
	}
	return nil
}

// Gate resolves slug and checks that userID may use the group. A userID of
// zero is an anonymous caller. Outcomes, in order of precedence: unknown
// slug is ErrNotFound, anonymous is ErrUnauthenticated, non-member is
// ErrForbidden.
func (a *MembershipAuthorizer) Gate(ctx context.Context, slug string, userID int64) (*domain.Group, error) {
	group, err := a.lookup(ctx, slug)
	if err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, domain.ErrUnauthenticated
	}

	member, err := a.IsMember(ctx, group.ID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, domain.ErrForbidden
	}
	return group, nil
}

// JoinBySlug adds userID to the group named by slug. Joining twice is a
// no-op.
func (a *MembershipAuthorizer) JoinBySlug(ctx context.Context, slug string, userID int64) (*domain.Group, error) {
	group, err := a.lookup(ctx, slug)
	if err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, domain.ErrUnauthenticated
	}
	if err := a.Join(ctx, group.ID, userID); err != nil {
		return nil, err
	}
	return group, nil
}

// LeaveBySlug removes userID from the group named by slug. Leaving a group
// one never joined is a no-op.
func (a *MembershipAuthorizer) LeaveBySlug(ctx context.Context, slug string, userID int64) (*domain.Group, error) {
	group, err := a.lookup(ctx, slug)
	if err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, domain.ErrUnauthenticated
	}
	if err := a.Leave(ctx, group.ID, userID); err != nil {
		return nil, err
	}
	return group, nil
}

func (a *MembershipAuthorizer) lookup(ctx context.Context, slug string) (*domain.Group, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !slugPattern.MatchString(slug) {
		return nil, domain.ErrNotFound
	}
	return a.groups.GetBySlug(ctx, slug)
}
