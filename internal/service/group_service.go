package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/repository"
)

const (
	groupMessageLimit = 50
	maxMessageLength  = 4000
)

type NewGroup struct {
	Name        string
	Slug        string
	Description string
}

type GroupView struct {
	Group       *domain.Group
	Messages    []*domain.Message
	MemberCount int64
}

type GroupService struct {
	groups   repository.GroupRepository
	members  repository.GroupMemberRepository
	messages repository.MessageRepository
	access   *MembershipAuthorizer
}

func NewGroupService(groups repository.GroupRepository, members repository.GroupMemberRepository, messages repository.MessageRepository, access *MembershipAuthorizer) *GroupService {
	return &GroupService{
		groups:   groups,
		members:  members,
		messages: messages,
		access:   access,
	}
}

// Create makes a group and joins its creator to it.
func (s *GroupService) Create(ctx context.Context, creatorID int64, in NewGroup) (*domain.Group, error) {
	if creatorID == 0 {
		return nil, domain.ErrUnauthenticated
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "Please enter a group name.")
	}

	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if slug == "" {
		slug = slugify(name, "group")
	}
	if !slugPattern.MatchString(slug) {
		return nil, domain.NewValidationError("slug", "Group URLs must start with a letter and use only letters, numbers, dashes and underscores.")
	}
	if slices.Contains(domain.ReservedGroupSlugs, slug) {
		return nil, domain.NewValidationError("slug", "Sorry, that group URL is reserved.")
	}

	if _, err := s.groups.GetBySlug(ctx, slug); err == nil {
		return nil, domain.ErrSlugTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check group slug: %w", err)
	}

	group := &domain.Group{
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		Active:      true,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	if err := s.access.Join(ctx, group.ID, creatorID); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *GroupService) List(ctx context.Context) ([]*domain.Group, error) {
	return s.groups.List(ctx)
}

// View returns the group with its recent messages for a member.
func (s *GroupService) View(ctx context.Context, slug string, userID int64) (*GroupView, error) {
	group, err := s.access.Gate(ctx, slug, userID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByGroup(ctx, group.ID, groupMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	count, err := s.members.CountByGroup(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}

	return &GroupView{
		Group:       group,
		Messages:    messages,
		MemberCount: count,
	}, nil
}

func (s *GroupService) PostMessage(ctx context.Context, slug string, userID int64, body string) (*domain.Message, error) {
	group, err := s.access.Gate(ctx, slug, userID)
	if err != nil {
		return nil, err
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.NewValidationError("body", "Please enter a message.")
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, domain.NewValidationError("body", "Sorry, that message is too long.")
	}

	message := &domain.Message{
		GroupID: group.ID,
		UserID:  userID,
		Body:    body,
		Active:  true,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return message, nil
}
