package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultPassword satisfies the password policy.
const DefaultPassword = "Neighbor123"

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	name     string
	email    string
	password string
}

// NewUserBuilder creates a new UserBuilder with default values
func NewUserBuilder() *UserBuilder {
	suffix := uuid.New().String()[:8]
	return &UserBuilder{
		name:     fmt.Sprintf("Test User %s", suffix),
		email:    fmt.Sprintf("user-%s@example.com", suffix),
		password: DefaultPassword,
	}
}

// WithName sets the display name
func (b *UserBuilder) WithName(name string) *UserBuilder {
	b.name = name
	return b
}

// WithEmail sets the email address
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

// WithPassword sets the password
func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

// Build inserts the user directly and returns it with the raw password.
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) (*domain.User, string) {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &domain.User{
		Name:         b.name,
		Email:        b.email,
		Slug:         "u" + uuid.New().String()[:8],
		PasswordHash: string(hashedPassword),
		Active:       true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user, b.password
}

// AuthResponse matches the API auth response
type AuthResponse struct {
	User struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Slug  string `json:"slug"`
	} `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Redirect  string    `json:"redirect"`
}

// BuildAndAuthenticate signs the user up via the API and returns the user
// and session token.
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, string) {
	t.Helper()

	reqBody := map[string]string{
		"name":     b.name,
		"email":    b.email,
		"password": b.password,
	}
	body, _ := json.Marshal(reqBody)

	resp, err := http.Post(ts.APIURL("/auth/signup"), "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to sign up user: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	user := &domain.User{
		ID:    authResp.User.ID,
		Name:  authResp.User.Name,
		Email: authResp.User.Email,
		Slug:  authResp.User.Slug,
	}

	return user, authResp.Token
}

// GroupBuilder creates test groups with a builder pattern
type GroupBuilder struct {
	name    string
	slug    string
	members []*domain.User
}

// NewGroupBuilder creates a new GroupBuilder with default values
func NewGroupBuilder() *GroupBuilder {
	suffix := uuid.New().String()[:8]
	return &GroupBuilder{
		name: "Group " + suffix,
		slug: "g" + suffix,
	}
}

func (b *GroupBuilder) WithName(name string) *GroupBuilder {
	b.name = name
	return b
}

func (b *GroupBuilder) WithSlug(slug string) *GroupBuilder {
	b.slug = slug
	return b
}

// WithMember adds user to the group when it is built.
func (b *GroupBuilder) WithMember(user *domain.User) *GroupBuilder {
	b.members = append(b.members, user)
	return b
}

func (b *GroupBuilder) Build(t *testing.T, db *gorm.DB) *domain.Group {
	t.Helper()

	group := &domain.Group{
		Name:   b.name,
		Slug:   b.slug,
		Active: true,
	}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	for _, member := range b.members {
		if err := db.Create(&domain.GroupMember{GroupID: group.ID, UserID: member.ID}).Error; err != nil {
			t.Fatalf("failed to add group member: %v", err)
		}
	}

	return group
}

// AuthEventBuilder inserts audit rows with a chosen timestamp, for
// exercising day boundaries.
type AuthEventBuilder struct {
	ip        string
	event     string
	createdAt time.Time
	metadata  map[string]interface{}
}

func NewAuthEventBuilder(ip, event string) *AuthEventBuilder {
	return &AuthEventBuilder{
		ip:        ip,
		event:     event,
		createdAt: time.Now().UTC(),
	}
}

func (b *AuthEventBuilder) At(t time.Time) *AuthEventBuilder {
	b.createdAt = t.UTC()
	return b
}

func (b *AuthEventBuilder) WithMetadata(md map[string]interface{}) *AuthEventBuilder {
	b.metadata = md
	return b
}

func (b *AuthEventBuilder) Build(t *testing.T, db *gorm.DB) *domain.AuthEvent {
	t.Helper()

	event := &domain.AuthEvent{
		IPAddress:   b.ip,
		Event:       b.event,
		Description: "fixture",
		CreatedAt:   b.createdAt,
	}
	if len(b.metadata) > 0 {
		event.Metadata = datatypes.JSONMap(b.metadata)
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to create auth event: %v", err)
	}
	return event
}

// SeedAuthEvents inserts count identical rows.
func SeedAuthEvents(t *testing.T, db *gorm.DB, ip, event string, at time.Time, count int) {
	t.Helper()

	for i := 0; i < count; i++ {
		NewAuthEventBuilder(ip, event).At(at).Build(t, db)
	}
}

// CreateAuthenticatedRequest creates an HTTP request with auth token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}
