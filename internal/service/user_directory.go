package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/observability"
	"github.com/dom/neighbor-group/internal/repository"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	userCacheSize      = 1024
	fallbackSlugPrefix = "user"
	// createAttempts bounds retries when a concurrent signup takes the slug.
	createAttempts = 3
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	slugPattern  = regexp.MustCompile(`(?i)^[a-z][a-z0-9_-]*$`)
)

type NewUser struct {
	Name     string
	Email    string
	Password string
}

// UserDirectory resolves and creates accounts. Reads by id go through an
// in-process LRU that every write through the directory invalidates.
type UserDirectory struct {
	users   repository.UserRepository
	creds   *CredentialStore
	cache   *lru.Cache[int64, domain.User]
	metrics *observability.Metrics
}

func NewUserDirectory(users repository.UserRepository, creds *CredentialStore, metrics *observability.Metrics) *UserDirectory {
	cache, err := lru.New[int64, domain.User](userCacheSize)
	if err != nil {
		panic(fmt.Sprintf("user cache: %v", err))
	}
	return &UserDirectory{
		users:   users,
		creds:   creds,
		cache:   cache,
		metrics: metrics,
	}
}

func (d *UserDirectory) Create(ctx context.Context, in NewUser) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)

	switch {
	case name == "":
		return nil, domain.NewValidationError("name", "Please enter your name.")
	case email == "":
		return nil, domain.NewValidationError("email", "Please enter an email address.")
	case in.Password == "":
		return nil, domain.NewValidationError("password", "Please enter a password.")
	case !emailPattern.MatchString(email):
		return nil, domain.NewValidationError("email", "Please enter a valid email address.")
	}

	taken, err := d.users.ActiveEmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return nil, domain.ErrDuplicateEmail
	}

	if err := d.creds.ValidateStrength(in.Password); err != nil {
		return nil, err
	}
	hash, err := d.creds.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		slug, err := d.defaultSlug(ctx, email)
		if err != nil {
			return nil, err
		}

		user := &domain.User{
			Name:         name,
			Email:        email,
			Slug:         slug,
			PasswordHash: hash,
			Active:       true,
		}
		err = d.users.Create(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrSlugTaken) || attempt+1 >= createAttempts {
			return nil, err
		}
	}
}

// defaultSlug derives a slug from the email local part, appending 1, 2, ...
// until no active user holds it.
func (d *UserDirectory) defaultSlug(ctx context.Context, email string) (string, error) {
	prefix := slugPrefix(email)
	slug := prefix
	for n := 1; ; n++ {
		taken, err := d.users.ActiveSlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return slug, nil
		}
		slug = prefix + strconv.Itoa(n)
	}
}

func (d *UserDirectory) LoadByID(ctx context.Context, id int64) (*domain.User, error) {
	if cached, ok := d.cache.Get(id); ok {
		d.metrics.UserCache(true)
		user := cached
		return &user, nil
	}
	d.metrics.UserCache(false)

	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.Add(id, *user)
	return user, nil
}

// LoadByKey looks a user up by a pre-classified key. A key whose value does
// not have the shape of its kind is NotFound.
func (d *UserDirectory) LoadByKey(ctx context.Context, key domain.UserKey) (*domain.User, error) {
	switch key.Kind {
	case domain.ByID:
		return d.LoadByID(ctx, key.ID)
	case domain.ByEmail:
		email := normalizeEmail(key.Value)
		if !emailPattern.MatchString(email) {
			return nil, domain.ErrNotFound
		}
		return d.users.GetByEmail(ctx, email)
	case domain.BySlug:
		if !slugPattern.MatchString(key.Value) {
			return nil, domain.ErrNotFound
		}
		return d.users.GetBySlug(ctx, strings.ToLower(key.Value))
	default:
		return nil, domain.ErrNotFound
	}
}

// ResolveLoginIdentifier is the lookup used by login and password reset.
func (d *UserDirectory) ResolveLoginIdentifier(ctx context.Context, value string) (*domain.User, error) {
	key, ok := ClassifyIdentifier(value)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d.LoadByKey(ctx, key)
}

// Save writes the mutable fields of user and refreshes it from storage.
func (d *UserDirectory) Save(ctx context.Context, user *domain.User) error {
	d.cache.Remove(user.ID)
	if err := d.users.Update(ctx, user); err != nil {
		return fmt.Errorf("save user %d: %w", user.ID, err)
	}

	fresh, err := d.users.GetByID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("reload user %d: %w", user.ID, err)
	}
	*user = *fresh
	return nil
}

// SetPassword validates, hashes and stores a new password. Nothing is
// written when the password fails the policy.
func (d *UserDirectory) SetPassword(ctx context.Context, user *domain.User, secret string) error {
	if err := d.creds.ValidateStrength(secret); err != nil {
		return err
	}
	hash, err := d.creds.Hash(secret)
	if err != nil {
		return err
	}

	updated := *user
	updated.PasswordHash = hash
	if err := d.Save(ctx, &updated); err != nil {
		return err
	}
	*user = updated
	return nil
}

func (d *UserDirectory) SoftDelete(ctx context.Context, id int64) error {
	d.cache.Remove(id)
	if err := d.users.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("deactivate user %d: %w", id, err)
	}
	return nil
}

// ClassifyIdentifier decides whether value names a user by email or slug.
func ClassifyIdentifier(value string) (domain.UserKey, bool) {
	value = strings.TrimSpace(value)
	switch {
	case emailPattern.MatchString(value):
		return domain.KeyByEmail(normalizeEmail(value)), true
	case slugPattern.MatchString(value):
		return domain.KeyBySlug(strings.ToLower(value)), true
	default:
		return domain.UserKey{}, false
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// slugPrefix maps the email local part onto the slug alphabet.
func slugPrefix(email string) string {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}
	return slugify(local, fallbackSlugPrefix)
}

func slugify(s, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == '.', r == '+', r == ' ':
			b.WriteRune('-')
		}
	}

	slug := strings.Trim(b.String(), "-_")
	if slug == "" {
		return fallback
	}
	if slug[0] < 'a' || slug[0] > 'z' {
		return fallback + slug
	}
	return slug
}
