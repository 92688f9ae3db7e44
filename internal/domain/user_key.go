package domain

import "strconv"

type UserKeyKind int

const (
	ByID UserKeyKind = iota + 1
	ByEmail
	BySlug
)

func (k UserKeyKind) String() string {
	switch k {
	case ByID:
		return "id"
	case ByEmail:
		return "email"
	case BySlug:
		return "slug"
	default:
		return "unknown"
	}
}

// UserKey is a pre-classified user lookup key.
type UserKey struct {
	Kind  UserKeyKind
	ID    int64
	Value string
}

func KeyByID(id int64) UserKey {
	return UserKey{Kind: ByID, ID: id}
}

func KeyByEmail(email string) UserKey {
	return UserKey{Kind: ByEmail, Value: email}
}

func KeyBySlug(slug string) UserKey {
	return UserKey{Kind: BySlug, Value: slug}
}

func (k UserKey) String() string {
	if k.Kind == ByID {
		return k.Kind.String() + ":" + strconv.FormatInt(k.ID, 10)
	}
	return k.Kind.String() + ":" + k.Value
}
