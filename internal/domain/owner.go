package domain

import "errors"

// OwnerKind discriminates cart owners.
type OwnerKind string

const (
	OwnerUser      OwnerKind = "user"
	OwnerAnonymous OwnerKind = "anonymous"
)

// CartOwner is the identity a cart is keyed on: an authenticated user id or an
// anonymous session token.
type CartOwner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

func UserOwner(id string) CartOwner {
	return CartOwner{Kind: OwnerUser, ID: id}
}

func AnonymousOwner(token string) CartOwner {
	return CartOwner{Kind: OwnerAnonymous, ID: token}
}

// Validate rejects zero or malformed owners.
func (o CartOwner) Validate() error {
	if o.Kind != OwnerUser && o.Kind != OwnerAnonymous {
		return errors.New("unknown owner kind")
	}
	if o.ID == "" {
		return errors.New("owner id required")
	}
	return nil
}

// Key is the stable string form used for lock keys and cache keys.
func (o CartOwner) Key() string {
	return string(o.Kind) + ":" + o.ID
}
