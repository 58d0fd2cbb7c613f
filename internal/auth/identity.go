package auth

import "context"

// Identity is the caller attached to a request after its token verified.
type Identity struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by the gateway, or nil for an
// anonymous request.
func IdentityFrom(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok {
		return nil
	}
	return &id
}
