package auth

import "context"

type principalKey struct{}

type passphraseKey struct{}

type principal struct {
	id    string
	roles []string
}

// WithUser attaches the acting user to ctx. Services authorize against it.
func WithUser(ctx context.Context, userID string, roles []string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal{id: userID, roles: roles})
}

func UserIDFromContext(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p.id
}

func RolesFromContext(ctx context.Context) []string {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p.roles
}

func WithPassphrase(ctx context.Context, passphrase string) context.Context {
	return context.WithValue(ctx, passphraseKey{}, passphrase)
}

func PassphraseFromContext(ctx context.Context) string {
	p, _ := ctx.Value(passphraseKey{}).(string)
	return p
}
