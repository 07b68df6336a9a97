package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin  = "ADMIN"
	RoleReader = "READER"
)

type Claims struct {
	Profile struct {
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"profile"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type ctxKey int

const (
	ctxKeyName ctxKey = iota
	ctxKeyEmail
	ctxKeyRole
)

func SetAuthContext(ctx context.Context, name, email, role string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyName, name)
	ctx = context.WithValue(ctx, ctxKeyEmail, email)
	return context.WithValue(ctx, ctxKeyRole, role)
}

func Name(ctx context.Context) string {
	name, _ := ctx.Value(ctxKeyName).(string)
	return name
}

func Email(ctx context.Context) string {
	email, _ := ctx.Value(ctxKeyEmail).(string)
	return email
}

func Role(ctx context.Context) string {
	role, _ := ctx.Value(ctxKeyRole).(string)
	return role
}

// IsAdmin reports whether the authenticated principal carries the admin role.
// Administrative access is decided by this capability lookup only.
func IsAdmin(ctx context.Context) bool {
	return Role(ctx) == RoleAdmin
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
