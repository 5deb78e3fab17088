package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
)

const actorKey contextKey = "actor"

var errUnauthenticated = errors.New("unauthenticated")

// Claims is the bearer token payload. Subject holds the actor id.
type Claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	ClinicID string `json:"clinic_id,omitempty"`
}

// Authenticator turns an HS256 bearer token into an actor.Actor. With
// allowHeaders set, requests without a token may name their actor through
// X-Actor-ID, X-Actor-Role and X-Clinic-ID instead.
type Authenticator struct {
	secret       []byte
	allowHeaders bool
}

func NewAuthenticator(secret string, allowHeaders bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), allowHeaders: allowHeaders}
}

// IssueToken signs a token for a. Used by local tooling and tests.
func IssueToken(secret string, a actor.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(a.Role),
	}
	if a.ClinicID != nil {
		claims.ClinicID = a.ClinicID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (au *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := au.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, a)))
	})
}

func (au *Authenticator) authenticate(r *http.Request) (actor.Actor, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if au.allowHeaders && r.Header.Get("X-Actor-ID") != "" {
			return buildActor(r.Header.Get("X-Actor-ID"), r.Header.Get("X-Actor-Role"), r.Header.Get("X-Clinic-ID"))
		}
		return actor.Actor{}, fmt.Errorf("%w: missing authorization header", errUnauthenticated)
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return actor.Actor{}, fmt.Errorf("%w: invalid authorization format", errUnauthenticated)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
		return au.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return actor.Actor{}, fmt.Errorf("%w: invalid token", errUnauthenticated)
	}
	return buildActor(claims.Subject, claims.Role, claims.ClinicID)
}

func buildActor(sub, role, clinic string) (actor.Actor, error) {
	id, err := uuid.Parse(sub)
	if err != nil {
		return actor.Actor{}, fmt.Errorf("%w: subject must be a UUID", errUnauthenticated)
	}
	rl, err := actor.ParseRole(strings.ToLower(role))
	if err != nil {
		return actor.Actor{}, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	if rl != actor.RoleStaff {
		return actor.Actor{ID: id, Role: rl}, nil
	}
	clinicID, err := uuid.Parse(clinic)
	if err != nil {
		return actor.Actor{}, fmt.Errorf("%w: staff tokens need a clinic_id", errUnauthenticated)
	}
	return actor.Staff(id, clinicID), nil
}

// ActorFrom returns the authenticated caller. Only valid behind Middleware.
func ActorFrom(ctx context.Context) actor.Actor {
	a, _ := ctx.Value(actorKey).(actor.Actor)
	return a
}
