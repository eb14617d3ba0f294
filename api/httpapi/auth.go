package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"agriscore/core"
)

// UserHeader carries the caller id when no JWT secret is configured, typically
// set by a trusted gateway in front of the service.
const UserHeader = "X-User-ID"

type callerKey struct{}

var errNoSubject = errors.New("token has no subject")

// identifier resolves the calling user for each request.
type identifier struct {
	secret []byte
	issuer string
}

func newIdentifier(opts Options) *identifier {
	id := &identifier{issuer: opts.JWTIssuer}
	if opts.JWTSecret != "" {
		id.secret = []byte(opts.JWTSecret)
	}
	return id
}

// middleware stores the caller in the request context. A present but invalid
// token is rejected; an absent one leaves the request anonymous.
func (id *identifier) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user core.UserID
		if id.secret != nil {
			if tok := bearerToken(r); tok != "" {
				sub, err := id.subject(tok)
				if err != nil {
					writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
					return
				}
				user = core.UserID(sub)
			}
		} else {
			user = core.UserID(strings.TrimSpace(r.Header.Get(UserHeader)))
		}
		if user != "" {
			r = r.WithContext(context.WithValue(r.Context(), callerKey{}, user))
		}
		next.ServeHTTP(w, r)
	})
}

func (id *identifier) subject(token string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if id.issuer != "" {
		opts = append(opts, jwt.WithIssuer(id.issuer))
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return id.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errNoSubject
	}
	return claims.Subject, nil
}

// Caller returns the authenticated user of the request, if any.
func Caller(ctx context.Context) (core.UserID, bool) {
	u, ok := ctx.Value(callerKey{}).(core.UserID)
	return u, ok && u != ""
}

func callerFromRequest(r *http.Request) core.UserID {
	u, _ := Caller(r.Context())
	return u
}

func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := Caller(r.Context()); !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "caller identity required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IssueToken signs an HS256 token for user. Used by tooling and tests.
func IssueToken(secret, issuer string, user core.UserID) (string, error) {
	claims := jwt.RegisteredClaims{Subject: string(user), Issuer: issuer}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
