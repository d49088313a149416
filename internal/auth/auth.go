package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	fbauth "firebase.google.com/go/auth"
	"github.com/dgrijalva/jwt-go"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/utils/errors"
	httputils "github.com/resq-app/resq-backend/internal/utils/http"
)

// Auther is an auth abstraction layer interface
type Auther interface {
	AuthenticateToken(ctx context.Context, token string) (string, error)
}

// Client to interact with Firebase auth API
type Client struct {
	inner *fbauth.Client
}

// NewClient wraps the Firebase auth client.
func NewClient(inner *fbauth.Client) *Client {
	return &Client{inner: inner}
}

// CustomToken creates a signed custom authentication token with the specified user ID. The resulting JWT can be used in a Firebase client SDK to trigger an authentication flow.
func (c *Client) CustomToken(ctx context.Context, uid string) (string, error) {
	return c.inner.CustomToken(ctx, uid)
}

//AuthenticateToken Verifies provided Firebase ID token and if valid, extracts user id from it.
func (c *Client) AuthenticateToken(ctx context.Context, idToken string) (string, error) {
	token, err := c.inner.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", err
	}

	return token.UID, nil
}

// JWT verifies HS256 tokens signed with a shared secret. The subject is the user id.
type JWT struct {
	secret []byte
	issuer string
}

// NewJWT creates the HS256 verifier.
func NewJWT(secret, issuer string) (*JWT, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret must not be empty")
	}
	return &JWT{secret: []byte(secret), issuer: issuer}, nil
}

// Issue signs a token for userID valid for ttl.
func (j *JWT) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:   userID,
		Issuer:    j.issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

//AuthenticateToken Verifies provided token and if valid, extracts user id from it.
func (j *JWT) AuthenticateToken(_ context.Context, token string) (string, error) {
	var claims jwt.StandardClaims

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return "", err
	}

	if j.issuer != "" && !claims.VerifyIssuer(j.issuer, true) {
		return "", fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return claims.Subject, nil
}

// MockClient mocks auth client functionaly for unit tests: every non-empty token is the user id itself.
type MockClient struct{}

//AuthenticateToken Returns the token as user id.
func (c MockClient) AuthenticateToken(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

type userIDKey struct{}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// UserOrReportError returns the authenticated user id, answering 401 when the request has none.
func UserOrReportError(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		httputils.SendErrorResponse(w, r, &errors.UnauthenticatedError{Msg: "Unauthenticated"})
	}
	return userID, ok
}

// Middleware authenticates the Bearer token of every request and stores the user id in the request context.
func Middleware(auther Auther) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx).Named("auth.Middleware")

			token := bearerToken(r)
			if token == "" {
				httputils.SendErrorResponse(w, r, &errors.UnauthenticatedError{Msg: "Missing bearer token"})
				return
			}

			userID, err := auther.AuthenticateToken(ctx, token)
			if err != nil {
				logger.Debugf("Rejected token: %v", err)
				httputils.SendErrorResponse(w, r, &errors.UnauthenticatedError{Msg: "Invalid token"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(ctx, userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
