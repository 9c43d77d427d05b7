package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/underla/helpdesk/internal/config"
)

// StaffUser identifies an authenticated staff member. The gateway never
// manages credentials itself; it only asks a StaffVerifier who a token
// belongs to.
type StaffUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// StaffVerifier resolves a bearer token to a staff user. Returns (nil, nil)
// for a token that is simply not valid; errors are reserved for verifier
// failures.
type StaffVerifier interface {
	Verify(ctx context.Context, token string) (*StaffUser, error)
}

// NewStaffVerifier builds a verifier from config: a static token map or a
// remote auth service.
func NewStaffVerifier(cfg config.AuthConfig) (StaffVerifier, error) {
	switch cfg.Mode {
	case "", "static":
		return StaticVerifier{Tokens: cfg.Tokens}, nil
	case "service":
		return &ServiceVerifier{
			URL:    cfg.ServiceURL,
			Client: &http.Client{Timeout: 10 * time.Second},
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// StaticVerifier checks tokens against a configured token → user id map.
type StaticVerifier struct {
	Tokens map[string]string
}

func (v StaticVerifier) Verify(_ context.Context, token string) (*StaffUser, error) {
	for candidate, userID := range v.Tokens {
		if safeEqual(token, candidate) {
			return &StaffUser{ID: userID}, nil
		}
	}
	return nil, nil
}

// ServiceVerifier asks an external auth service who a token belongs to. The
// service contract: GET URL with the bearer token, 200 with a JSON user on
// success, 401 for an invalid token.
type ServiceVerifier struct {
	URL    string
	Client *http.Client
}

func (v *ServiceVerifier) Verify(ctx context.Context, token string) (*StaffUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling auth service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var user StaffUser
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("decoding auth response: %w", err)
		}
		if user.ID == "" {
			return nil, errors.New("auth service returned a user without an id")
		}
		return &user, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, nil
	default:
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}
}

type staffUserKey struct{}

// staffFromContext returns the staff user stored by requireStaff.
func staffFromContext(ctx context.Context) *StaffUser {
	user, _ := ctx.Value(staffUserKey{}).(*StaffUser)
	return user
}

// requireStaff guards dashboard routes: a valid bearer token puts the staff
// user on the request context, anything else is a 401.
func (s *Server) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		user, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.log.Error().Err(err).Msg("staff verification failed")
			writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), staffUserKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// safeEqual performs a constant-time string comparison to prevent timing attacks.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
