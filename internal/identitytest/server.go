// Package identitytest runs an in-process identity service for tests. It
// speaks the same REST contract as the real service and issues HS256 tokens.
package identitytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/usertoken"
	"storefront/internal/util"
	"storefront/pkg/domain"
)

// DefaultCode is the verification code every challenge accepts.
const DefaultCode = "123456"

var signingKey = []byte("identitytest-signing-key")

type account struct {
	user         domain.User
	passwordHash []byte
}

type pending struct {
	email   string
	purpose string
}

type failure struct {
	status  int
	message string
	raw     string
}

// Server is a fake identity service.
type Server struct {
	*httptest.Server

	// Code accepted by verify endpoints.
	Code string
	// ProfileOnRegister makes /register include the user profile.
	ProfileOnRegister bool
	// TokenTTL sets exp on issued tokens.
	TokenTTL time.Duration

	mu        sync.Mutex
	accounts  map[string]*account // email -> account
	pendings  map[string]pending  // pending token -> challenge
	active    map[string]string   // verified token -> email
	calls     map[string]int
	failNext  map[string]failure
	requestID map[string]string // path -> last X-Request-Id
	nextID    int
	nextJTI   int
}

// New starts a fake identity service that is closed with the test.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Code:      DefaultCode,
		TokenTTL:  time.Hour,
		accounts:  make(map[string]*account),
		pendings:  make(map[string]pending),
		active:    make(map[string]string),
		calls:     make(map[string]int),
		failNext:  make(map[string]failure),
		requestID: make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /verify-register", s.handleVerify("register"))
	mux.HandleFunc("POST /verify-login", s.handleVerify("login"))
	mux.HandleFunc("GET /users/{userId}", s.handleUser)
	mux.HandleFunc("POST /logout", s.handleLogout)

	s.Server = httptest.NewServer(util.WithRequestID(util.WithRequestLog("identitytest", s.intercept(mux))))
	t.Cleanup(s.Close)
	return s
}

// AddUser seeds a verified account and returns it.
func (s *Server) AddUser(fullName, email, password string, role domain.UserRole) domain.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	user := domain.User{
		ID:       fmt.Sprintf("u%d", s.nextID),
		FullName: fullName,
		Email:    strings.ToLower(email),
		Role:     role,
	}
	s.accounts[user.Email] = &account{user: user, passwordHash: hash}
	return user
}

// IssueToken signs a verified token for an existing account, as if a
// previous session had completed verification.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		panic("identitytest: unknown account " + email)
	}
	token := s.signLocked(acc.user)
	s.active[token] = acc.user.Email
	return token
}

// Revoke invalidates a verified token.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	delete(s.active, token)
	s.mu.Unlock()
}

// FailNext makes the next request to path fail with status and message.
// An empty message sends a body that is not JSON.
func (s *Server) FailNext(path string, status int, message string) {
	s.mu.Lock()
	s.failNext[path] = failure{status: status, message: message}
	s.mu.Unlock()
}

// RespondRawNext makes the next request to path answer 200 with body.
func (s *Server) RespondRawNext(path, body string) {
	s.mu.Lock()
	s.failNext[path] = failure{status: http.StatusOK, raw: body}
	s.mu.Unlock()
}

// Calls reports how many requests hit path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// TotalCalls reports requests across all paths.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// LastRequestID returns the X-Request-Id seen on the last call to path.
func (s *Server) LastRequestID(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestID[path]
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if strings.HasPrefix(key, "/users/") {
			key = "/users"
		}
		s.mu.Lock()
		s.calls[key]++
		s.requestID[key] = util.RequestIDFromRequest(r)
		f, fail := s.failNext[key]
		delete(s.failNext, key)
		s.mu.Unlock()
		if fail {
			switch {
			case f.raw != "":
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(f.status)
				_, _ = w.Write([]byte(f.raw))
			case f.message == "":
				w.WriteHeader(f.status)
				_, _ = w.Write([]byte("<html>bad gateway</html>"))
			default:
				writeError(w, f.status, f.message)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName        string `json:"fullName"`
		Email           string `json:"email"`
		PhoneNumber     string `json:"phoneNumber"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		Role            string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	s.mu.Lock()
	_, exists := s.accounts[email]
	s.mu.Unlock()
	if exists {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}
	role := domain.UserRole(req.Role)
	if role == "" {
		role = domain.RoleUser
	}
	user := s.AddUser(req.FullName, email, req.Password, role)

	s.mu.Lock()
	token := s.signLocked(user)
	s.pendings[token] = pending{email: user.Email, purpose: "register"}
	withProfile := s.ProfileOnRegister
	s.mu.Unlock()

	resp := map[string]any{"message": "Verification code sent", "token": token}
	if withProfile {
		resp["user"] = user
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	s.mu.Lock()
	acc, ok := s.accounts[email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.mu.Lock()
	token := s.signLocked(acc.user)
	s.pendings[token] = pending{email: email, purpose: "login"}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Verification code sent", "token": token})
}

func (s *Server) handleVerify(purpose string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authorization token missing")
			return
		}
		var req struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.pendings[token]
		if !ok || p.purpose != purpose {
			writeError(w, http.StatusUnauthorized, "Invalid or expired verification session")
			return
		}
		if req.Code != s.Code {
			writeError(w, http.StatusBadRequest, "Incorrect verification code")
			return
		}
		delete(s.pendings, token)
		acc := s.accounts[p.email]
		verified := s.signLocked(acc.user)
		s.active[verified] = p.email
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Verified",
			"token":   verified,
			"user":    acc.user,
			"wallet":  domain.Wallet{ID: "w-" + acc.user.ID, Balance: 0, Currency: "GBP"},
		})
	}
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authorization token missing")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.active[token]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	acc := s.accounts[email]
	if acc.user.ID != r.PathValue("userId") {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := bearerToken(r); ok {
		s.Revoke(token)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) signLocked(user domain.User) string {
	now := time.Now()
	s.nextJTI++
	claims := usertoken.Claims{
		UserIDClaim: user.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		Role:        string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("jti-%d", s.nextJTI),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return signed
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg, "error": http.StatusText(status)})
}
