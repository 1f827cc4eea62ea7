package fakebank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/middleware"
)

// IdempotencyHeader is the request header the bank deduplicates on.
const IdempotencyHeader = "Idempotency-Key"

// Options configures a Bank. Zero values pick the defaults noted per field.
type Options struct {
	// AccessTTL defaults to 30 minutes.
	AccessTTL time.Duration
	// RefreshTTL defaults to 24 hours.
	RefreshTTL time.Duration
	// AuthFailureStatus is returned for missing or invalid access tokens
	// (401 when zero).
	AuthFailureStatus int
	// RotateRefresh issues a new refresh token on every refresh.
	RotateRefresh bool
	// RefreshDelay holds every refresh response for the given duration.
	RefreshDelay time.Duration
	Secret       []byte
	Now          func() time.Time
}

// ErrorResponse mirrors the backend's ErrorResponseDto.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type user struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"` // PHC hash once stored
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

// Account is an account held by the bank.
type Account struct {
	ID            int64  `json:"id"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	Balance       int64  `json:"balance"`
	BankID        int64  `json:"bankId"`

	owner string
	pin   string
}

// BankInfo is a bank listed by GET /banks.
type BankInfo struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	BankName string `json:"bankName"`
}

type scheduled struct {
	ID                int64  `json:"id"`
	FromAccountNumber string `json:"fromAccountNumber"`
	ToAccountNumber   string `json:"toAccountNumber"`
	Amount            int64  `json:"amount"`
	ScheduledAt       string `json:"scheduledAt"`
	Status            string `json:"status"`
	owner             string
}

type stored struct {
	status int
	body   []byte
}

type fault struct {
	status int
	lose   bool
	times  int
}

// Bank is the fake API. Create it with New and serve Handler.
type Bank struct {
	opts   Options
	tokens *jwt.Manager
	router chi.Router

	mu          sync.Mutex
	users       map[string]*user
	validAccess map[string]struct{}
	refresh     map[string]string // email -> current refresh token
	banks       []BankInfo
	accounts    map[string]*Account // account number -> account
	schedules   []*scheduled
	replies     map[string]stored // idempotency key -> first response
	faults      map[string]*fault
	nextID      int64

	refreshCalls  atomic.Int64
	logoutCalls   atomic.Int64
	mutations     atomic.Int64
	replayedCalls atomic.Int64
}

// New returns a Bank with two banks ("KB" id 1, "SH" id 2) and no users.
func New(opts Options) (*Bank, error) {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 30 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if opts.AuthFailureStatus == 0 {
		opts.AuthFailureStatus = http.StatusUnauthorized
	}
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("fakebank-secret-0123456789abcdef")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:  opts.AccessTTL,
		RefreshTTL: opts.RefreshTTL,
		Secret:     opts.Secret,
		Issuer:     "fakebank",
		Now:        opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("fakebank: %w", err)
	}

	b := &Bank{
		opts:        opts,
		tokens:      tokens,
		users:       map[string]*user{},
		validAccess: map[string]struct{}{},
		refresh:     map[string]string{},
		banks: []BankInfo{
			{ID: 1, Code: "KB", BankName: "Kookmin"},
			{ID: 2, Code: "SH", BankName: "Shinhan"},
		},
		accounts: map[string]*Account{},
		replies:  map[string]stored{},
		faults:   map[string]*fault{},
		nextID:   100,
	}
	b.router = b.routes()
	return b, nil
}

// Handler serves the API rooted at "/" (mount it under "/api" if needed).
func (b *Bank) Handler() http.Handler { return b.router }

func (b *Bank) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(b.injectFaults)

	r.Post("/auth/login", b.login)
	r.Post("/auth/signup", b.signup)
	r.Get("/auth/check-email", b.checkEmail)
	r.Post("/auth/refresh", b.refreshToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(b.verifyAccess, b.opts.AuthFailureStatus))
		r.Post("/auth/logout", b.logout)
		r.Get("/banks", b.listBanks)
		r.Get("/accounts/my", b.listAccounts)
		r.With(b.idempotent).Post("/accounts", b.createAccount)
		r.With(b.idempotent).Post("/accounts/transfer", b.transfer)
		r.With(b.idempotent).Post("/scheduled-transfers", b.createScheduled)
		r.Get("/scheduled-transfers/my", b.listScheduled)
	})
	return r
}

/* ==== TEST KNOBS ==== */

// AddUser registers a user directly.
func (b *Bank) AddUser(email, password, role string) {
	if role == "" {
		role = "USER"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email] = &user{Email: email, Password: hashSecret(password), Role: role}
}

// AddAccount opens an account for email and returns it.
func (b *Bank) AddAccount(email string, bankID, balance int64, pin string) Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.openAccountLocked(email, bankID, balance, pin)
}

// Balance returns the balance of accountNumber.
func (b *Bank) Balance(accountNumber string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accounts[accountNumber]
	if !ok {
		return 0, false
	}
	return a.Balance, true
}

// ExpireAccessTokens invalidates every access token issued so far.
func (b *Bank) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validAccess = map[string]struct{}{}
}

// RevokeRefreshTokens invalidates every stored refresh token.
func (b *Bank) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = map[string]string{}
}

// FailNext makes the next times requests to path answer status without being
// applied.
func (b *Bank) FailNext(path string, status, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[path] = &fault{status: status, times: times}
}

// LoseNextResponse applies the next request to path and then drops the
// connection, so the caller sees a transport error for a request that took
// effect.
func (b *Bank) LoseNextResponse(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[path] = &fault{lose: true, times: 1}
}

// RefreshCalls counts POST /auth/refresh requests.
func (b *Bank) RefreshCalls() int64 { return b.refreshCalls.Load() }

// LogoutCalls counts POST /auth/logout requests that passed the guard.
func (b *Bank) LogoutCalls() int64 { return b.logoutCalls.Load() }

// Mutations counts idempotent requests that were applied.
func (b *Bank) Mutations() int64 { return b.mutations.Load() }

// Replays counts idempotent requests answered from a stored response.
func (b *Bank) Replays() int64 { return b.replayedCalls.Load() }

/* ==== MIDDLEWARE ==== */

func (b *Bank) takeFault(path string) *fault {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.faults[path]
	if !ok || f.times <= 0 {
		return nil
	}
	f.times--
	if f.times == 0 {
		delete(b.faults, path)
	}
	out := *f
	return &out
}

func (b *Bank) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := b.takeFault(r.URL.Path)
		switch {
		case f == nil:
			next.ServeHTTP(w, r)
		case f.lose:
			next.ServeHTTP(discardWriter{header: http.Header{}}, r)
			panic(http.ErrAbortHandler)
		default:
			writeError(w, f.status, "INJECTED", http.StatusText(f.status))
		}
	})
}

type discardWriter struct{ header http.Header }

func (d discardWriter) Header() http.Header         { return d.header }
func (d discardWriter) Write(p []byte) (int, error) { return len(p), nil }
func (d discardWriter) WriteHeader(int)             {}

type recorder struct {
	http.ResponseWriter
	status int
	body   []byte
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body = append(r.body, p...)
	return r.ResponseWriter.Write(p)
}

// idempotent applies a keyed request once and replays its stored response for
// the same key. Only 2xx responses are stored.
func (b *Bank) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if key == "" {
			b.mutations.Add(1)
			next.ServeHTTP(w, r)
			return
		}

		b.mu.Lock()
		prev, ok := b.replies[key]
		b.mu.Unlock()
		if ok {
			b.replayedCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(prev.status)
			_, _ = w.Write(prev.body)
			return
		}

		rec := &recorder{ResponseWriter: w}
		b.mutations.Add(1)
		next.ServeHTTP(rec, r)
		if rec.status >= 200 && rec.status < 300 {
			b.mu.Lock()
			b.replies[key] = stored{status: rec.status, body: rec.body}
			b.mu.Unlock()
		}
	})
}

func (b *Bank) verifyAccess(_ context.Context, token string) (*jwt.Claims, error) {
	claims, err := b.tokens.ParseAccess(token)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	_, ok := b.validAccess[token]
	b.mu.Unlock()
	if !ok {
		return nil, errors.New("access token revoked")
	}
	return claims, nil
}

/* ==== AUTH ==== */

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (b *Bank) issueAccess(email, role string) (string, error) {
	token, err := b.tokens.CreateAccess(email, role)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.validAccess[token] = struct{}{}
	b.mu.Unlock()
	return token, nil
}

func (b *Bank) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	u, ok := b.users[req.Email]
	b.mu.Unlock()
	if !ok || !verifySecret(req.Password, u.Password) {
		writeError(w, http.StatusUnauthorized, "AUTH_FAILED", "invalid email or password")
		return
	}

	access, err := b.issueAccess(u.Email, u.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	refresh, err := b.tokens.CreateRefresh(u.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	b.mu.Lock()
	b.refresh[u.Email] = refresh
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, loginResponse{AccessToken: access, RefreshToken: refresh})
}

func (b *Bank) signup(w http.ResponseWriter, r *http.Request) {
	var req user
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "email and password are required")
		return
	}
	if strings.Trim(req.Phone, "0123456789") != "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "phone must be digits only")
		return
	}
	if req.Role != "USER" && req.Role != "ADMIN" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown role")
		return
	}
	req.Password = hashSecret(req.Password)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[req.Email]; exists {
		writeError(w, http.StatusConflict, "DUPLICATE_EMAIL", "email already in use")
		return
	}
	b.users[req.Email] = &req
	writeJSON(w, http.StatusOK, "signup complete")
}

func (b *Bank) checkEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	b.mu.Lock()
	_, taken := b.users[email]
	b.mu.Unlock()
	if taken {
		writeError(w, http.StatusConflict, "DUPLICATE_EMAIL", "email already in use")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": true})
}

func (b *Bank) refreshToken(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	if b.opts.RefreshDelay > 0 {
		select {
		case <-time.After(b.opts.RefreshDelay):
		case <-r.Context().Done():
			return
		}
	}

	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "refresh token required")
		return
	}
	claims, err := b.tokens.ParseRefresh(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH_FAILED", "invalid refresh token")
		return
	}
	email := claims.Subject

	b.mu.Lock()
	current := b.refresh[email]
	u := b.users[email]
	b.mu.Unlock()
	if current == "" || current != token || u == nil {
		writeError(w, http.StatusUnauthorized, "AUTH_FAILED", "refresh token expired or mismatched")
		return
	}

	access, err := b.issueAccess(email, u.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	resp := loginResponse{AccessToken: access, RefreshToken: token}
	if b.opts.RotateRefresh {
		next, err := b.tokens.CreateRefresh(email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		b.mu.Lock()
		b.refresh[email] = next
		b.mu.Unlock()
		resp.RefreshToken = next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Bank) logout(w http.ResponseWriter, r *http.Request) {
	b.logoutCalls.Add(1)
	claims, _ := middleware.ClaimsFromContext(r.Context())
	token, _ := middleware.BearerToken(r.Header.Get("Authorization"))

	b.mu.Lock()
	delete(b.refresh, claims.Subject)
	delete(b.validAccess, token)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, "logged out")
}

/* ==== BANKING ==== */

func owner(r *http.Request) string {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	return claims.Subject
}

func (b *Bank) listBanks(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := append([]BankInfo(nil), b.banks...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Bank) bankByID(id int64) (BankInfo, bool) {
	for _, bk := range b.banks {
		if bk.ID == id {
			return bk, true
		}
	}
	return BankInfo{}, false
}

func (b *Bank) openAccountLocked(email string, bankID, balance int64, pin string) *Account {
	bk, _ := b.bankByID(bankID)
	b.nextID++
	a := &Account{
		ID:            b.nextID,
		AccountNumber: fmt.Sprintf("%03d-%s", bankID, uuid.NewString()[:8]),
		BankName:      bk.BankName,
		Balance:       balance,
		BankID:        bankID,
		owner:         email,
		pin:           hashSecret(pin),
	}
	b.accounts[a.AccountNumber] = a
	return a
}

func (b *Bank) listAccounts(w http.ResponseWriter, r *http.Request) {
	me := owner(r)
	b.mu.Lock()
	out := []Account{}
	for _, a := range b.accounts {
		if a.owner == me {
			out = append(out, *a)
		}
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (b *Bank) createAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BankID      int64  `json:"bankId"`
		Balance     int64  `json:"balance"`
		AccountType string `json:"accountType"`
		Password    string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.Password) != 4 || strings.Trim(req.Password, "0123456789") != "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "password must be 4 digits")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.bankByID(req.BankID); !ok {
		writeError(w, http.StatusNotFound, "BANK_NOT_FOUND", "unknown bank")
		return
	}
	a := b.openAccountLocked(owner(r), req.BankID, req.Balance, req.Password)
	writeJSON(w, http.StatusCreated, a)
}

func (b *Bank) transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromBankID        int64  `json:"fromBankId"`
		ToBankID          int64  `json:"toBankId"`
		FromAccountNumber string `json:"fromAccountNumber"`
		ToAccountNumber   string `json:"toAccountNumber"`
		Amount            int64  `json:"amount"`
		Password          string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	from, to, ok := b.checkTransferLocked(w, owner(r), req.FromAccountNumber, req.ToAccountNumber, req.ToBankID, req.Amount, req.Password)
	if !ok {
		return
	}
	from.Balance -= req.Amount
	to.Balance += req.Amount
	writeJSON(w, http.StatusOK, map[string]string{"message": "transfer complete"})
}

// checkTransferLocked writes the error response itself when the transfer is
// not allowed.
func (b *Bank) checkTransferLocked(w http.ResponseWriter, me, fromNo, toNo string, toBankID, amount int64, pin string) (*Account, *Account, bool) {
	from, ok := b.accounts[fromNo]
	if !ok || from.owner != me {
		writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "source account not found")
		return nil, nil, false
	}
	to, ok := b.accounts[toNo]
	if !ok || (toBankID != 0 && to.BankID != toBankID) {
		writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "target account not found")
		return nil, nil, false
	}
	if !verifySecret(pin, from.pin) {
		writeError(w, http.StatusBadRequest, "INVALID_PASSWORD", "wrong account password")
		return nil, nil, false
	}
	if amount <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "amount must be positive")
		return nil, nil, false
	}
	if from.Balance < amount {
		writeError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "insufficient balance")
		return nil, nil, false
	}
	return from, to, true
}

func (b *Bank) createScheduled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromAccountNumber string `json:"fromAccountNumber"`
		ToAccountNumber   string `json:"toAccountNumber"`
		ToBankID          int64  `json:"toBankId"`
		Amount            int64  `json:"amount"`
		ScheduledAt       string `json:"scheduledAt"`
		Password          string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ScheduledAt == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "scheduledAt is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	me := owner(r)
	if _, _, ok := b.checkTransferLocked(w, me, req.FromAccountNumber, req.ToAccountNumber, req.ToBankID, req.Amount, req.Password); !ok {
		return
	}
	b.nextID++
	st := &scheduled{
		ID:                b.nextID,
		FromAccountNumber: req.FromAccountNumber,
		ToAccountNumber:   req.ToAccountNumber,
		Amount:            req.Amount,
		ScheduledAt:       req.ScheduledAt,
		Status:            "PENDING",
		owner:             me,
	}
	b.schedules = append(b.schedules, st)
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduledTransferId": st.ID,
		"message":             "transfer scheduled",
		"amount":              st.Amount,
		"scheduledAt":         st.ScheduledAt,
		"status":              st.Status,
	})
}

func (b *Bank) listScheduled(w http.ResponseWriter, r *http.Request) {
	me := owner(r)
	b.mu.Lock()
	out := []scheduled{}
	for _, st := range b.schedules {
		if st.owner == me {
			out = append(out, *st)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

/* ==== ENCODING ==== */

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   msg,
		Timestamp: time.Now().Format("2006-01-02T15:04:05"),
	})
}
