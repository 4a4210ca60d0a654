package webserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mkarpushin/papertrade/internal/model"
	"github.com/mkarpushin/papertrade/internal/service"
	"github.com/mkarpushin/papertrade/internal/transport/webserver/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTradingService struct {
	user       model.User
	authErr    error
	regErr     error
	available  bool
	quote      model.Quote
	quoteErr   error
	buyErr     error
	sellErr    error
	depositErr error
	portfolio  model.Portfolio
	holdings   []model.Holding
	history    []model.Transaction
	valuations []model.Valuation
}

func (f *fakeTradingService) Register(_ context.Context, _, _ string) (model.User, error) {
	return f.user, f.regErr
}

func (f *fakeTradingService) Authenticate(_ context.Context, _, _ string) (model.User, error) {
	return f.user, f.authErr
}

func (f *fakeTradingService) IsUsernameAvailable(_ context.Context, _ string) (bool, error) {
	return f.available, nil
}

func (f *fakeTradingService) GetQuote(_ context.Context, _ string) (model.Quote, error) {
	return f.quote, f.quoteErr
}

func (f *fakeTradingService) Buy(_ context.Context, _ int64, _ string, _ int64) (model.Transaction, error) {
	return model.Transaction{}, f.buyErr
}

func (f *fakeTradingService) Sell(_ context.Context, _ int64, _ string, _ int64) (model.Transaction, error) {
	return model.Transaction{}, f.sellErr
}

func (f *fakeTradingService) Deposit(_ context.Context, _ int64, _ decimal.Decimal) error {
	return f.depositErr
}

func (f *fakeTradingService) GetPortfolio(_ context.Context, _ int64) (model.Portfolio, error) {
	return f.portfolio, nil
}

func (f *fakeTradingService) GetHoldings(_ context.Context, _ int64) ([]model.Holding, error) {
	return f.holdings, nil
}

func (f *fakeTradingService) GetHistory(_ context.Context, _ int64) ([]model.Transaction, error) {
	return f.history, nil
}

func (f *fakeTradingService) GetValuations(_ context.Context, _ int64) ([]model.Valuation, error) {
	return f.valuations, nil
}

func (f *fakeTradingService) ExportHistory(_ context.Context, _ int64) ([]byte, string, error) {
	return []byte("workbook"), ".xlsx", nil
}

// fakeSessionStore backs both the controller and the auth middleware.
type fakeSessionStore struct {
	sessions map[string]model.Session
	nextID   int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]model.Session)}
}

func (f *fakeSessionStore) Create(_ context.Context, sess model.Session) (string, error) {
	f.nextID++
	token := strings.Repeat("t", f.nextID)
	f.sessions[token] = sess
	return token, nil
}

func (f *fakeSessionStore) Get(_ context.Context, token string) (model.Session, error) {
	sess, ok := f.sessions[token]
	if !ok {
		return model.Session{}, errors.New("session not found")
	}
	return sess, nil
}

func (f *fakeSessionStore) Delete(_ context.Context, token string) error {
	delete(f.sessions, token)
	return nil
}

func newTestRouter(svc TradingService, store *fakeSessionStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.LoadHTMLGlob("../../../templates/*.html")
	setupRoutes(engine, NewController(svc, store), store)
	return engine
}

func loggedInCookie(t *testing.T, store *fakeSessionStore) *http.Cookie {
	t.Helper()
	token, err := store.Create(context.Background(), model.Session{UserID: 1, Username: "alice"})
	require.NoError(t, err)
	return &http.Cookie{Name: middleware.SessionCookie, Value: token}
}

func postForm(router *gin.Engine, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProtectedRoutesRedirectWithoutSession(t *testing.T) {
	router := newTestRouter(&fakeTradingService{}, newFakeSessionStore())

	for _, path := range []string{"/", "/buy", "/sell", "/quote", "/history", "/export"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusSeeOther, w.Code, path)
		assert.Equal(t, "/login", w.Header().Get("Location"), path)
	}
}

func TestLogin(t *testing.T) {
	store := newFakeSessionStore()
	svc := &fakeTradingService{user: model.User{UserID: 1, Username: "alice"}}
	router := newTestRouter(svc, store)

	w := postForm(router, "/login", url.Values{"username": {"alice"}, "password": {"hunter2"}}, nil)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)

	sess, err := store.Get(context.Background(), cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.UserID)
}

func TestLogin_MissingFields(t *testing.T) {
	router := newTestRouter(&fakeTradingService{}, newFakeSessionStore())

	w := postForm(router, "/login", url.Values{"password": {"hunter2"}}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "must provide username")

	w = postForm(router, "/login", url.Values{"username": {"alice"}}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "must provide password")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &fakeTradingService{authErr: service.ErrInvalidCredentials}
	router := newTestRouter(svc, newFakeSessionStore())

	w := postForm(router, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}}, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "invalid username and/or password")
}

func TestRegister_PasswordMismatch(t *testing.T) {
	router := newTestRouter(&fakeTradingService{}, newFakeSessionStore())

	w := postForm(router, "/register", url.Values{
		"username":     {"alice"},
		"password":     {"hunter2"},
		"confirmation": {"hunter3"},
	}, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "passwords must match")
}

func TestRegister_UsernameTaken(t *testing.T) {
	svc := &fakeTradingService{regErr: service.ErrUsernameTaken}
	router := newTestRouter(svc, newFakeSessionStore())

	w := postForm(router, "/register", url.Values{
		"username":     {"alice"},
		"password":     {"hunter2"},
		"confirmation": {"hunter2"},
	}, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "username not available")
}

func TestRegister_AutoLogin(t *testing.T) {
	store := newFakeSessionStore()
	svc := &fakeTradingService{user: model.User{UserID: 7, Username: "bob"}}
	router := newTestRouter(svc, store)

	w := postForm(router, "/register", url.Values{
		"username":     {"bob"},
		"password":     {"hunter2"},
		"confirmation": {"hunter2"},
	}, nil)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	require.Len(t, w.Result().Cookies(), 1)
}

func TestCheck(t *testing.T) {
	svc := &fakeTradingService{available: true}
	router := newTestRouter(svc, newFakeSessionStore())

	req := httptest.NewRequest(http.MethodGet, "/check?username=bob", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", strings.TrimSpace(w.Body.String()))

	svc.available = false
	req = httptest.NewRequest(http.MethodGet, "/check?username=alice", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "false", strings.TrimSpace(w.Body.String()))
}

func TestBuy_InvalidShares(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(&fakeTradingService{}, store)
	cookie := loggedInCookie(t, store)

	for _, shares := range []string{"", "0", "-3", "1.5", "abc"} {
		w := postForm(router, "/buy", url.Values{"symbol": {"NET"}, "shares": {shares}}, cookie)
		assert.Equal(t, http.StatusForbidden, w.Code, "shares=%q", shares)
		assert.Contains(t, w.Body.String(), "valid number of shares", "shares=%q", shares)
	}
}

func TestBuy_ErrorMapping(t *testing.T) {
	store := newFakeSessionStore()
	svc := &fakeTradingService{buyErr: service.ErrUnknownSymbol}
	router := newTestRouter(svc, store)
	cookie := loggedInCookie(t, store)

	w := postForm(router, "/buy", url.Values{"symbol": {"NOPE"}, "shares": {"1"}}, cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "valid stock symbol")

	svc.buyErr = service.ErrInsufficientFunds
	w = postForm(router, "/buy", url.Values{"symbol": {"NET"}, "shares": {"1"}}, cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "not enough cash")

	svc.buyErr = nil
	w = postForm(router, "/buy", url.Values{"symbol": {"NET"}, "shares": {"1"}}, cookie)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestSell_InsufficientShares(t *testing.T) {
	store := newFakeSessionStore()
	svc := &fakeTradingService{sellErr: service.ErrInsufficientShares}
	router := newTestRouter(svc, store)
	cookie := loggedInCookie(t, store)

	w := postForm(router, "/sell", url.Values{"symbol": {"NET"}, "shares": {"100"}}, cookie)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "you don't own that many shares")
}

func TestDeposit(t *testing.T) {
	store := newFakeSessionStore()
	svc := &fakeTradingService{}
	router := newTestRouter(svc, store)
	cookie := loggedInCookie(t, store)

	w := postForm(router, "/deposit", url.Values{"cash": {"not-a-number"}}, cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "valid amount")

	svc.depositErr = service.ErrInvalidAmount
	w = postForm(router, "/deposit", url.Values{"cash": {"-10"}}, cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "must be positive")

	svc.depositErr = nil
	w = postForm(router, "/deposit", url.Values{"cash": {"100.50"}}, cookie)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestQuote(t *testing.T) {
	store := newFakeSessionStore()
	svc := &fakeTradingService{
		quote: model.Quote{Symbol: "NET", Name: "Cloudflare", Price: decimal.RequireFromString("27.35")},
	}
	router := newTestRouter(svc, store)
	cookie := loggedInCookie(t, store)

	w := postForm(router, "/quote", url.Values{"symbol": {"NET"}}, cookie)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Cloudflare")
	assert.Contains(t, w.Body.String(), "27.35")
}

func TestLogout(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(&fakeTradingService{}, store)
	cookie := loggedInCookie(t, store)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Empty(t, store.sessions)

	// session is gone, so the portfolio page must bounce back to login
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestExport(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(&fakeTradingService{}, store)
	cookie := loggedInCookie(t, store)

	req := httptest.NewRequest(http.MethodGet, "/export", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "history.xlsx")
	assert.Equal(t, xlsxMIME, w.Header().Get("Content-Type"))
}
