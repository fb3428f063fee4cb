package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"portfolio_api/middleware"
	"portfolio_api/models"
	"portfolio_api/services"
	"portfolio_api/testutils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type securityFixture struct {
	db        *gorm.DB
	router    *gin.Engine
	user      *models.User
	portfolio *services.PortfolioService
	fetcher   *testutils.FakeFetcher
}

func newSecurityFixture(t *testing.T) *securityFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutils.NewTestDB(t)
	user := testutils.CreateUser(t, db, "alice", "secret")
	portfolio := services.NewPortfolioService(db)
	fetcher := &testutils.FakeFetcher{Prices: map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("216.32"),
	}}
	controller := NewSecurityController(portfolio, fetcher, zap.NewNop())

	router := gin.New()
	authed := router.Group("/security", func(c *gin.Context) {
		middleware.SetCurrentUser(c, user)
	})
	authed.GET("/*subpath", controller.Handle)
	authed.POST("/*subpath", controller.Handle)

	return &securityFixture{db: db, router: router, user: user, portfolio: portfolio, fetcher: fetcher}
}

func (f *securityFixture) get(t *testing.T, target string) (int, map[string]interface{}) {
	t.Helper()
	return f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (f *securityFixture) postForm(t *testing.T, target string, form url.Values) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(t, req)
}

func (f *securityFixture) postJSON(t *testing.T, target, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, req)
}

func (f *securityFixture) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not a JSON object: %q", w.Body.String())
	}
	return w.Code, body
}

func (f *securityFixture) rowCount(t *testing.T, ticker string) int64 {
	t.Helper()
	var count int64
	f.db.Model(&models.Security{}).Where("user_id = ? AND ticker = ?", f.user.ID, ticker).Count(&count)
	return count
}

func TestSearch_ReturnsLivePrice(t *testing.T) {
	f := newSecurityFixture(t)
	testutils.AddSecurity(t, f.db, f.user.ID, "AAPL", decimal.RequireFromString("100.0"))

	code, body := f.get(t, "/security/search?ticker=AAPL")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["message"] != "Ticker AAPL found" {
		t.Errorf("Unexpected message %v", body["message"])
	}
	tickers, ok := body["tickers"].(map[string]interface{})
	if !ok || tickers["AAPL"] != 216.32 {
		t.Errorf("Expected tickers {AAPL: 216.32}, got %v", body["tickers"])
	}
}

func TestSearch_UnknownTicker(t *testing.T) {
	f := newSecurityFixture(t)

	code, body := f.get(t, "/security/search?ticker=ZZZZ")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["error"] != "Could not find ticker ZZZZ" {
		t.Errorf("Unexpected body %v", body)
	}
}

func TestSearch_PriceServiceDown(t *testing.T) {
	f := newSecurityFixture(t)
	f.fetcher.Err = errUnavailable

	code, body := f.get(t, "/security/search?ticker=AAPL")
	if code != http.StatusOK || body["error"] != "Could not find ticker AAPL" {
		t.Errorf("Expected 200 not-found, got %d %v", code, body)
	}
}

func TestSearch_ParameterValidation(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		supplied string
	}{
		{name: "no parameters", target: "/security/search", supplied: ""},
		{name: "superset", target: "/security/search?ticker=AAPL&exchange=NYSE", supplied: "exchange,ticker"},
		{name: "disjoint", target: "/security/search?symbol=AAPL", supplied: "symbol"},
	}

	f := newSecurityFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.get(t, tt.target)
			if code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", code)
			}
			want := "Parameters required for subpath 'search': ticker. Params supplied: '" + tt.supplied +
				"'. More path details: /search?ticker=<ticker>"
			if body["message"] != want {
				t.Errorf("Expected message %q, got %q", want, body["message"])
			}
		})
	}

	if f.fetcher.CallCount() != 0 {
		t.Errorf("Rejected requests must not reach the price service, got %d calls", f.fetcher.CallCount())
	}
}

func TestSearch_ReadsTickerFromQueryOnly(t *testing.T) {
	f := newSecurityFixture(t)

	code, body := f.postForm(t, "/security/search?ticker=AAPL", url.Values{"ticker": {"ZZZZ"}})
	if code != http.StatusOK || body["message"] != "Ticker AAPL found" {
		t.Errorf("Expected the query ticker to be searched, got %d %v", code, body)
	}
}

func TestAddRemove_IgnoreQueryTicker(t *testing.T) {
	f := newSecurityFixture(t)

	code, body := f.get(t, "/security/add?ticker=AAPL")
	if code != http.StatusOK || body["error"] != "Ticker must be provided" {
		t.Errorf("GET add: got %d %v", code, body)
	}
	if n := f.rowCount(t, "AAPL"); n != 0 {
		t.Fatalf("GET add must not create a row, have %d", n)
	}

	testutils.AddSecurity(t, f.db, f.user.ID, "AAPL", decimal.Zero)
	code, body = f.get(t, "/security/remove?ticker=AAPL")
	if code != http.StatusOK || body["error"] != "Ticker must be provided" {
		t.Errorf("GET remove: got %d %v", code, body)
	}
	if n := f.rowCount(t, "AAPL"); n != 1 {
		t.Fatalf("GET remove must not delete the row, have %d", n)
	}

	code, body = f.postForm(t, "/security/remove?ticker=AAPL", url.Values{})
	if code != http.StatusOK || body["error"] != "Ticker must be provided" {
		t.Errorf("POST remove with query ticker only: got %d %v", code, body)
	}
	if n := f.rowCount(t, "AAPL"); n != 1 {
		t.Fatalf("Query ticker must not delete the row, have %d", n)
	}
}

func TestAddRemove_EchoTrimmedTicker(t *testing.T) {
	f := newSecurityFixture(t)

	code, body := f.postJSON(t, "/security/add", `{"ticker": " AAPL "}`)
	if code != http.StatusOK || body["message"] != "Ticker AAPL added to portfolio" {
		t.Fatalf("Add: got %d %v", code, body)
	}
	if n := f.rowCount(t, "AAPL"); n != 1 {
		t.Fatalf("Expected AAPL stored trimmed, have %d rows", n)
	}

	code, body = f.postJSON(t, "/security/remove", `{"ticker": "AAPL  "}`)
	if code != http.StatusOK || body["message"] != "Ticker AAPL removed from portfolio" {
		t.Fatalf("Remove: got %d %v", code, body)
	}
}

func TestAll_OnlyCallerSecurities(t *testing.T) {
	f := newSecurityFixture(t)
	bob := testutils.CreateUser(t, f.db, "bob", "secret")
	testutils.AddSecurity(t, f.db, f.user.ID, "MSFT", decimal.RequireFromString("410.5"))
	testutils.AddSecurity(t, f.db, bob.ID, "TSLA", decimal.RequireFromString("180"))
	testutils.AddSecurity(t, f.db, f.user.ID, "AAPL", decimal.RequireFromString("100"))

	code, body := f.get(t, "/security/all")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if len(body) != 2 || body["AAPL"] != 100.0 || body["MSFT"] != 410.5 {
		t.Errorf("Expected {AAPL: 100, MSFT: 410.5}, got %v", body)
	}
}

func TestAll_AcceptsAnyParameters(t *testing.T) {
	f := newSecurityFixture(t)

	code, body := f.get(t, "/security/all?anything=1")
	if code != http.StatusOK || len(body) != 0 {
		t.Errorf("Expected 200 with an empty map, got %d %v", code, body)
	}
}

func TestAdd_Twice(t *testing.T) {
	f := newSecurityFixture(t)

	code, body := f.postForm(t, "/security/add", url.Values{"ticker": {"AAPL"}})
	if code != http.StatusOK || body["message"] != "Ticker AAPL added to portfolio" {
		t.Fatalf("First add: got %d %v", code, body)
	}

	code, body = f.postJSON(t, "/security/add", `{"ticker": "AAPL"}`)
	if code != http.StatusOK || body["message"] != "Ticker AAPL already in portfolio" {
		t.Fatalf("Second add: got %d %v", code, body)
	}

	if n := f.rowCount(t, "AAPL"); n != 1 {
		t.Errorf("Expected exactly one row, got %d", n)
	}

	prices, _ := f.portfolio.ListPrices(f.user.ID)
	if !prices["AAPL"].IsZero() {
		t.Errorf("Expected a new security to start at 0, got %s", prices["AAPL"])
	}
}

func TestRemove_Twice(t *testing.T) {
	f := newSecurityFixture(t)
	testutils.AddSecurity(t, f.db, f.user.ID, "AAPL", decimal.Zero)

	code, body := f.postJSON(t, "/security/remove", `{"ticker": "AAPL"}`)
	if code != http.StatusOK || body["message"] != "Ticker AAPL removed from portfolio" {
		t.Fatalf("First remove: got %d %v", code, body)
	}
	if n := f.rowCount(t, "AAPL"); n != 0 {
		t.Fatalf("Expected row deleted, have %d", n)
	}

	code, body = f.postForm(t, "/security/remove", url.Values{"ticker": {"AAPL"}})
	if code != http.StatusOK || body["error"] != "Ticker AAPL not in portfolio, cannot remove" {
		t.Fatalf("Second remove: got %d %v", code, body)
	}
}

func TestAddRemove_MissingTicker(t *testing.T) {
	f := newSecurityFixture(t)

	for _, target := range []string{"/security/add", "/security/remove"} {
		code, body := f.postJSON(t, target, `{}`)
		if code != http.StatusOK || body["error"] != "Ticker must be provided" {
			t.Errorf("%s: got %d %v", target, code, body)
		}
	}
}

func TestMalformedJSONBody(t *testing.T) {
	f := newSecurityFixture(t)

	code, _ := f.postJSON(t, "/security/add", `{"ticker":`)
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
}

func TestUnknownPath(t *testing.T) {
	f := newSecurityFixture(t)

	code, body := f.get(t, "/security/bogus")
	if code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", code)
	}
	if body["error"] != "Unknown path 'bogus'" {
		t.Errorf("Unexpected error %v", body["error"])
	}
	help, ok := body["help"].([]interface{})
	if !ok || len(help) != 5 || help[0] != "/search?ticker=<ticker>" {
		t.Errorf("Expected the full help list, got %v", body["help"])
	}
}

func TestHelp(t *testing.T) {
	f := newSecurityFixture(t)

	code, body := f.get(t, "/security/help?path=remove")
	if code != http.StatusOK || body["message"] != "/remove (body: ticker=<ticker>)" {
		t.Errorf("Expected remove help, got %d %v", code, body)
	}

	code, body = f.get(t, "/security/help?path=nope")
	list, ok := body["message"].([]interface{})
	if code != http.StatusOK || !ok || len(list) != 5 {
		t.Errorf("Expected every help text, got %d %v", code, body)
	}
}

func TestHandle_RequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutils.NewTestDB(t)
	controller := NewSecurityController(services.NewPortfolioService(db), &testutils.FakeFetcher{}, zap.NewNop())

	router := gin.New()
	router.GET("/security/*subpath", controller.Handle)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/security/all", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestSameNames(t *testing.T) {
	required := []string{"a", "b"}
	tests := []struct {
		supplied []string
		want     bool
	}{
		{[]string{"a", "b"}, true},
		{[]string{"b", "a"}, true},
		{[]string{"a"}, false},
		{[]string{"a", "b", "c"}, false},
		{[]string{"c", "d"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := sameNames(required, tt.supplied); got != tt.want {
			t.Errorf("sameNames(%v) = %v, want %v", tt.supplied, got, tt.want)
		}
	}
}

func TestParamsNames(t *testing.T) {
	p := Params{
		Query: map[string]string{"ticker": "AAPL", "b": ""},
		Body:  map[string]string{"ticker": "MSFT", "a": ""},
	}
	got := strings.Join(p.Names(), ",")
	if got != "a,b,ticker" {
		t.Errorf("Expected sorted union a,b,ticker, got %s", got)
	}
}

var errUnavailable = errors.New("quote service unavailable")
