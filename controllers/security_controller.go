package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"portfolio_api/middleware"
	"portfolio_api/models"
	"portfolio_api/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxFormMemory = 1 << 20

// RouteHandler serves one sub-path for an authenticated user.
type RouteHandler func(c *gin.Context, user *models.User, params Params)

// Params keeps query string and body parameters apart. Body is only read for POST.
type Params struct {
	Query map[string]string
	Body  map[string]string
}

// Names returns the sorted union of query and body parameter names.
func (p Params) Names() []string {
	seen := make(map[string]bool, len(p.Query)+len(p.Body))
	names := make([]string, 0, len(p.Query)+len(p.Body))
	for _, set := range []map[string]string{p.Query, p.Body} {
		for name := range set {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Route describes one sub-path of the security endpoint.
// A nil Params disables validation; otherwise the supplied parameter names must equal Params exactly.
type Route struct {
	Name    string
	Params  []string
	Handler RouteHandler
	Help    string
}

// SecurityController dispatches /security/<subpath> requests through its route table
type SecurityController struct {
	portfolio *services.PortfolioService
	prices    services.PriceFetcher
	logger    *zap.Logger
	routes    []Route
	index     map[string]int
}

// NewSecurityController creates a new security controller
func NewSecurityController(portfolio *services.PortfolioService, prices services.PriceFetcher, logger *zap.Logger) *SecurityController {
	sc := &SecurityController{
		portfolio: portfolio,
		prices:    prices,
		logger:    logger,
	}
	sc.routes = []Route{
		{Name: "search", Params: []string{"ticker"}, Handler: sc.searchTicker, Help: "/search?ticker=<ticker>"},
		{Name: "all", Handler: sc.allSecurities, Help: "/all"},
		{Name: "add", Handler: sc.addToPortfolio, Help: "/add (body: ticker=<ticker>)"},
		{Name: "remove", Handler: sc.removeFromPortfolio, Help: "/remove (body: ticker=<ticker>)"},
		{Name: "help", Handler: sc.showHelp, Help: "/help?path=<subpath>"},
	}
	sc.index = make(map[string]int, len(sc.routes))
	for i, route := range sc.routes {
		sc.index[route.Name] = i
	}
	return sc
}

// Handle is the single entry point for GET and POST /security/<subpath>
func (sc *SecurityController) Handle(c *gin.Context) {
	subpath := strings.Trim(c.Param("subpath"), "/")

	user, err := middleware.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}
	sc.logger.Debug("Security view",
		zap.String("method", c.Request.Method),
		zap.String("user", user.Username),
		zap.String("path", subpath),
	)

	i, ok := sc.index[subpath]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Unknown path '%s'", subpath),
			"help":  sc.HelpAll(),
		})
		return
	}
	route := sc.routes[i]

	params, err := requestParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("Malformed request: %v", err)})
		return
	}

	if names := params.Names(); route.Params != nil && !sameNames(route.Params, names) {
		c.JSON(http.StatusBadRequest, gin.H{"message": validationMessage(route, names)})
		return
	}

	route.Handler(c, user, params)
}

// HelpFor returns the help text of a registered sub-path.
func (sc *SecurityController) HelpFor(subpath string) (string, bool) {
	i, ok := sc.index[subpath]
	if !ok {
		return "", false
	}
	return sc.routes[i].Help, true
}

// HelpAll lists the help text of every route in registration order.
func (sc *SecurityController) HelpAll() []string {
	texts := make([]string, 0, len(sc.routes))
	for _, route := range sc.routes {
		texts = append(texts, route.Help)
	}
	return texts
}

// Help returns one help text for a known sub-path and all of them otherwise.
func (sc *SecurityController) Help(subpath string) interface{} {
	if text, ok := sc.HelpFor(subpath); ok {
		return text
	}
	return sc.HelpAll()
}

// searchTicker fetches the live price of one ticker
// GET /security/search?ticker=<ticker>
func (sc *SecurityController) searchTicker(c *gin.Context, _ *models.User, params Params) {
	ticker := params.Query["ticker"]
	notFound := gin.H{"error": fmt.Sprintf("Could not find ticker %s", ticker)}

	if strings.TrimSpace(ticker) == "" {
		c.JSON(http.StatusOK, notFound)
		return
	}

	prices, err := sc.prices.FetchPrices(c.Request.Context(), []string{ticker})
	if err != nil {
		sc.logger.Warn("Price lookup failed", zap.String("ticker", ticker), zap.Error(err))
		c.JSON(http.StatusOK, notFound)
		return
	}
	if !containsTicker(prices, ticker) {
		c.JSON(http.StatusOK, notFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Ticker %s found", ticker),
		"tickers": priceMap(prices),
	})
}

// allSecurities returns ticker -> last price for the caller's portfolio
// GET /security/all
func (sc *SecurityController) allSecurities(c *gin.Context, user *models.User, _ Params) {
	prices, err := sc.portfolio.ListPrices(user.ID)
	if err != nil {
		sc.logger.Error("Failed to list securities", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch securities"})
		return
	}
	c.JSON(http.StatusOK, priceMap(prices))
}

// addToPortfolio adds a ticker to the caller's portfolio
// POST /security/add
func (sc *SecurityController) addToPortfolio(c *gin.Context, user *models.User, params Params) {
	ticker := strings.TrimSpace(params.Body["ticker"])

	_, err := sc.portfolio.Add(user.ID, ticker)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Ticker %s added to portfolio", ticker)})
	case errors.Is(err, services.ErrAlreadyInPortfolio):
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Ticker %s already in portfolio", ticker)})
	case errors.Is(err, services.ErrEmptyTicker):
		c.JSON(http.StatusOK, gin.H{"error": "Ticker must be provided"})
	default:
		sc.logger.Error("Failed to add security", zap.Uint("user_id", user.ID), zap.String("ticker", ticker), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add ticker"})
	}
}

// removeFromPortfolio removes a ticker from the caller's portfolio
// POST /security/remove
func (sc *SecurityController) removeFromPortfolio(c *gin.Context, user *models.User, params Params) {
	ticker := strings.TrimSpace(params.Body["ticker"])

	err := sc.portfolio.Remove(user.ID, ticker)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Ticker %s removed from portfolio", ticker)})
	case errors.Is(err, services.ErrNotInPortfolio):
		c.JSON(http.StatusOK, gin.H{"error": fmt.Sprintf("Ticker %s not in portfolio, cannot remove", ticker)})
	case errors.Is(err, services.ErrEmptyTicker):
		c.JSON(http.StatusOK, gin.H{"error": "Ticker must be provided"})
	default:
		sc.logger.Error("Failed to remove security", zap.Uint("user_id", user.ID), zap.String("ticker", ticker), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove ticker"})
	}
}

// showHelp describes one sub-path, or all of them
// GET /security/help?path=<subpath>
func (sc *SecurityController) showHelp(c *gin.Context, _ *models.User, params Params) {
	c.JSON(http.StatusOK, gin.H{"message": sc.Help(params.Query["path"])})
}

// requestParams collects the query string for every method and the JSON or form
// body fields for POST.
func requestParams(c *gin.Context) (Params, error) {
	params := Params{
		Query: make(map[string]string),
		Body:  make(map[string]string),
	}
	for key, values := range c.Request.URL.Query() {
		params.Query[key] = firstValue(values)
	}

	if c.Request.Method != http.MethodPost || c.Request.Body == nil {
		return params, nil
	}

	if c.ContentType() == gin.MIMEJSON {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			return params, err
		}
		for key, value := range body {
			params.Body[key] = stringValue(value)
		}
		return params, nil
	}

	if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return params, err
	}
	for key, values := range c.Request.PostForm {
		params.Body[key] = firstValue(values)
	}
	return params, nil
}

// sameNames reports whether the supplied parameter names are exactly the required ones.
// supplied must not contain duplicates.
func sameNames(required, supplied []string) bool {
	if len(required) != len(supplied) {
		return false
	}
	have := make(map[string]bool, len(supplied))
	for _, name := range supplied {
		have[name] = true
	}
	for _, name := range required {
		if !have[name] {
			return false
		}
	}
	return true
}

func validationMessage(route Route, supplied []string) string {
	required := append([]string(nil), route.Params...)
	sort.Strings(required)

	return fmt.Sprintf("Parameters required for subpath '%s': %s. Params supplied: '%s'. More path details: %s",
		route.Name, strings.Join(required, ","), strings.Join(supplied, ","), route.Help)
}

func containsTicker(prices map[string]decimal.Decimal, ticker string) bool {
	for key := range prices {
		if strings.EqualFold(key, ticker) {
			return true
		}
	}
	return false
}

func priceMap(prices map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(prices))
	for ticker, price := range prices {
		out[ticker] = price.InexactFloat64()
	}
	return out
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func stringValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
