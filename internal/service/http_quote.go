package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"papertrade/internal/models"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// HTTPQuoteConfig describes a JSON quote API. URL may contain {symbol} and
// {token} placeholders; the paths are JSONPath expressions into the response.
type HTTPQuoteConfig struct {
	URL        string
	Token      string
	PricePath  string
	NamePath   string
	SymbolPath string
	Timeout    time.Duration
}

// HTTPQuoteService asks a remote quote API for every lookup.
type HTTPQuoteService struct {
	cfg    HTTPQuoteConfig
	client *http.Client
	log    *logrus.Logger
}

func NewHTTPQuoteService(cfg HTTPQuoteConfig, log *logrus.Logger) *HTTPQuoteService {
	if cfg.PricePath == "" {
		cfg.PricePath = "$.latestPrice"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPQuoteService{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, log: log}
}

func (s *HTTPQuoteService) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil, nil
	}
	addr := strings.NewReplacer(
		"{symbol}", url.PathEscape(sym),
		"{token}", url.QueryEscape(s.cfg.Token),
	).Replace(s.cfg.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", sym, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("quote %s: unexpected status %d", sym, resp.StatusCode)
	}

	var jobj interface{}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&jobj); err != nil {
		s.log.Warnf("quote %s: undecodable body: %v", sym, err)
		return nil, nil
	}

	price, err := decimalAt(s.cfg.PricePath, jobj)
	if err != nil {
		s.log.Warnf("quote %s: %v", sym, err)
		return nil, nil
	}
	if price.IsNegative() {
		s.log.Warnf("quote %s: negative price %s", sym, price)
		return nil, nil
	}

	q := &models.Quote{Symbol: sym, Price: price}
	if s.cfg.NamePath != "" {
		q.Name, _ = stringAt(s.cfg.NamePath, jobj)
	}
	if s.cfg.SymbolPath != "" {
		if v, ok := stringAt(s.cfg.SymbolPath, jobj); ok && v != "" {
			q.Symbol = NormalizeSymbol(v)
		}
	}
	return q, nil
}

// first unwraps the single-element lists jsonpath returns for filters.
func first(path string, jobj interface{}) (interface{}, error) {
	v, err := jsonpath.Get(path, jobj)
	if err != nil {
		return nil, fmt.Errorf("path %q: %w", path, err)
	}
	if list, ok := v.([]interface{}); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("path %q: no match", path)
		}
		v = list[0]
	}
	return v, nil
}

func decimalAt(path string, jobj interface{}) (decimal.Decimal, error) {
	v, err := first(path, jobj)
	if err != nil {
		return decimal.Zero, err
	}
	switch p := v.(type) {
	case json.Number:
		return decimal.NewFromString(p.String())
	case string:
		return decimal.NewFromString(p)
	case float64:
		return decimal.NewFromFloat(p), nil
	case nil:
		return decimal.Zero, fmt.Errorf("path %q: null price", path)
	}
	return decimal.Zero, fmt.Errorf("path %q: not a number: %v", path, v)
}

func stringAt(path string, jobj interface{}) (string, bool) {
	v, err := first(path, jobj)
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
