// Package boxoffice is the typed client of the external box office, the
// authoritative owner of events, seat inventory and sales.  Every call is
// bearer-authenticated and bounded by the client's own timeouts; callers
// must treat a timeout like any other failure.
package boxoffice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const apiPrefix = "/api/endpoints/v1/"

// Config configures a Client.
type Config struct {
	BaseURL        string
	Token          string // static bearer token
	ServiceSecret  string // when set, tokens are minted locally and Token is ignored
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Client calls the box office REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New builds a client from cfg.  Zero timeouts default to 5s (connect) and
// 10s (response).
func New(cfg Config) *Client {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = 5 * time.Second
	}
	read := cfg.ReadTimeout
	if read <= 0 {
		read = 10 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: read,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
	var tokens TokenSource = StaticToken(cfg.Token)
	if cfg.ServiceSecret != "" {
		tokens = NewServiceTokenSource(cfg.ServiceSecret)
	}
	return NewWithHTTPClient(cfg.BaseURL, tokens, &http.Client{Transport: transport, Timeout: connect + read})
}

// NewWithHTTPClient builds a client around an existing *http.Client.
func NewWithHTTPClient(baseURL string, tokens TokenSource, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, tokens: tokens}
}

// ListEventSummaries returns the short catalog.
func (c *Client) ListEventSummaries(ctx context.Context) ([]EventSummary, error) {
	var out []EventSummary
	if err := c.do(ctx, "listEventsSummary", http.MethodGet, "eventos-resumidos", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents returns every event with seating grid and members.
func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	var out []Event
	if err := c.do(ctx, "listEventsFull", http.MethodGet, "eventos", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEvent returns one full event record.
func (c *Client) GetEvent(ctx context.Context, id int64) (*Event, error) {
	var out Event
	if err := c.do(ctx, "getEvent", http.MethodGet, "evento/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LockSeats asks the box office to hold the given seats.
func (c *Client) LockSeats(ctx context.Context, req LockRequest) (*LockResult, error) {
	var out LockResult
	if err := c.do(ctx, "lockSeats", http.MethodPost, "bloquear-asientos", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteSale submits a sale.  A nil error means the box office answered;
// whether the sale went through is in SaleResponse.Result.
func (c *Client) ExecuteSale(ctx context.Context, req SaleRequest) (*SaleResponse, error) {
	var out SaleResponse
	if err := c.do(ctx, "executeSale", http.MethodPost, "realizar-venta", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSales returns the box office's sale summaries for this client.
func (c *Client) ListSales(ctx context.Context) ([]SaleSummary, error) {
	var out []SaleSummary
	if err := c.do(ctx, "listSales", http.MethodGet, "listar-ventas", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSale returns one full sale record.
func (c *Client) GetSale(ctx context.Context, id int64) (*SaleResponse, error) {
	var out SaleResponse
	if err := c.do(ctx, "getSale", http.MethodGet, "listar-venta/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

var errEmptyBody = errors.New("empty response body")

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("boxoffice %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("boxoffice %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("boxoffice %s: token: %w", op, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Error().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("boxoffice: request failed")
		return fmt.Errorf("boxoffice %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := &Error{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		log.Error().Str("op", op).Int("status", e.StatusCode).Str("body", e.Body).Msg("boxoffice: non-2xx response")
		return e
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("boxoffice %s: read response: %w", op, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("boxoffice %s: %w", op, errEmptyBody)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("boxoffice %s: decode response: %w", op, err)
	}
	log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("boxoffice: ok")
	return nil
}
