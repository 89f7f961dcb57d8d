// Package palantir is a client for the local Palantír information service.
//
// Every endpoint answers with a JSON object that carries either the requested
// payload or an "error" string. Transport failures and non-object bodies are
// reported as ErrUnavailable and ErrMalformed; a populated "error" field is
// returned as *BackendError so callers can show the text verbatim.
package palantir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"shadowfax/internal/models"
)

const (
	requestTimeout = 15 * time.Second
	maxBodySize    = 8 << 20
)

var (
	ErrUnavailable = errors.New("palantir is unavailable")
	ErrMalformed   = errors.New("malformed palantir response")
)

// BackendError is a domain error reported by Palantír in the "error" field
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}

// Client issues GET requests against a Palantír base URL
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for baseURL, e.g. http://localhost:8181
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Clients returns all АЗС networks (GET /clients)
func (c *Client) Clients(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	if err := c.getList(ctx, "/clients", nil, "data", &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

// TerminalInfo returns the card of a single terminal (GET /terminal_info)
func (c *Client) TerminalInfo(ctx context.Context, clientID, terminalID int64) (*models.TerminalInfo, error) {
	body, err := c.get(ctx, "/terminal_info", terminalParams(clientID, terminalID))
	if err != nil {
		return nil, err
	}

	var info models.TerminalInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: terminal_info: %v", ErrMalformed, err)
	}
	return &info, nil
}

// Stations returns the АЗС listing of a client (GET /azs_list)
func (c *Client) Stations(ctx context.Context, clientID int64) ([]models.Station, error) {
	params := url.Values{"client_id": {strconv.FormatInt(clientID, 10)}}
	var stations []models.Station
	if err := c.getList(ctx, "/azs_list", params, "azs_list", &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// Reservoirs returns the fuel tanks of a terminal (GET /reservoirs_info)
func (c *Client) Reservoirs(ctx context.Context, clientID, terminalID int64) ([]models.Reservoir, error) {
	var reservoirs []models.Reservoir
	err := c.getList(ctx, "/reservoirs_info", terminalParams(clientID, terminalID), "reservoirs_info", &reservoirs)
	if err != nil {
		return nil, err
	}
	return reservoirs, nil
}

// Dispensers returns the PRK configuration of a terminal (GET /prk_info)
func (c *Client) Dispensers(ctx context.Context, clientID, terminalID int64) ([]models.Dispenser, error) {
	var dispensers []models.Dispenser
	err := c.getList(ctx, "/prk_info", terminalParams(clientID, terminalID), "prk_info", &dispensers)
	if err != nil {
		return nil, err
	}
	return dispensers, nil
}

// PosDatas returns the RRO registers of a terminal (GET /posdatas)
func (c *Client) PosDatas(ctx context.Context, clientID, terminalID int64) ([]models.PosData, error) {
	var pos []models.PosData
	err := c.getList(ctx, "/posdatas", terminalParams(clientID, terminalID), "posdatas", &pos)
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func terminalParams(clientID, terminalID int64) url.Values {
	return url.Values{
		"client_id":   {strconv.FormatInt(clientID, 10)},
		"terminal_id": {strconv.FormatInt(terminalID, 10)},
	}
}

// getList decodes the array stored under key into dst
func (c *Client) getList(ctx context.Context, path string, params url.Values, key string, dst any) error {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	raw, ok := obj[key]
	if !ok || len(raw) == 0 || raw[0] != '[' {
		return fmt.Errorf("%w: %s: missing %q array", ErrMalformed, path, key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return nil
}

// get performs the request and returns the body of a JSON object response
// that has no "error" field
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Palantír request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}

	c.logger.Debug("Palantír response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, path, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s: not a JSON object", ErrMalformed, path)
	}
	if envelope == nil {
		return nil, fmt.Errorf("%w: %s: null body", ErrMalformed, path)
	}

	if raw, ok := envelope["error"]; ok {
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
			return nil, &BackendError{Message: msg}
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, path, resp.StatusCode)
	}
	return body, nil
}
