package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"atlas-feed/internal/market"
)

const (
	klinePath = "/api/v3/klines"
	maxLimit  = 1000
)

// Client fetches historical klines from the exchange REST API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Klines returns up to limit candles ordered oldest to newest. The
// symbol is case-normalized to uppercase; limit is clamped to the API
// maximum of 1000.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(strings.TrimSpace(symbol)))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	reqURL := c.baseURL + klinePath + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	// Each kline is a positional JSON array:
	// [openTimeMs, open, high, low, close, volume, closeTimeMs, ...]
	// with prices and volume as decimal strings. Fields past index 5
	// are not consumed.
	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	return parseKlines(raw)
}

func parseKlines(raw [][]json.RawMessage) ([]market.Candle, error) {
	out := make([]market.Candle, 0, len(raw))
	for i, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline[%d] has %d fields, want >= 6", i, len(row))
		}
		openTime, err := int64FromRaw(row[0])
		if err != nil {
			return nil, fmt.Errorf("kline[%d] open time: %w", i, err)
		}
		open, err := floatFromRaw(row[1])
		if err != nil {
			return nil, fmt.Errorf("kline[%d] open: %w", i, err)
		}
		high, err := floatFromRaw(row[2])
		if err != nil {
			return nil, fmt.Errorf("kline[%d] high: %w", i, err)
		}
		low, err := floatFromRaw(row[3])
		if err != nil {
			return nil, fmt.Errorf("kline[%d] low: %w", i, err)
		}
		cls, err := floatFromRaw(row[4])
		if err != nil {
			return nil, fmt.Errorf("kline[%d] close: %w", i, err)
		}
		vol, err := floatFromRaw(row[5])
		if err != nil {
			return nil, fmt.Errorf("kline[%d] volume: %w", i, err)
		}
		out = append(out, market.Candle{
			OpenTime: time.UnixMilli(openTime).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    cls,
			Volume:   vol,
		})
	}
	return out, nil
}

func int64FromRaw(raw json.RawMessage) (int64, error) {
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// floatFromRaw accepts either a JSON string holding a decimal or a bare
// JSON number.
func floatFromRaw(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
