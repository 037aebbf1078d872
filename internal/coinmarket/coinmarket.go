// Package coinmarket is a thin client for the CoinMarketCap v1 API covering
// the two calls the bot needs: latest USD quotes for a batch of IDs and the
// name/symbol lookup used when adding a coin.
package coinmarket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/types"
)

const (
	// BatchSize is the maximum number of IDs sent in one quotes request.
	BatchSize = 100

	maxRetries = 3
)

// Client talks to the CoinMarketCap API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retryDelay time.Duration
}

// New creates a client for the given base URL (e.g.
// https://pro-api.coinmarketcap.com/v1) authenticated with apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryDelay: 2 * time.Second,
	}
}

type apiStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// QuotesLatest fetches current USD prices for the given IDs, batching
// requests at BatchSize IDs each. The returned map may omit IDs the API
// could not price. Transient failures are retried up to three times with a
// fixed backoff; exhaustion returns an error and the caller should treat the
// tick as priceless rather than fatal.
func (c *Client) QuotesLatest(ids []int64) (map[int64]float64, error) {
	if len(ids) == 0 {
		return map[int64]float64{}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		prices, err := c.quotesOnce(ids)
		if err == nil {
			return prices, nil
		}
		lastErr = err
		log.Errorf("fetching prices failed (attempt %d/%d): %v", attempt, maxRetries, err)
		if attempt < maxRetries {
			time.Sleep(c.retryDelay)
		}
	}
	return nil, errors.Wrapf(lastErr, "could not fetch prices after %d attempts", maxRetries)
}

func (c *Client) quotesOnce(ids []int64) (map[int64]float64, error) {
	prices := make(map[int64]float64, len(ids))

	total := (len(ids) + BatchSize - 1) / BatchSize
	for i := 0; i < len(ids); i += BatchSize {
		end := i + BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]
		log.Debugf("requesting quotes batch %d/%d with %d coins", i/BatchSize+1, total, len(batch))

		var payload struct {
			Status apiStatus `json:"status"`
			Data   map[string]struct {
				Quote struct {
					USD struct {
						Price float64 `json:"price"`
					} `json:"USD"`
				} `json:"quote"`
			} `json:"data"`
		}
		params := url.Values{"id": {joinIDs(batch)}, "convert": {"USD"}}
		if err := c.get("/cryptocurrency/quotes/latest", params, &payload); err != nil {
			return nil, err
		}
		if payload.Status.ErrorCode != 0 {
			return nil, errors.Errorf("api error %d: %s", payload.Status.ErrorCode, payload.Status.ErrorMessage)
		}

		for key, value := range payload.Data {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				log.Warnf("ignoring quote with non-numeric id %q", key)
				continue
			}
			prices[id] = value.Quote.USD.Price
		}
	}
	return prices, nil
}

// Info looks up the name and symbol for a coin ID.
func (c *Client) Info(id int64) (*types.Asset, error) {
	var payload struct {
		Status apiStatus `json:"status"`
		Data   map[string]struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"data"`
	}
	key := strconv.FormatInt(id, 10)
	if err := c.get("/cryptocurrency/info", url.Values{"id": {key}}, &payload); err != nil {
		return nil, err
	}
	if payload.Status.ErrorCode != 0 {
		return nil, errors.Errorf("api error %d: %s", payload.Status.ErrorCode, payload.Status.ErrorMessage)
	}
	info, ok := payload.Data[key]
	if !ok {
		return nil, errors.Errorf("coin id %d not found", id)
	}
	return &types.Asset{ID: id, Name: info.Name, Symbol: info.Symbol}, nil
}

func (c *Client) get(path string, params url.Values, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "could not build request")
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("request to %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "could not parse response from %s", path)
	}
	return nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
