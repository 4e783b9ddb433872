package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Credentials holds the cookie and user agent the Xueqiu API expects.
// A Credentials value is swapped in wholesale via SetCredentials; it is
// never mutated after being installed.
type Credentials struct {
	Cookie    string
	UserAgent string
}

// XueqiuSource fetches the latest 1-minute kline close from the Xueqiu
// chart API. It requires credentials before it can serve prices.
type XueqiuSource struct {
	baseURL string
	client  *http.Client
	creds   atomic.Pointer[Credentials]
}

// NewXueqiuSource creates a XueqiuSource against baseURL
// (e.g. "https://stock.xueqiu.com") with the given request timeout.
func NewXueqiuSource(baseURL string, timeout time.Duration) *XueqiuSource {
	return &XueqiuSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns "xueqiu".
func (s *XueqiuSource) Name() string {
	return "xueqiu"
}

// SetCredentials atomically replaces the credentials used for requests.
// Safe for concurrent use with in-flight LastPrice calls.
func (s *XueqiuSource) SetCredentials(c Credentials) {
	s.creds.Store(&c)
}

// Configured reports whether credentials have been installed.
func (s *XueqiuSource) Configured() bool {
	return s.creds.Load() != nil
}

// klineResponse mirrors the subset of the chart API response we read.
type klineResponse struct {
	ErrorCode int    `json:"error_code"`
	ErrorDesc string `json:"error_description"`
	Data      struct {
		Column []string    `json:"column"`
		Item   [][]float64 `json:"item"`
	} `json:"data"`
}

// LastPrice fetches the most recent 1-minute candle and returns its
// close in cents.
func (s *XueqiuSource) LastPrice(ctx context.Context, symbol, market string) (int64, error) {
	creds := s.creds.Load()
	if creds == nil {
		return 0, fmt.Errorf("xueqiu credentials not configured")
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("period", "1m")
	q.Set("type", "before")
	q.Set("count", "-1")
	q.Set("begin", strconv.FormatInt(time.Now().UnixMilli(), 10))

	reqURL := s.baseURL + "/v5/stock/chart/kline.json?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cookie", creds.Cookie)
	req.Header.Set("User-Agent", creds.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("xueqiu kline request returned %d", resp.StatusCode)
	}

	var kr klineResponse
	if err := json.NewDecoder(resp.Body).Decode(&kr); err != nil {
		return 0, fmt.Errorf("decoding kline response: %w", err)
	}
	if kr.ErrorCode != 0 {
		return 0, fmt.Errorf("xueqiu error %d: %s", kr.ErrorCode, kr.ErrorDesc)
	}

	closeIdx := -1
	for i, col := range kr.Data.Column {
		if col == "close" {
			closeIdx = i
			break
		}
	}
	if closeIdx < 0 || len(kr.Data.Item) == 0 {
		return 0, fmt.Errorf("kline response for %s has no close column", symbol)
	}

	last := kr.Data.Item[len(kr.Data.Item)-1]
	if closeIdx >= len(last) {
		return 0, fmt.Errorf("kline row for %s shorter than column list", symbol)
	}

	cents, err := domain.DollarsToCents(roundToCents(last[closeIdx]))
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, fmt.Errorf("%w: %s.%s", ErrNoQuote, symbol, market)
	}
	return cents, nil
}

// roundToCents clamps an exchange price to two decimal places so that
// DollarsToCents accepts it.
func roundToCents(f float64) float64 {
	return math.Round(f*100) / 100
}
