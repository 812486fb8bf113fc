// Package okx implements the exchange gateway against the OKX v5 REST API
// for USDT-margined perpetual swaps.
package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"

	"okx-signal-bot/pkg/exchanges/common"
)

const (
	defaultBaseURL = "https://www.okx.com"
	tsLayout       = "2006-01-02T15:04:05.000Z"
)

// Config holds OKX API credentials and client options.
type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	BaseURL    string
	Simulated  bool // demo-trading accounts require the x-simulated-trading header
	Timeout    time.Duration
}

// Client talks to the OKX v5 REST API. Safe for concurrent use; a shared
// limiter paces all requests below the venue's per-key limits.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates an OKX v5 REST client.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		now:        time.Now,
	}
}

// UseClock makes signed requests carry timestamps from the venue-synced
// clock instead of the local one. Call during setup, before the client
// is shared between goroutines.
func (c *Client) UseClock(clock *common.Clock) {
	c.now = clock.Now
}

// ServerTime returns the venue's clock. Public endpoint, not signed.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var data []serverTimeData
	if err := c.call(ctx, http.MethodGet, "/api/v5/public/time", nil, false, &data); err != nil {
		return time.Time{}, fmt.Errorf("fetch server time: %w", err)
	}
	if len(data) == 0 {
		return time.Time{}, fmt.Errorf("fetch server time: %w", common.ErrNotFound)
	}
	ms := parseInt(data[0].Ts)
	if ms <= 0 {
		return time.Time{}, fmt.Errorf("fetch server time: bad timestamp %q", data[0].Ts)
	}
	return time.UnixMilli(ms), nil
}

// FetchTicker returns the last traded price for a canonical symbol.
func (c *Client) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	path := "/api/v5/market/ticker?instId=" + instID(symbol)
	var data []tickerData
	if err := c.call(ctx, http.MethodGet, path, nil, false, &data); err != nil {
		return 0, fmt.Errorf("fetch ticker %s: %w", symbol, err)
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("fetch ticker %s: %w", symbol, common.ErrNotFound)
	}
	last := parseFloat(data[0].Last)
	if last <= 0 {
		return 0, fmt.Errorf("fetch ticker %s: no last price", symbol)
	}
	return last, nil
}

// CreateOrder submits an order. The venue's per-order result code (sCode)
// is checked in addition to the envelope code.
func (c *Client) CreateOrder(ctx context.Context, req common.OrderRequest) (*common.Order, error) {
	body := placeOrderReq{
		InstID:     instID(req.Symbol),
		TdMode:     req.TdMode,
		Side:       string(req.Side),
		PosSide:    req.PosSide,
		OrdType:    string(req.Type),
		Sz:         formatFloat(req.Qty),
		ClOrdID:    req.ClientID,
		ReduceOnly: req.ReduceOnly,
	}
	if req.Type == common.OrderTypeLimit {
		body.Px = formatFloat(req.Price)
	}
	var data []placeOrderData
	if err := c.call(ctx, http.MethodPost, "/api/v5/trade/order", body, true, &data); err != nil {
		return nil, fmt.Errorf("create order %s %s: %w", req.Side, req.Symbol, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("create order %s %s: empty response", req.Side, req.Symbol)
	}
	d := data[0]
	if d.SCode != "" && d.SCode != "0" {
		return nil, fmt.Errorf("create order %s %s: %w", req.Side, req.Symbol,
			&common.APIError{Op: "create order", Code: d.SCode, Msg: d.SMsg})
	}
	return &common.Order{
		ID:       d.OrdID,
		ClientID: d.ClOrdID,
		Symbol:   req.Symbol,
		Status:   common.StatusLive,
		Qty:      req.Qty,
	}, nil
}

// FetchOrder returns the current state of an order.
func (c *Client) FetchOrder(ctx context.Context, orderID, symbol string) (*common.Order, error) {
	path := "/api/v5/trade/order?instId=" + instID(symbol) + "&ordId=" + orderID
	var data []orderData
	if err := c.call(ctx, http.MethodGet, path, nil, true, &data); err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, common.ErrNotFound)
	}
	d := data[0]
	avg := parseFloat(d.AvgPx)
	if avg <= 0 {
		avg = parseFloat(d.FillPx)
	}
	return &common.Order{
		ID:       d.OrdID,
		ClientID: d.ClOrdID,
		Symbol:   symbol,
		Status:   mapOrderState(d.State),
		Qty:      parseFloat(d.Sz),
		Filled:   parseFloat(d.AccFillSz),
		AvgPrice: avg,
		Created:  time.UnixMilli(parseInt(d.CTime)),
	}, nil
}

// FetchPositions lists open swap positions. Symbols may filter the
// request; nil requests everything. Positions whose direction cannot be
// attributed are returned with an empty Side so callers can skip them.
func (c *Client) FetchPositions(ctx context.Context, syms []string) ([]common.Position, error) {
	path := "/api/v5/account/positions?instType=SWAP"
	if len(syms) > 0 {
		ids := make([]string, 0, len(syms))
		for _, s := range syms {
			ids = append(ids, instID(s))
		}
		path += "&instId=" + strings.Join(ids, ",")
	}
	var data []positionData
	if err := c.call(ctx, http.MethodGet, path, nil, true, &data); err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	out := make([]common.Position, 0, len(data))
	for _, d := range data {
		sym := fromInstID(d.InstID)
		if sym == "" {
			continue
		}
		qty := parseFloat(d.Pos)
		if qty == 0 {
			continue
		}
		out = append(out, common.Position{
			Symbol:     sym,
			Side:       attributeSide(d.PosSide, qty),
			Qty:        abs(qty),
			EntryPrice: parseFloat(d.AvgPx),
			MarkPrice:  parseFloat(d.MarkPx),
			Leverage:   int(parseFloat(d.Lever)),
		})
	}
	return out, nil
}

// SetLeverage configures leverage under the given margin mode.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int, marginMode string) error {
	body := setLeverageReq{
		InstID:  instID(symbol),
		Lever:   strconv.Itoa(leverage),
		MgnMode: marginMode,
	}
	var data []json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/api/v5/account/set-leverage", body, true, &data); err != nil {
		return fmt.Errorf("set leverage %s: %w", symbol, err)
	}
	return nil
}

// call performs one API request, signing it when the endpoint is private,
// and decodes the envelope's data array into out.
func (c *Client) call(ctx context.Context, method, path string, body any, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = strings.NewReader(string(payload))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signed {
		ts := c.now().UTC().Format(tsLayout)
		req.Header.Set("OK-ACCESS-KEY", c.cfg.APIKey)
		req.Header.Set("OK-ACCESS-SIGN", sign(c.cfg.APISecret, ts, method, path, payload))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.cfg.Passphrase)
	}
	if c.cfg.Simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode == http.StatusTooManyRequests {
		return common.ErrRateLimited
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("okx %s %s status %d: %s", method, path, res.StatusCode, string(raw))
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != "0" {
		return &common.APIError{Op: method + " " + path, Code: envelope.Code, Msg: envelope.Msg}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// sign builds the OKX v5 request signature: base64(HMAC-SHA256(secret,
// timestamp + method + requestPath + body)).
func sign(secret, ts, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + method + path))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// attributeSide resolves the direction of a venue position. Long/short
// mode reports posSide directly; net mode reports "net" with a signed
// quantity. Anything else is ambiguous and yields an empty side.
func attributeSide(posSide string, qty float64) common.PosSide {
	switch strings.ToLower(posSide) {
	case "long":
		return common.PosLong
	case "short":
		return common.PosShort
	case "net":
		if qty > 0 {
			return common.PosLong
		}
		if qty < 0 {
			return common.PosShort
		}
	}
	return ""
}

func mapOrderState(state string) common.OrderStatus {
	switch state {
	case "live":
		return common.StatusLive
	case "partially_filled":
		return common.StatusPartial
	case "filled":
		return common.StatusFilled
	case "canceled", "mmp_canceled":
		return common.StatusCanceled
	default:
		return common.StatusUnknown
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// apiResponse is the OKX v5 envelope; code "0" means success.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type tickerData struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
}

type serverTimeData struct {
	Ts string `json:"ts"`
}

type placeOrderReq struct {
	InstID     string `json:"instId"`
	TdMode     string `json:"tdMode"`
	Side       string `json:"side"`
	PosSide    string `json:"posSide,omitempty"`
	OrdType    string `json:"ordType"`
	Sz         string `json:"sz"`
	Px         string `json:"px,omitempty"`
	ClOrdID    string `json:"clOrdId,omitempty"`
	ReduceOnly bool   `json:"reduceOnly,omitempty"`
}

type placeOrderData struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

type orderData struct {
	OrdID     string `json:"ordId"`
	ClOrdID   string `json:"clOrdId"`
	InstID    string `json:"instId"`
	State     string `json:"state"`
	Sz        string `json:"sz"`
	AccFillSz string `json:"accFillSz"`
	AvgPx     string `json:"avgPx"`
	FillPx    string `json:"fillPx"`
	CTime     string `json:"cTime"`
}

type positionData struct {
	InstID  string `json:"instId"`
	PosSide string `json:"posSide"`
	Pos     string `json:"pos"`
	AvgPx   string `json:"avgPx"`
	MarkPx  string `json:"markPx"`
	Lever   string `json:"lever"`
}

type setLeverageReq struct {
	InstID  string `json:"instId"`
	Lever   string `json:"lever"`
	MgnMode string `json:"mgnMode"`
}
