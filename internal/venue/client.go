// Package venue adapts the trading venue's public portal: metadata uploads to
// its IPFS pinning endpoint and unsigned transaction construction through
// trade-local. The venue never sees a private key; returned transactions are
// signed and submitted by the executor.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/observability"
)

// Defaults matching the venue's public portal behavior.
const (
	DefaultTimeout = 60 * time.Second
	// DefaultSlippagePercent tolerated on create and sell trades.
	DefaultSlippagePercent = 10
	// CreatePool is the bonding-curve pool new tokens launch into.
	CreatePool = "pump"
	// SellPool lets the portal route sells to wherever liquidity lives.
	SellPool = "auto"
)

// DefaultPriorityFeeSOL is the per-transaction priority fee.
var DefaultPriorityFeeSOL = decimal.RequireFromString("0.00001")

// PortalError is a non-2xx response from the portal, preserved verbatim so
// callers can surface the venue's own diagnostics.
type PortalError struct {
	Status int
	Body   string
}

func (e *PortalError) Error() string {
	return fmt.Sprintf("portal error: status %d: %s", e.Status, e.Body)
}

// Client talks to the venue portal.
type Client struct {
	portalURL string
	ipfsURL   string
	apiKey    string

	priorityFee decimal.Decimal
	slippage    int

	client  *http.Client
	logger  *log.Logger
	metrics *observability.Metrics
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPIKey authenticates portal requests.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithPriorityFee overrides the default priority fee in SOL.
func WithPriorityFee(fee decimal.Decimal) ClientOption {
	return func(c *Client) {
		c.priorityFee = fee
	}
}

// WithSlippagePercent overrides the default trade slippage.
func WithSlippagePercent(pct int) ClientOption {
	return func(c *Client) {
		c.slippage = pct
	}
}

// WithMetrics records portal call outcomes per action.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a venue portal client.
func NewClient(portalURL, ipfsURL string, opts ...ClientOption) *Client {
	c := &Client{
		portalURL:   portalURL,
		ipfsURL:     ipfsURL,
		priorityFee: DefaultPriorityFeeSOL,
		slippage:    DefaultSlippagePercent,
		client:      &http.Client{Timeout: DefaultTimeout},
		logger:      log.New(os.Stdout, "[venue] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadMetadata fetches the token image and pins it with the display fields
// to the venue's IPFS endpoint, returning the metadata URI the create
// transaction references.
func (c *Client) UploadMetadata(ctx context.Context, meta domain.TokenMetadata) (_ string, err error) {
	defer func() { c.metrics.RecordVenueCall("uploadMetadata", outcomeLabel(err)) }()

	imgReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.ImageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create image request: %w", err)
	}
	imgResp, err := c.client.Do(imgReq)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer imgResp.Body.Close()

	if imgResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: status %d", imgResp.StatusCode)
	}
	image, err := io.ReadAll(imgResp.Body)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "image")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}

	fields := map[string]string{
		"name":        meta.Name,
		"symbol":      meta.Ticker,
		"description": meta.Description,
		"showName":    "true",
	}
	if meta.Twitter != "" {
		fields["twitter"] = meta.Twitter
	}
	if meta.Telegram != "" {
		fields["telegram"] = meta.Telegram
	}
	if meta.Website != "" {
		fields["website"] = meta.Website
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return "", fmt.Errorf("write form field %s: %w", key, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ipfsURL, &body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload metadata: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &PortalError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed struct {
		MetadataURI string `json:"metadataUri"`
		Metadata    struct {
			URI string `json:"uri"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal upload response: %w", err)
	}

	uri := parsed.MetadataURI
	if uri == "" {
		uri = parsed.Metadata.URI
	}
	if uri == "" {
		return "", fmt.Errorf("upload response carries no metadata uri: %s", string(respBody))
	}
	return uri, nil
}

// tradeLocalRequest is the portal's unsigned-transaction build request. The
// portal expects amount and priorityFee as JSON numbers, so the decimals are
// converted to json.Number at this boundary; decimal.Decimal itself marshals
// to a quoted string, which the portal rejects.
type tradeLocalRequest struct {
	PublicKey        string             `json:"publicKey"`
	Action           string             `json:"action"`
	TokenMetadata    *tradeLocalTokenMD `json:"tokenMetadata,omitempty"`
	Mint             string             `json:"mint,omitempty"`
	DenominatedInSol string             `json:"denominatedInSol,omitempty"`
	Amount           json.Number        `json:"amount,omitempty"`
	Slippage         int                `json:"slippage,omitempty"`
	PriorityFee      json.Number        `json:"priorityFee"`
	Pool             string             `json:"pool,omitempty"`
}

// jsonAmount renders a decimal as the number literal the portal expects.
func jsonAmount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type tradeLocalTokenMD struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}

// BuildCreateTx requests an unsigned token-creation transaction. buySOL is
// the initial buy denominated in SOL; zero means create without buying.
func (c *Client) BuildCreateTx(ctx context.Context, payer, mint, metadataURI string, buySOL decimal.Decimal) ([]byte, error) {
	return c.tradeLocal(ctx, tradeLocalRequest{
		PublicKey:        payer,
		Action:           "create",
		TokenMetadata:    &tradeLocalTokenMD{URI: metadataURI},
		Mint:             mint,
		DenominatedInSol: "true",
		Amount:           jsonAmount(buySOL),
		Slippage:         c.slippage,
		PriorityFee:      jsonAmount(c.priorityFee),
		Pool:             CreatePool,
	})
}

// BuildSellTx requests an unsigned sell transaction. amountTokens is
// denominated in whole tokens, already truncated by the caller.
func (c *Client) BuildSellTx(ctx context.Context, seller, mint string, amountTokens decimal.Decimal) ([]byte, error) {
	return c.tradeLocal(ctx, tradeLocalRequest{
		PublicKey:        seller,
		Action:           "sell",
		Mint:             mint,
		DenominatedInSol: "false",
		Amount:           jsonAmount(amountTokens),
		Slippage:         c.slippage,
		PriorityFee:      jsonAmount(c.priorityFee),
		Pool:             SellPool,
	})
}

// BuildCollectCreatorFeeTx requests an unsigned transaction that moves
// accrued creator rewards into the creator's wallet.
func (c *Client) BuildCollectCreatorFeeTx(ctx context.Context, creator string) ([]byte, error) {
	return c.tradeLocal(ctx, tradeLocalRequest{
		PublicKey:   creator,
		Action:      "collectCreatorFee",
		PriorityFee: jsonAmount(c.priorityFee),
	})
}

// tradeLocal posts a build request and decodes the unsigned transaction from
// the response body.
func (c *Client) tradeLocal(ctx context.Context, payload tradeLocalRequest) (_ []byte, err error) {
	defer func() { c.metrics.RecordVenueCall(payload.Action, outcomeLabel(err)) }()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal trade request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.portalURL+"/trade-local", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create trade request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trade request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trade response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &PortalError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return decodeTxBody(respBody)
}

// decodeTxBody extracts transaction bytes from a portal response. The portal
// usually answers with raw bytes, but some deployments wrap a base58 string
// in JSON (as a bare string, an array, or under "transaction"/"transactions").
func decodeTxBody(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty trade response")
	}

	var wrapped interface{}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		// Not JSON: the body is the transaction itself.
		return body, nil
	}

	encoded := firstTxString(wrapped)
	if encoded == "" {
		return nil, fmt.Errorf("unexpected trade response body: %s", string(body))
	}
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode transaction from response: %w", err)
	}
	return raw, nil
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func firstTxString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []interface{}:
		if len(val) > 0 {
			return firstTxString(val[0])
		}
	case map[string]interface{}:
		if txs, ok := val["transactions"]; ok {
			return firstTxString(txs)
		}
		if tx, ok := val["transaction"]; ok {
			return firstTxString(tx)
		}
	}
	return ""
}
