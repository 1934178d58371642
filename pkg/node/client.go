package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

const (
	// PathStyleDash names endpoints like /create-transaction.
	PathStyleDash = "dash"

	// PathStyleUnderscore names endpoints like /create_transaction.
	PathStyleUnderscore = "underscore"

	endpointCreateTransaction = "create-transaction"
	endpointGetMetrics        = "get-metrics"
	endpointGetTransactions   = "get-transactions"
	endpointGetBalance        = "get-balance"

	maxBodySize = 16 << 20
)

// Client talks to a single node's HTTP API.
type Client interface {
	// CreateTransaction submits a transfer of amount to the receiver node.
	CreateTransaction(ctx context.Context, receiver, amount int) (*TransactionResult, error)

	// GetMetrics returns the node's chain metrics.
	GetMetrics(ctx context.Context) (*Metrics, error)

	// GetTransactions returns the transactions of the most recently
	// confirmed block.
	GetTransactions(ctx context.Context) ([]Transaction, error)

	// GetBalance returns the node wallet balance.
	GetBalance(ctx context.Context) (float64, error)
}

// Config for the node client.
type Config struct {
	BaseURL   string
	APIPrefix string
	PathStyle string
	Timeout   time.Duration
}

// TransactionResult is the decoded success response of create-transaction.
type TransactionResult struct {
	StatusCode int
	Message    string
	// MiningTime is the server-reported block mining time in seconds. Zero
	// when the transaction joined a block already in progress.
	MiningTime float64
	// Balance is nil when the node did not report one.
	Balance *float64
	// ServerTime is the time from request written to first response byte.
	ServerTime time.Duration
}

// Metrics is the node's chain metrics snapshot.
type Metrics struct {
	// NumBlocks includes the genesis block.
	NumBlocks  int `mapstructure:"num_blocks" json:"num_blocks"`
	Difficulty int `mapstructure:"difficulty" json:"difficulty"`
	Capacity   int `mapstructure:"capacity" json:"capacity"`
}

type transactionResponse struct {
	Message    string  `mapstructure:"message"`
	MiningTime float64 `mapstructure:"mining_time"`
	Balance    any     `mapstructure:"balance"`
}

type rawResponse struct {
	statusCode int
	body       []byte
	serverTime time.Duration
}

// NewClient creates a new node client.
func NewClient(log logrus.FieldLogger, cfg *Config) Client {
	return &client{
		log:  log.WithField("component", "node"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type client struct {
	log  logrus.FieldLogger
	cfg  *Config
	http *http.Client
}

// Ensure interface compliance.
var _ Client = (*client)(nil)

// CreateTransaction implements Client.
func (c *client) CreateTransaction(
	ctx context.Context,
	receiver, amount int,
) (*TransactionResult, error) {
	const op = "create transaction"

	form := url.Values{
		"receiver": {strconv.Itoa(receiver)},
		"amount":   {strconv.Itoa(amount)},
	}

	raw, err := c.do(ctx, op, http.MethodPost, endpointCreateTransaction,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}

	obj, decodeErr := decodeObject(raw.body)

	if !isSuccess(raw.statusCode) {
		perr := &ProtocolError{Op: op, StatusCode: raw.statusCode}
		if decodeErr == nil {
			perr.Message = stringField(obj, "message")
		}

		return nil, perr
	}

	if decodeErr != nil {
		return nil, &ProtocolError{Op: op, StatusCode: raw.statusCode, Err: decodeErr}
	}

	var resp transactionResponse
	if err := weakDecode(obj, &resp); err != nil {
		return nil, &ProtocolError{Op: op, StatusCode: raw.statusCode, Err: err}
	}

	if resp.MiningTime < 0 {
		return nil, &ProtocolError{
			Op:         op,
			StatusCode: raw.statusCode,
			Err:        fmt.Errorf("negative mining_time %g", resp.MiningTime),
		}
	}

	result := &TransactionResult{
		StatusCode: raw.statusCode,
		Message:    resp.Message,
		MiningTime: resp.MiningTime,
		ServerTime: raw.serverTime,
	}

	if balance, ok := toFloat(resp.Balance); ok {
		result.Balance = &balance
	}

	return result, nil
}

// GetMetrics implements Client.
func (c *client) GetMetrics(ctx context.Context) (*Metrics, error) {
	const op = "get metrics"

	obj, status, err := c.getObject(ctx, op, endpointGetMetrics)
	if err != nil {
		return nil, err
	}

	for _, key := range []string{"num_blocks", "difficulty", "capacity"} {
		if _, ok := obj[key]; !ok {
			return nil, &ProtocolError{
				Op:         op,
				StatusCode: status,
				Err:        fmt.Errorf("missing field %q", key),
			}
		}
	}

	var m Metrics
	if err := weakDecode(obj, &m); err != nil {
		return nil, &ProtocolError{Op: op, StatusCode: status, Err: err}
	}

	if m.NumBlocks < 0 || m.Difficulty < 0 || m.Capacity < 0 {
		return nil, &ProtocolError{
			Op:         op,
			StatusCode: status,
			Err: fmt.Errorf("negative metric (num_blocks=%d difficulty=%d capacity=%d)",
				m.NumBlocks, m.Difficulty, m.Capacity),
		}
	}

	return &m, nil
}

// GetBalance implements Client.
func (c *client) GetBalance(ctx context.Context) (float64, error) {
	const op = "get balance"

	obj, status, err := c.getObject(ctx, op, endpointGetBalance)
	if err != nil {
		return 0, err
	}

	balance, ok := toFloat(obj["balance"])
	if !ok {
		return 0, &ProtocolError{
			Op:         op,
			StatusCode: status,
			Err:        errors.New("missing or non-numeric balance"),
		}
	}

	return balance, nil
}

// getObject issues a GET and decodes a JSON object from a success response.
func (c *client) getObject(
	ctx context.Context,
	op, name string,
) (map[string]any, int, error) {
	raw, err := c.do(ctx, op, http.MethodGet, name, nil, "")
	if err != nil {
		return nil, 0, err
	}

	if !isSuccess(raw.statusCode) {
		perr := &ProtocolError{Op: op, StatusCode: raw.statusCode}
		if obj, err := decodeObject(raw.body); err == nil {
			perr.Message = stringField(obj, "message")
		}

		return nil, raw.statusCode, perr
	}

	obj, err := decodeObject(raw.body)
	if err != nil {
		return nil, raw.statusCode, &ProtocolError{Op: op, StatusCode: raw.statusCode, Err: err}
	}

	return obj, raw.statusCode, nil
}

// do executes a single request and reads the whole body. Only failures to
// obtain a response are returned as errors; status handling is up to the
// caller.
func (c *client) do(
	ctx context.Context,
	op, method, name string,
	body io.Reader,
	contentType string,
) (*rawResponse, error) {
	endpoint := c.endpoint(name)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &TransportError{Op: op, URL: endpoint, Err: fmt.Errorf("creating request: %w", err)}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	req.Header.Set("Accept", "application/json")

	// Server time is measured from request written to first response byte.
	var wroteRequest, gotFirstByte time.Time

	trace := &httptrace.ClientTrace{
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			wroteRequest = time.Now()
		},
		GotFirstResponseByte: func() {
			gotFirstByte = time.Now()
		},
	}

	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: endpoint, Err: err}
	}

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Op: op, URL: endpoint, Err: fmt.Errorf("reading response: %w", err)}
	}

	raw := &rawResponse{
		statusCode: resp.StatusCode,
		body:       data,
	}

	if !wroteRequest.IsZero() && !gotFirstByte.IsZero() {
		raw.serverTime = gotFirstByte.Sub(wroteRequest)
	}

	c.log.WithFields(logrus.Fields{
		"method":      method,
		"endpoint":    endpoint,
		"status":      resp.StatusCode,
		"server_time": raw.serverTime,
	}).Debug("Node request completed")

	return raw, nil
}

// endpoint builds the absolute URL for a named endpoint.
func (c *client) endpoint(name string) string {
	if c.cfg.PathStyle == PathStyleUnderscore {
		name = strings.ReplaceAll(name, "-", "_")
	}

	base := strings.TrimRight(c.cfg.BaseURL, "/")

	if prefix := strings.Trim(c.cfg.APIPrefix, "/"); prefix != "" {
		base += "/" + prefix
	}

	return base + "/" + name
}

// isSuccess reports whether the node accepted the request. Nodes answer
// 200 on success; any other status, 2xx included, is a protocol failure.
func isSuccess(status int) bool {
	return status == http.StatusOK
}

// decodeObject parses body as a JSON object.
func decodeObject(body []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("parsing response body: %w", err)
	}

	if obj == nil {
		return nil, errors.New("response body is not an object")
	}

	return obj, nil
}

// weakDecode maps a loosely typed JSON object onto out, accepting numbers
// encoded as strings.
func weakDecode(obj map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	if err := dec.Decode(obj); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)

	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
