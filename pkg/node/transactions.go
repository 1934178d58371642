package node

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"net/http"

	pickle "github.com/kisielk/og-rek"
)

// transactionFields is the arity of a serialized transaction row:
// (sender_id, receiver_id, amount, total, change).
const transactionFields = 5

// Transaction is one confirmed transfer in a block.
type Transaction struct {
	SenderID   int64 `json:"sender_id"`
	ReceiverID int64 `json:"receiver_id"`
	Amount     int64 `json:"amount"`
	Total      int64 `json:"total"`
	Change     int64 `json:"change"`
}

// GetTransactions implements Client. The node serves the listing as a
// pickled sequence of 5-tuples; the shape is checked row by row since the
// encoding is not versioned.
func (c *client) GetTransactions(ctx context.Context) ([]Transaction, error) {
	const op = "get transactions"

	raw, err := c.do(ctx, op, http.MethodGet, endpointGetTransactions, nil, "")
	if err != nil {
		return nil, err
	}

	if !isSuccess(raw.statusCode) {
		return nil, &ProtocolError{Op: op, StatusCode: raw.statusCode}
	}

	txs, err := DecodeTransactions(raw.body)
	if err != nil {
		return nil, &ProtocolError{Op: op, StatusCode: raw.statusCode, Err: err}
	}

	return txs, nil
}

// DecodeTransactions decodes a pickled transaction listing. None and an
// empty sequence both decode to an empty slice.
func DecodeTransactions(data []byte) ([]Transaction, error) {
	obj, err := pickle.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("decoding transaction listing: %w", err)
	}

	if _, ok := obj.(pickle.None); ok {
		return []Transaction{}, nil
	}

	rows, ok := asSequence(obj)
	if !ok {
		return nil, fmt.Errorf("transaction listing: expected a sequence, got %T", obj)
	}

	txs := make([]Transaction, 0, len(rows))

	for i, row := range rows {
		fields, ok := asSequence(row)
		if !ok {
			return nil, fmt.Errorf("transaction %d: expected a tuple, got %T", i, row)
		}

		if len(fields) != transactionFields {
			return nil, fmt.Errorf("transaction %d: expected %d fields, got %d",
				i, transactionFields, len(fields))
		}

		values := make([]int64, transactionFields)

		for j, f := range fields {
			v, ok := asInt(f)
			if !ok {
				return nil, fmt.Errorf("transaction %d field %d: expected an integer, got %T", i, j, f)
			}

			values[j] = v
		}

		txs = append(txs, Transaction{
			SenderID:   values[0],
			ReceiverID: values[1],
			Amount:     values[2],
			Total:      values[3],
			Change:     values[4],
		})
	}

	return txs, nil
}

func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case pickle.Tuple:
		return []any(s), true
	default:
		return nil, false
	}
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case *big.Int:
		if !n.IsInt64() {
			return 0, false
		}

		return n.Int64(), true
	default:
		return 0, false
	}
}
