// Package txservice creates unsigned transactions and submits signed ones,
// either through the remote ethereum service or directly against a node.
package txservice

import (
	"context"
	"fmt"
)

// Params describe a payment to build a transaction for. Keys are "from",
// "to", "value" and optionally "data", all 0x-prefixed hex.
type Params map[string]any

// Response is the decoded JSON object a submission returned. It is kept
// even when submission fails, so callers can show what the service said.
type Response map[string]any

type Service interface {
	CreateUnsignedTransaction(ctx context.Context, params Params) (string, error)
	SendSignedTransaction(ctx context.Context, original, signature string) (Response, error)
}

// APIError is a non-2xx reply from the remote service.
type APIError struct {
	Status  int
	Payload Response
}

func (e *APIError) Error() string {
	if msg, ok := e.Payload.Message(); ok {
		return fmt.Sprintf("txservice: status %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("txservice: status %d", e.Status)
}

// Message extracts a human readable message from common error shapes:
// {"message": ...}, {"error": ...} or {"errors": [{"message": ...}]}.
func (r Response) Message() (string, bool) {
	if r == nil {
		return "", false
	}
	for _, k := range []string{"message", "error"} {
		if s, ok := r[k].(string); ok && s != "" {
			return s, true
		}
	}
	if list, ok := r["errors"].([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			if s, ok := first["message"].(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func (p Params) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
