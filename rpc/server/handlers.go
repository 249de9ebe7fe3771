package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dRelay/rpc/common"
)

// EchoHandler answers every request with its own payload
func EchoHandler() HandlerFunc {
	return func(_ context.Context, req []byte) []byte {
		return req
	}
}

// StaticHandler answers every request with resp
func StaticHandler(resp []byte) HandlerFunc {
	return func(_ context.Context, _ []byte) []byte {
		return resp
	}
}

// TableHandler answers requests found in table with the stored response and all others with
// fallback. Keys are hex encoded requests, spaces and case are ignored.
func TableHandler(table map[string]string, fallback []byte) (HandlerFunc, error) {
	responses := make(map[string][]byte, len(table))
	for reqHex, respHex := range table {
		req, err := common.ParseAPDU(reqHex)
		if err != nil {
			return nil, fmt.Errorf("request %q: %w", reqHex, err)
		}
		resp, err := common.ParseAPDU(respHex)
		if err != nil {
			return nil, fmt.Errorf("response for %q: %w", reqHex, err)
		}
		responses[tableKey(req)] = resp
	}

	return func(_ context.Context, req []byte) []byte {
		if resp, ok := responses[tableKey(req)]; ok {
			return resp
		}
		return fallback
	}, nil
}

func tableKey(b []byte) string {
	return strings.ToUpper(fmt.Sprintf("%x", b))
}
