package sweep

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type rpcHandler func(method string, params []json.RawMessage) (any, error)

// rpcNode is a JSON-RPC 2.0 endpoint answering from handle and recording
// the methods it saw.
type rpcNode struct {
	*httptest.Server
	mu      sync.Mutex
	methods []string
}

func newRPCNode(t *testing.T, handle rpcHandler) *rpcNode {
	t.Helper()
	node := &rpcNode{}
	node.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Id     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		node.mu.Lock()
		node.methods = append(node.methods, req.Method)
		node.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": req.Id}
		result, err := handle(req.Method, req.Params)
		if err != nil {
			resp["error"] = map[string]any{"code": -32000, "message": err.Error()}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(node.Close)
	return node
}

func (n *rpcNode) called(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.methods {
		if m == method {
			count++
		}
	}
	return count
}
