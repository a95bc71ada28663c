package odoo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a minimal JSON-RPC client for the ERP's /jsonrpc endpoint. The
// numeric user id returned by login is cached for the life of the process and
// refreshed automatically when the server reports an expired session.
type Client struct {
	url      string
	database string
	username string
	apiKey   string

	httpClient *http.Client

	mu  sync.Mutex
	uid int

	nextID int64
}

func NewClient(url, database, username, apiKey string) *Client {
	return &Client{
		url:      strings.TrimRight(url, "/") + "/jsonrpc",
		database: database,
		username: username,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string        `json:"service"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

func (e *rpcError) Error() string {
	if e.Data.Message != "" {
		return e.Data.Message
	}
	return e.Message
}

// sessionFault reports whether the fault means our cached login is no longer
// valid on the server, as opposed to a genuine application error.
func (e *rpcError) sessionFault() bool {
	text := strings.ToLower(e.Data.Name + " " + e.Data.Message + " " + e.Message)
	return strings.Contains(text, "sessionexpired") ||
		strings.Contains(text, "session expired") ||
		strings.Contains(text, "accessdenied") ||
		strings.Contains(text, "access denied")
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(service, method string, args []interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      atomic.AddInt64(&c.nextID, 1),
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rpc request: %w", err)
	}

	httpResp, err := c.httpClient.Post(c.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rpc request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc request returned status %d", httpResp.StatusCode)
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Login authenticates against the common service and caches the numeric user
// id. Safe to call concurrently; only the first caller performs the round
// trip.
func (c *Client) Login() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.uid != 0 {
		return c.uid, nil
	}

	result, err := c.call("common", "login", []interface{}{c.database, c.username, c.apiKey})
	if err != nil {
		return 0, fmt.Errorf("login failed: %w", err)
	}

	var uid int
	if err := json.Unmarshal(result, &uid); err != nil {
		// A false result means the credentials were rejected.
		return 0, fmt.Errorf("login rejected for user %s", c.username)
	}
	if uid == 0 {
		return 0, fmt.Errorf("login rejected for user %s", c.username)
	}

	c.uid = uid
	return uid, nil
}

func (c *Client) invalidateLogin() {
	c.mu.Lock()
	c.uid = 0
	c.mu.Unlock()
}

// ExecuteKw invokes a model method through the object service. A session
// fault triggers one transparent re-login and retry; any other fault is
// returned to the caller.
func (c *Client) ExecuteKw(model, method string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, error) {
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	for attempt := 0; ; attempt++ {
		uid, err := c.Login()
		if err != nil {
			return nil, err
		}

		callArgs := []interface{}{c.database, uid, c.apiKey, model, method, args, kwargs}
		result, err := c.call("object", "execute_kw", callArgs)
		if err == nil {
			return result, nil
		}

		var fault *rpcError
		if ok := asRPCError(err, &fault); ok && fault.sessionFault() && attempt == 0 {
			c.invalidateLogin()
			continue
		}
		return nil, fmt.Errorf("%s.%s failed: %w", model, method, err)
	}
}

func asRPCError(err error, target **rpcError) bool {
	if fault, ok := err.(*rpcError); ok {
		*target = fault
		return true
	}
	return false
}

// SearchRead returns matching records as generic maps.
func (c *Client) SearchRead(model string, domain []interface{}, fields []string, limit int) ([]map[string]interface{}, error) {
	kwargs := map[string]interface{}{"fields": fields}
	if limit > 0 {
		kwargs["limit"] = limit
	}

	result, err := c.ExecuteKw(model, "search_read", []interface{}{domain}, kwargs)
	if err != nil {
		return nil, err
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(result, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s search_read result: %w", model, err)
	}
	return records, nil
}

// Create inserts one record and returns its id.
func (c *Client) Create(model string, values map[string]interface{}) (int, error) {
	result, err := c.ExecuteKw(model, "create", []interface{}{values}, nil)
	if err != nil {
		return 0, err
	}

	var id int
	if err := json.Unmarshal(result, &id); err != nil {
		return 0, fmt.Errorf("failed to decode %s create result: %w", model, err)
	}
	return id, nil
}

// Write updates one record in place.
func (c *Client) Write(model string, id int, values map[string]interface{}) error {
	_, err := c.ExecuteKw(model, "write", []interface{}{[]interface{}{id}, values}, nil)
	return err
}
