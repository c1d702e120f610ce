package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockServer is an OpenAI-compatible HTTP server for tests. Responses are
// configured per path, either as a fixed response or as a scripted queue
// consumed one request at a time.
type MockServer struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses map[string]MockResponse
	queues    map[string][]MockResponse
	requests  []RecordedRequest
}

// MockResponse defines a mock response.
type MockResponse struct {
	StatusCode int
	Body       interface{}
	Delay      time.Duration
	Headers    map[string]string
}

// RecordedRequest is a request received by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// NewMockServer starts a mock server.
func NewMockServer() *MockServer {
	ms := &MockServer{
		responses: make(map[string]MockResponse),
		queues:    make(map[string][]MockResponse),
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close shuts the server down.
func (ms *MockServer) Close() {
	ms.server.CloseClientConnections()
	ms.server.Close()
}

// SetResponse sets the fallback response for path.
func (ms *MockServer) SetResponse(path string, response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[path] = response
}

// Enqueue appends scripted responses for path. Each request consumes one;
// once the queue is empty the fallback response applies.
func (ms *MockServer) Enqueue(path string, responses ...MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.queues[path] = append(ms.queues[path], responses...)
}

// RequestCount returns the number of requests received on any path.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.requests)
}

// RequestCountFor returns the number of requests received on path.
func (ms *MockServer) RequestCountFor(path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	for _, r := range ms.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Requests returns the recorded requests in arrival order.
func (ms *MockServer) Requests() []RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]RecordedRequest, len(ms.requests))
	copy(out, ms.requests)
	return out
}

// LastJSON decodes the body of the most recent request.
func (ms *MockServer) LastJSON() (map[string]interface{}, error) {
	reqs := ms.Requests()
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no requests received")
	}
	var body map[string]interface{}
	if err := json.Unmarshal(reqs[len(reqs)-1].Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode request body: %w", err)
	}
	return body, nil
}

func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	ms.mu.Lock()
	ms.requests = append(ms.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	response, ok := ms.next(r.URL.Path)
	ms.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	if response.Body != nil {
		if _, isString := response.Body.(string); !isString {
			w.Header().Set("Content-Type", "application/json")
		}
	}

	status := response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	switch v := response.Body.(type) {
	case nil:
	case string:
		_, _ = w.Write([]byte(v))
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

// next must be called with mu held.
func (ms *MockServer) next(path string) (MockResponse, bool) {
	if q := ms.queues[path]; len(q) > 0 {
		ms.queues[path] = q[1:]
		return q[0], true
	}
	resp, ok := ms.responses[path]
	return resp, ok
}

// MockToolCall describes a tool call in a mock completion.
type MockToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// MockChatCompletion returns a chat completion body with text content.
func MockChatCompletion(content, model string) map[string]interface{} {
	return chatCompletion(model, map[string]interface{}{
		"role":    "assistant",
		"content": content,
	}, "stop")
}

// MockToolCallCompletion returns a chat completion body requesting calls.
func MockToolCallCompletion(model string, calls ...MockToolCall) map[string]interface{} {
	toolCalls := make([]map[string]interface{}, 0, len(calls))
	for i, c := range calls {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}
		args := c.Arguments
		if args == "" {
			args = "{}"
		}
		toolCalls = append(toolCalls, map[string]interface{}{
			"id":   id,
			"type": "function",
			"function": map[string]interface{}{
				"name":      c.Name,
				"arguments": args,
			},
		})
	}
	return chatCompletion(model, map[string]interface{}{
		"role":       "assistant",
		"content":    nil,
		"tool_calls": toolCalls,
	}, "tool_calls")
}

func chatCompletion(model string, message map[string]interface{}, finish string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       message,
				"finish_reason": finish,
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// OK wraps a body in a 200 response.
func OK(body interface{}) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: body}
}

// MockErrorResponse returns an OpenAI-style error response.
func MockErrorResponse(statusCode int, message string) MockResponse {
	return MockResponse{
		StatusCode: statusCode,
		Body: map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
				"type":    "invalid_request_error",
				"code":    statusCode,
			},
		},
	}
}

// MockAuthError returns a 401 response.
func MockAuthError() MockResponse {
	return MockErrorResponse(http.StatusUnauthorized, "Invalid API key")
}

// MockRateLimitError returns a 429 response with Retry-After.
func MockRateLimitError(retryAfter int) MockResponse {
	response := MockErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	response.Headers = map[string]string{"Retry-After": fmt.Sprintf("%d", retryAfter)}
	return response
}

// MockServerError returns a 500 response.
func MockServerError() MockResponse {
	return MockErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// MockSlowResponse delays a successful completion.
func MockSlowResponse(delay time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       MockChatCompletion("too late", "test-model"),
		Delay:      delay,
	}
}
