package llm

import "context"

// MockClient is a test double, grounded on llm.MockClient: a configurable
// CompleteFunc with call tracking, defaulting to a simple echo if none is
// supplied.
type MockClient struct {
	CompleteFunc func(ctx context.Context, req CompletionRequest) (string, error)

	CallCount   int
	LastRequest CompletionRequest
}

// NewMockClient returns a MockClient with default echo behavior.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.CallCount++
	m.LastRequest = req
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "echo: " + req.Prompt, nil
}
