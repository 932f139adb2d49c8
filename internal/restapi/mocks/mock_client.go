package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/scribemarket/scribemarket/internal/events"
	"github.com/scribemarket/scribemarket/internal/restapi"
)

// MockClient is a mock implementation of restapi.Client
type MockClient struct {
	mock.Mock
}

func (m *MockClient) SendMessage(ctx context.Context, req restapi.SendMessageRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockClient) UploadAttachment(ctx context.Context, fileName string, content io.Reader) (*restapi.Upload, error) {
	args := m.Called(ctx, fileName, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*restapi.Upload), args.Error(1)
}

func (m *MockClient) AcceptNegotiation(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockClient) RejectNegotiation(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockClient) CounterNegotiation(ctx context.Context, jobID string, price int64) error {
	args := m.Called(ctx, jobID, price)
	return args.Error(0)
}

func (m *MockClient) CancelNegotiation(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockClient) CompleteJob(ctx context.Context, jobID string, fb *restapi.Feedback) error {
	args := m.Called(ctx, jobID, fb)
	return args.Error(0)
}

func (m *MockClient) InitiatePayment(ctx context.Context, req restapi.InitiatePaymentRequest) (*restapi.PaymentInit, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*restapi.PaymentInit), args.Error(1)
}

func (m *MockClient) VerifyPayment(ctx context.Context, reference string) (*restapi.PaymentVerification, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*restapi.PaymentVerification), args.Error(1)
}

func (m *MockClient) ListJobs(ctx context.Context) ([]restapi.JobRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]restapi.JobRecord), args.Error(1)
}

func (m *MockClient) ListMessages(ctx context.Context, roomID string) ([]events.ChatMessage, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]events.ChatMessage), args.Error(1)
}
