// Package restapi is the client for the marketplace REST collaborator. It
// only issues commands and fetches authoritative lists; canonical state is
// never mutated from a REST response.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribemarket/scribemarket/internal/events"
)

// ErrAuthExpired is returned when the bearer token is rejected. Callers
// tear down the session in response.
var ErrAuthExpired = errors.New("bearer token rejected")

// APIError is a non-2xx response other than an auth rejection.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// SendMessageRequest is the outbound chat message payload. ClientRef is the
// idempotency token echoed back on the confirming event.
type SendMessageRequest struct {
	ReceiverID     string `json:"receiverId"`
	JobID          string `json:"jobId,omitempty"`
	TrainingRoomID string `json:"trainingRoomId,omitempty"`
	MessageText    string `json:"messageText"`
	FileURL        string `json:"fileUrl,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	ClientRef      string `json:"clientRef,omitempty"`
}

// Upload describes a stored attachment.
type Upload struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
}

// Feedback accompanies a client-side job completion.
type Feedback struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// InitiatePaymentRequest starts a payment with the external provider.
type InitiatePaymentRequest struct {
	JobID  string `json:"jobId"`
	Amount int64  `json:"amount"`
	Method string `json:"method"`
}

// PaymentInit is the provider handle for a started payment.
type PaymentInit struct {
	Reference string `json:"reference"`
}

// PaymentVerification is the outcome of the verify call. Seq carries the
// job event sequence assigned to the resulting hired transition.
type PaymentVerification struct {
	Verified bool  `json:"verified"`
	Seq      int64 `json:"seq"`
}

// JobRecord is the authoritative job representation returned by list
// fetches during resynchronization.
type JobRecord struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	ClientID    string    `json:"client_id"`
	ProviderID  string    `json:"provider_id"`
	AgreedPrice int64     `json:"agreed_price"`
	CreatedAt   time.Time `json:"created_at"`
	Seq         int64     `json:"seq"`
}

// Client is the REST collaborator contract consumed by the sync engine.
type Client interface {
	SendMessage(ctx context.Context, req SendMessageRequest) error
	UploadAttachment(ctx context.Context, fileName string, content io.Reader) (*Upload, error)

	AcceptNegotiation(ctx context.Context, jobID string) error
	RejectNegotiation(ctx context.Context, jobID string) error
	CounterNegotiation(ctx context.Context, jobID string, price int64) error
	CancelNegotiation(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string, fb *Feedback) error

	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*PaymentInit, error)
	VerifyPayment(ctx context.Context, reference string) (*PaymentVerification, error)

	ListJobs(ctx context.Context) ([]JobRecord, error)
	ListMessages(ctx context.Context, roomID string) ([]events.ChatMessage, error)
}

// HTTPClient implements Client against the marketplace API.
type HTTPClient struct {
	baseURL string
	token   string
	hc      *http.Client
	logger  zerolog.Logger
}

// NewHTTPClient creates a REST client with the session's bearer token.
func NewHTTPClient(baseURL, token string, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		hc:      &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With().Str("service", "restapi").Logger(),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decodeResponse(resp, out)
}

func (c *HTTPClient) decodeResponse(resp *http.Response, out any) error {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrAuthExpired
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN"}
		var parsed struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &parsed) == nil {
			if parsed.Error != "" {
				apiErr.Code = parsed.Error
			}
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, req SendMessageRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/messages", req, nil)
}

func (c *HTTPClient) UploadAttachment(ctx context.Context, fileName string, content io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/uploads", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var up Upload
	if err := c.decodeResponse(resp, &up); err != nil {
		return nil, err
	}
	return &up, nil
}

func (c *HTTPClient) AcceptNegotiation(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/v1/negotiations/"+url.PathEscape(jobID)+"/accept", nil, nil)
}

func (c *HTTPClient) RejectNegotiation(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/v1/negotiations/"+url.PathEscape(jobID)+"/reject", nil, nil)
}

func (c *HTTPClient) CounterNegotiation(ctx context.Context, jobID string, price int64) error {
	body := map[string]int64{"price": price}
	return c.do(ctx, http.MethodPost, "/v1/negotiations/"+url.PathEscape(jobID)+"/counter", body, nil)
}

func (c *HTTPClient) CancelNegotiation(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/v1/negotiations/"+url.PathEscape(jobID)+"/cancel", nil, nil)
}

func (c *HTTPClient) CompleteJob(ctx context.Context, jobID string, fb *Feedback) error {
	return c.do(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/complete", fb, nil)
}

func (c *HTTPClient) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*PaymentInit, error) {
	var init PaymentInit
	if err := c.do(ctx, http.MethodPost, "/v1/payments/initiate", req, &init); err != nil {
		return nil, err
	}
	return &init, nil
}

func (c *HTTPClient) VerifyPayment(ctx context.Context, reference string) (*PaymentVerification, error) {
	body := map[string]string{"reference": reference}
	var v PaymentVerification
	if err := c.do(ctx, http.MethodPost, "/v1/payments/verify", body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) ListJobs(ctx context.Context) ([]JobRecord, error) {
	var out struct {
		Jobs []JobRecord `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *HTTPClient) ListMessages(ctx context.Context, roomID string) ([]events.ChatMessage, error) {
	var out struct {
		Messages []events.ChatMessage `json:"messages"`
	}
	path := "/v1/messages?room=" + url.QueryEscape(roomID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}
