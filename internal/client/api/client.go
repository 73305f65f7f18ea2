package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iudanet/campussync/pkg/api"
)

// ErrSchemaIncompatible is returned by PushBatch when the server's schema
// gate rejected the whole batch; the rejection response is returned with it
var ErrSchemaIncompatible = errors.New("schema incompatible with server")

// StatusError is a non-2xx answer from the server
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

//go:generate moq -out client_mock.go . ClientAPI

// ClientAPI is the server surface used by the client services
type ClientAPI interface {
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
	Fingerprint(ctx context.Context) (*api.FingerprintResponse, error)
	ValidateSchema(ctx context.Context, accessToken string, req api.ValidateSchemaRequest) (*api.ValidateSchemaResponse, error)
	PushBatch(ctx context.Context, accessToken string, req api.SyncBatchRequest) (*api.SyncBatchResponse, error)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ ClientAPI = (*Client)(nil)

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// пакет на сервере ограничен таймаутом партиций
			Timeout: 2 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// BaseURL returns the server address the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", "", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", "", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Fingerprint получает канонический отпечаток схемы
func (c *Client) Fingerprint(ctx context.Context) (*api.FingerprintResponse, error) {
	var resp api.FingerprintResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/schema/fingerprint", "", nil, &resp); err != nil {
		return nil, fmt.Errorf("fingerprint request failed: %w", err)
	}
	return &resp, nil
}

// ValidateSchema проверяет схему реплики без записи данных
func (c *Client) ValidateSchema(ctx context.Context, accessToken string, req api.ValidateSchemaRequest) (*api.ValidateSchemaResponse, error) {
	var resp api.ValidateSchemaResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/schema/validate", accessToken, req, &resp); err != nil {
		return nil, fmt.Errorf("validate schema request failed: %w", err)
	}
	return &resp, nil
}

// PushBatch отправляет пакет изменений. При отказе по схеме возвращает
// ответ сервера вместе с ErrSchemaIncompatible.
func (c *Client) PushBatch(ctx context.Context, accessToken string, req api.SyncBatchRequest) (*api.SyncBatchResponse, error) {
	status, body, err := c.send(ctx, http.MethodPost, "/api/v1/sync/batch", accessToken, req)
	if err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}

	if status == http.StatusPreconditionFailed {
		var resp api.SyncBatchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode rejection: %w", err)
		}
		return &resp, ErrSchemaIncompatible
	}

	var resp api.SyncBatchResponse
	if err := decodeResponse(status, body, &resp); err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос и декодирует успешный ответ в result
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, body, result any) error {
	status, respBody, err := c.send(ctx, method, path, accessToken, body)
	if err != nil {
		return err
	}
	return decodeResponse(status, respBody, result)
}

// send выполняет HTTP запрос и возвращает статус и тело ответа
func (c *Client) send(ctx context.Context, method, path, accessToken string, body any) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

func decodeResponse(status int, body []byte, result any) error {
	if status < 200 || status >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			return &StatusError{StatusCode: status, Message: errResp.Message}
		}
		return &StatusError{StatusCode: status}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
