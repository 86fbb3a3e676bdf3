// Package reverb клиент API маркетплейса. Все сбои возвращаются
// типизированными результатами, а не ошибками
package reverb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/internal/metrics"
)

const (
	halJSON = "application/hal+json"

	opFetch   = "fetch"
	opCreate  = "create"
	opPublish = "publish"
)

// Client обращается к API маркетплейса от имени одного токена
type Client struct {
	baseURL       string
	acceptVersion string
	token         string
	http          *http.Client
}

// New создает клиента. httpClient == nil - используется http.DefaultClient
func New(baseURL, acceptVersion, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		acceptVersion: acceptVersion,
		token:         token,
		http:          httpClient,
	}
}

// NewHTTPClient возвращает http.Client с заданным таймаутом; 0 - без таймаута
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// FetchListing получает исходное объявление. Успехом считается только 200
func (c *Client) FetchListing(ctx context.Context, listingID string) models.FetchResult {
	status, body, err := c.do(ctx, opFetch, http.MethodGet, "/listings/"+url.PathEscape(listingID), nil)
	if status == 0 {
		return models.FetchResult{Kind: models.FetchTransportError, Err: err}
	}

	switch {
	case status == http.StatusNotFound:
		return models.FetchResult{Kind: models.FetchNotFound, StatusCode: status}
	case status != http.StatusOK:
		return models.FetchResult{
			Kind:       models.FetchFailed,
			StatusCode: status,
			Err:        &HTTPError{Method: http.MethodGet, URL: c.baseURL + "/listings/" + listingID, StatusCode: status, Body: body},
		}
	case err != nil:
		return models.FetchResult{Kind: models.FetchFailed, StatusCode: status, Err: err}
	}

	var listing models.SourceListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return models.FetchResult{
			Kind:       models.FetchFailed,
			StatusCode: status,
			Err:        fmt.Errorf("некорректный JSON объявления: %w body=%s", err, snippet(body, 300)),
		}
	}

	return models.FetchResult{Kind: models.FetchOK, Listing: &listing, StatusCode: status}
}

// createResponse id нового черновика бывает в корне или в listing
type createResponse struct {
	ID      json.RawMessage `json:"id"`
	Listing *struct {
		ID json.RawMessage `json:"id"`
	} `json:"listing"`
	Message string `json:"message"`
}

// CreateDraft создает черновик. Успех - 200, 201 или 202 и наличие id в ответе
func (c *Client) CreateDraft(ctx context.Context, payload models.DraftPayload) models.CreateResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.CreateResult{Err: fmt.Errorf("ошибка сериализации черновика: %w", err)}
	}

	status, body, readErr := c.do(ctx, opCreate, http.MethodPost, "/listings", data)
	if status == 0 {
		return models.CreateResult{Err: readErr}
	}

	var resp createResponse
	decodeErr := json.Unmarshal(body, &resp)

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		msg := resp.Message
		if decodeErr != nil || msg == "" {
			msg = "Status " + strconv.Itoa(status)
		}
		return models.CreateResult{StatusCode: status, Message: msg}
	}

	if readErr != nil {
		return models.CreateResult{StatusCode: status, Message: readErr.Error(), Err: readErr}
	}
	if decodeErr != nil {
		return models.CreateResult{StatusCode: status, Message: "ответ без JSON: " + snippet(body, 120)}
	}

	draftID := rawID(resp.ID)
	if draftID == "" && resp.Listing != nil {
		draftID = rawID(resp.Listing.ID)
	}
	if draftID == "" {
		return models.CreateResult{StatusCode: status, Message: "в ответе нет id черновика"}
	}

	return models.CreateResult{OK: true, DraftID: draftID, StatusCode: status}
}

// PublishListing переводит черновик в опубликованное состояние.
// Успех определяется только классом статуса: тело какое-то время
// продолжает сообщать state "draft"
func (c *Client) PublishListing(ctx context.Context, draftID string) models.PublishResult {
	data, _ := json.Marshal(models.PublishPayload{Publish: true})

	status, body, err := c.do(ctx, opPublish, http.MethodPut, "/listings/"+url.PathEscape(draftID), data)
	if status == 0 {
		return models.PublishResult{Message: err.Error(), Err: err}
	}

	// Тело успешного ответа не читается: даже нечитаемое тело не отменяет публикацию
	if status >= 200 && status < 300 {
		return models.PublishResult{OK: true, StatusCode: status, Message: "Success"}
	}

	return models.PublishResult{StatusCode: status, Message: publishFailureMessage(status, body)}
}

func publishFailureMessage(status int, body []byte) string {
	var resp struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "Status " + strconv.Itoa(status)
	}
	if resp.Message == nil || *resp.Message == "" {
		return "API Error"
	}
	return *resp.Message
}

// rawID приводит id из JSON (строка или число) к строке; null, "" и 0 считаются отсутствием
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return ""
		}
		return strings.TrimSpace(str)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	if f, err := n.Float64(); err == nil && f == 0 {
		return ""
	}
	return n.String()
}

// do выполняет запрос. status 0 означает, что ответа не было; при ошибке чтения
// тела status сохраняется, а body равен nil
func (c *Client) do(ctx context.Context, operation, method, path string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", halJSON)
	req.Header.Set("Accept", halJSON)
	req.Header.Set("Accept-Version", c.acceptVersion)
	req.Header.Set("Accept-Encoding", "br, gzip")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamDuration.WithLabelValues(operation, "error").Observe(time.Since(start).Seconds())
		return 0, nil, err
	}

	body, err := readBody(resp)
	metrics.UpstreamDuration.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("ошибка чтения ответа %s %s: %w", method, path, err)
	}

	return resp.StatusCode, body, nil
}
