// Package client is a Go client for the PDF2XML API, plus a Tracker that
// polls a conversion until it finishes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Code)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client is an HTTP client for the PDF2XML API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the server at baseURL, authenticating with a
// Bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // uploads wait for the inline result
		},
	}
}

// SubmitResult is the outcome of an upload. Result is set when the server
// finished the conversion before answering.
type SubmitResult struct {
	ConversionID string
	Status       models.ConversionStatus
	Result       *models.ConvertResult
}

// Submit uploads a PDF for conversion.
func (c *Client) Submit(ctx context.Context, filename string, r io.Reader, structure models.StructureType, tags []string) (*SubmitResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if structure != "" {
		_ = mw.WriteField("structure_type", string(structure))
	}
	if len(tags) > 0 {
		_ = mw.WriteField("tags", strings.Join(tags, ","))
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/conversions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusAccepted {
		var queued models.SubmitResponse
		if err := json.Unmarshal(data, &queued); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &SubmitResult{ConversionID: queued.ConversionID, Status: queued.Status}, nil
	}

	var done models.ConvertResult
	if err := json.Unmarshal(data, &done); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &SubmitResult{ConversionID: done.ConversionID, Status: models.StatusCompleted, Result: &done}, nil
}

// Get fetches a conversion. page > 0 asks for a single page.
func (c *Client) Get(ctx context.Context, id string, page int) (*models.ConversionResponse, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	var out models.ConversionResponse
	if err := c.getJSON(ctx, "/conversions/"+url.PathEscape(id), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs an in-document search. current < 0 leaves the default
// selection.
func (c *Client) Search(ctx context.Context, id, query string, page, current int) (*models.SearchResponse, error) {
	q := url.Values{"q": {query}}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if current >= 0 {
		q.Set("current", strconv.Itoa(current))
	}
	var out models.SearchResponse
	if err := c.getJSON(ctx, "/conversions/"+url.PathEscape(id)+"/search", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns a page of conversions. params are passed through as query
// parameters (page, per_page, status, search, ...).
func (c *Client) List(ctx context.Context, params url.Values) (*models.PaginatedResponse[models.Conversion], error) {
	var out models.PaginatedResponse[models.Conversion]
	if err := c.getJSON(ctx, "/conversions", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download returns the XML file contents. page > 0 downloads one page.
func (c *Client) Download(ctx context.Context, id string, page int) ([]byte, error) {
	path := "/conversions/" + url.PathEscape(id) + "/download"
	if page > 0 {
		path += "?page=" + strconv.Itoa(page)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return readBody(resp)
}

// Delete removes a conversion.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/conversions/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, err = readBody(resp)
	return err
}

// Stats returns the caller's conversion summary.
func (c *Client) Stats(ctx context.Context) (*models.UserStats, error) {
	var out models.UserStats
	if err := c.getJSON(ctx, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, result any) error {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readBody returns the response body, or an *APIError for status >= 400.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp models.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			apiErr.Code = errResp.Error
			apiErr.Message = errResp.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}
	return body, nil
}
