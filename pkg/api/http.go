package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.uber.org/zap"

	"HealthCheckIn/config"
	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/errors"
	"HealthCheckIn/pkg/logger"
)

const (
	pathSubmissions = "/v1/check-ins/submissions"
	pathPoints      = "/v1/points"
	pathWeather     = "/v1/weather"
	pathQuestions   = "/v1/check-ins/%s/questions"
	pathSubmit      = "/v1/check-ins/%s/submissions"
)

// envelope 远端统一响应格式：{"data": ...}，兼容直接返回裸数据
type envelope struct {
	Data json.RawMessage `json:"data"`
}

type pointsPayload struct {
	Total int `json:"total"`
}

type submitPayload struct {
	Answers map[string]any `json:"answers"`
}

// HTTPClient 基于 hertz client 的远端 API 实现
type HTTPClient struct {
	cli     *client.Client
	baseURL string
	token   string
	timeout time.Duration
}

// Option 配置 HTTPClient
type Option func(*HTTPClient)

func WithToken(token string) Option {
	return func(c *HTTPClient) { c.token = token }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) { c.timeout = timeout }
}

// WithTracing 为出站请求注入链路追踪
func WithTracing() Option {
	return func(c *HTTPClient) { c.cli.Use(hertztracing.ClientMiddleware()) }
}

func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", baseURL, err)
	}

	cli, err := client.NewClient(
		client.WithDialTimeout(5*time.Second),
		client.WithMaxConnsPerHost(16),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hertz client: %w", err)
	}

	c := &HTTPClient{
		cli:     cli,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig 使用全局配置创建客户端
func NewFromConfig() (*HTTPClient, error) {
	opts := []Option{
		WithToken(config.Cfg.APIToken),
		WithTimeout(config.Cfg.APITimeout),
	}
	if config.Cfg.OTelEnabled {
		opts = append(opts, WithTracing())
	}
	return NewHTTPClient(config.Cfg.APIBaseURL, opts...)
}

func (c *HTTPClient) FetchSubmissions(ctx context.Context) ([]model.Submission, error) {
	var subs []model.Submission
	if err := c.do(ctx, "fetch_submissions", consts.MethodGet, pathSubmissions, nil, nil, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (c *HTTPClient) FetchPointsTotal(ctx context.Context) (int, error) {
	var p pointsPayload
	if err := c.do(ctx, "fetch_points", consts.MethodGet, pathPoints, nil, nil, &p); err != nil {
		return 0, err
	}
	return p.Total, nil
}

func (c *HTTPClient) FetchWeather(ctx context.Context, coord model.Coordinate) (model.WeatherSnapshot, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))

	var w model.WeatherSnapshot
	if err := c.do(ctx, "fetch_weather", consts.MethodGet, pathWeather, query, nil, &w); err != nil {
		return model.WeatherSnapshot{}, err
	}
	if w.Coordinate == (model.Coordinate{}) {
		w.Coordinate = coord
	}
	return w, nil
}

func (c *HTTPClient) FetchQuestionSchema(ctx context.Context, checkInType model.CheckInType) ([]model.QuestionSchema, error) {
	var schema []model.QuestionSchema
	path := fmt.Sprintf(pathQuestions, url.PathEscape(string(checkInType)))
	if err := c.do(ctx, "fetch_question_schema", consts.MethodGet, path, nil, nil, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (c *HTTPClient) SubmitAnswers(ctx context.Context, checkInType model.CheckInType, answers map[string]any) (model.Submission, error) {
	var sub model.Submission
	path := fmt.Sprintf(pathSubmit, url.PathEscape(string(checkInType)))
	if err := c.do(ctx, "submit_answers", consts.MethodPost, path, nil, submitPayload{Answers: answers}, &sub); err != nil {
		return model.Submission{}, err
	}
	return sub, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body, dst any) error {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req.SetRequestURI(uri)
	req.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.NewTransportError(op, 0, fmt.Errorf("failed to encode request: %w", err))
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(raw)
	}

	start := time.Now()
	if err := c.cli.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		logger.Logger.Warn("Remote API call failed",
			zap.String("operation", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return errors.NewTransportError(op, 0, err)
	}

	status := resp.StatusCode()
	if status < consts.StatusOK || status >= consts.StatusMultipleChoices {
		logger.Logger.Warn("Remote API returned error status",
			zap.String("operation", op),
			zap.Int("status", status),
		)
		return errors.NewTransportError(op, status, fmt.Errorf("unexpected status %d", status))
	}

	if err := decodeBody(resp.Body(), dst); err != nil {
		return errors.NewTransportError(op, 0, err)
	}
	return nil
}

func decodeBody(body []byte, dst any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fmt.Errorf("empty response body")
	}

	payload := body
	if body[0] == '{' {
		var env envelope
		if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
			payload = env.Data
		}
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
