package api

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/errors"
)

// MockCall 记录一次调用
type MockCall struct {
	Answers     map[string]any
	Coordinate  model.Coordinate
	Method      string
	CheckInType model.CheckInType
}

// MockClient 可配置的远端 API mock，实现 Client 接口
type MockClient struct {
	mu    sync.Mutex
	calls []MockCall

	Submissions []model.Submission
	PointsTotal int
	Weather     model.WeatherSnapshot
	Schemas     map[model.CheckInType][]model.QuestionSchema

	// Fail 按方法名注入失败，值为 true 时该方法持续失败
	Fail map[string]bool
	// FailWeatherAt 只在该坐标上让天气请求失败，用于测试回退坐标
	FailWeatherAt *model.Coordinate

	nextID  int
	gates   map[string]chan struct{}
	arrived map[string]int
}

func NewMockClient() *MockClient {
	return &MockClient{
		Schemas: make(map[model.CheckInType][]model.QuestionSchema),
		Fail:    make(map[string]bool),
		calls:   make([]MockCall, 0),
		gates:   make(map[string]chan struct{}),
		arrived: make(map[string]int),
	}
}

// SetGate 让某方法的每次调用先从 gate 取到一个信号再继续，nil 表示取消阻塞
func (m *MockClient) SetGate(method string, gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gate == nil {
		delete(m.gates, method)
		return
	}
	m.gates[method] = gate
}

// Arrived 统计在 gate 前到达过的调用次数
func (m *MockClient) Arrived(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arrived[method]
}

func (m *MockClient) pass(ctx context.Context, method string) error {
	m.mu.Lock()
	gate := m.gates[method]
	if gate != nil {
		m.arrived[method]++
	}
	m.mu.Unlock()

	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetFail 并发安全地切换某个方法的失败开关
func (m *MockClient) SetFail(method string, fail bool) {
	m.mu.Lock()
	m.Fail[method] = fail
	m.mu.Unlock()
}

// SetPointsTotal 并发安全地修改积分
func (m *MockClient) SetPointsTotal(total int) {
	m.mu.Lock()
	m.PointsTotal = total
	m.mu.Unlock()
}

// SetSubmissions 并发安全地替换提交列表
func (m *MockClient) SetSubmissions(subs []model.Submission) {
	m.mu.Lock()
	m.Submissions = subs
	m.mu.Unlock()
}

// Calls 返回调用记录的副本
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 统计某方法被调用的次数
func (m *MockClient) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset 清空调用记录
func (m *MockClient) Reset() {
	m.mu.Lock()
	m.calls = m.calls[:0]
	m.mu.Unlock()
}

func (m *MockClient) record(call MockCall) error {
	m.calls = append(m.calls, call)
	if m.Fail[call.Method] {
		return errors.NewTransportError(call.Method, 503, fmt.Errorf("mock %s failure", call.Method))
	}
	return nil
}

func (m *MockClient) FetchSubmissions(ctx context.Context) ([]model.Submission, error) {
	if err := m.pass(ctx, "FetchSubmissions"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MockCall{Method: "FetchSubmissions"}); err != nil {
		return nil, err
	}
	out := make([]model.Submission, len(m.Submissions))
	copy(out, m.Submissions)
	return out, nil
}

func (m *MockClient) FetchPointsTotal(ctx context.Context) (int, error) {
	if err := m.pass(ctx, "FetchPointsTotal"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MockCall{Method: "FetchPointsTotal"}); err != nil {
		return 0, err
	}
	return m.PointsTotal, nil
}

func (m *MockClient) FetchWeather(_ context.Context, coord model.Coordinate) (model.WeatherSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MockCall{Method: "FetchWeather", Coordinate: coord}); err != nil {
		return model.WeatherSnapshot{}, err
	}
	if m.FailWeatherAt != nil && *m.FailWeatherAt == coord {
		return model.WeatherSnapshot{}, errors.NewTransportError("FetchWeather", 502, fmt.Errorf("mock weather unavailable at %v", coord))
	}
	w := m.Weather
	w.Coordinate = coord
	return w, nil
}

func (m *MockClient) FetchQuestionSchema(_ context.Context, checkInType model.CheckInType) ([]model.QuestionSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MockCall{Method: "FetchQuestionSchema", CheckInType: checkInType}); err != nil {
		return nil, err
	}
	schema := m.Schemas[checkInType]
	out := make([]model.QuestionSchema, len(schema))
	copy(out, schema)
	return out, nil
}

func (m *MockClient) SubmitAnswers(_ context.Context, checkInType model.CheckInType, answers map[string]any) (model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MockCall{Method: "SubmitAnswers", CheckInType: checkInType, Answers: answers}); err != nil {
		return model.Submission{}, err
	}

	m.nextID++
	sub := model.Submission{
		ID:          model.SubmissionID("mock-" + strconv.Itoa(m.nextID)),
		CheckInType: string(checkInType),
		Status:      "submitted",
		SubmittedAt: "2024-01-01T00:00:00Z",
		Answers:     answers,
	}
	m.Submissions = append(m.Submissions, sub)
	return sub, nil
}
