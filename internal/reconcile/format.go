package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"HealthCheckIn/pkg/errors"
)

// answerText 把 JSON 解码出的答案值格式化为展示文本
// 无法格式化时返回 ParseError，调用方降级为 fmt 默认格式
func answerText(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		if val {
			return "Yes", nil
		}
		return "No", nil
	case float64:
		return formatNumber(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case json.Number:
		return val.String(), nil
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			text, err := answerText(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, text)
		}
		return strings.Join(parts, ", "), nil
	case map[string]any:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", &errors.ParseError{Field: "answer", Value: fmt.Sprintf("%v", val), Err: err}
		}
		return string(raw), nil
	default:
		return "", &errors.ParseError{Field: "answer", Value: fmt.Sprintf("%v", val), Err: fmt.Errorf("unsupported answer type %T", val)}
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
