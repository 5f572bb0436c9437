package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/errors"
	"HealthCheckIn/pkg/logger"
)

// Reconciler 把问题 schema 与提交的原始答案对齐，生成有序的历史记录
// 纯计算，无副作用，可在任意 goroutine 使用
type Reconciler struct {
	Now    func() time.Time
	Logger *zap.Logger
}

func New() *Reconciler {
	return &Reconciler{Now: time.Now, Logger: logger.Named("reconcile")}
}

// Reconcile 按 schema 顺序查找答案：先用问题 id 的字符串形式，未命中再用 key
// 两者都没有的问题直接省略；结果按问题 id 升序
func (r *Reconciler) Reconcile(sub model.Submission, schema []model.QuestionSchema) model.ReconciledHistoryEntry {
	log := r.log().With(zap.String("submission_id", string(sub.ID)))

	answers := make([]model.QuestionAnswer, 0, len(schema))
	matched := make(map[string]struct{}, len(schema))
	for _, q := range schema {
		idKey := strconv.Itoa(q.ID)
		value, key, ok := lookup(sub.Answers, idKey, q.Key)
		if !ok {
			continue
		}
		matched[key] = struct{}{}

		text, err := answerText(value)
		if err != nil {
			log.Debug("Unformattable answer, using raw value", zap.Int("question_id", q.ID), zap.Error(err))
			text = fmt.Sprintf("%v", value)
		}

		answers = append(answers, model.QuestionAnswer{
			QuestionID:   q.ID,
			Title:        q.Title,
			Subtitle:     q.Subtitle,
			AnswerText:   text,
			QuestionType: q.Type,
		})
	}

	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].QuestionID < answers[j].QuestionID
	})

	for key := range sub.Answers {
		if _, ok := matched[key]; !ok {
			log.Debug("Answer matches no schema question, dropped", zap.String("answer_key", key))
		}
	}

	return model.ReconciledHistoryEntry{
		SubmissionID: sub.ID,
		CheckInType:  NormalizeType(sub.CheckInType),
		Status:       NormalizeStatus(sub.Status),
		SubmittedAt:  r.submittedAt(sub, log),
		ReviewedAt:   r.reviewedAt(sub, log),
		ReviewerNote: sub.ReviewerNote,
		Answers:      answers,
	}
}

// lookup null 值视为缺失
func lookup(answers map[string]any, idKey, key string) (any, string, bool) {
	if v, ok := answers[idKey]; ok && v != nil {
		return v, idKey, true
	}
	if key == "" {
		return nil, "", false
	}
	if v, ok := answers[key]; ok && v != nil {
		return v, key, true
	}
	return nil, "", false
}

// submittedAt 无法解析时使用当前时间
func (r *Reconciler) submittedAt(sub model.Submission, log *zap.Logger) time.Time {
	t, err := parseTimestamp("submitted_at", sub.SubmittedAt)
	if err != nil {
		log.Debug("Invalid submission timestamp, defaulting to now", zap.Error(err))
		return r.now()
	}
	return t
}

// reviewedAt 无法解析时视为未审核
func (r *Reconciler) reviewedAt(sub model.Submission, log *zap.Logger) *time.Time {
	if sub.ReviewedAt == nil || *sub.ReviewedAt == "" {
		return nil
	}
	t, err := parseTimestamp("reviewed_at", *sub.ReviewedAt)
	if err != nil {
		log.Debug("Invalid review timestamp, ignoring", zap.Error(err))
		return nil
	}
	return &t
}

func parseTimestamp(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, &errors.ParseError{Field: field, Value: raw, Err: err}
	}
	return t, nil
}

func (r *Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Reconciler) log() *zap.Logger {
	if r.Logger == nil {
		return logger.Logger
	}
	return r.Logger
}
