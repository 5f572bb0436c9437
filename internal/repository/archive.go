package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/errors"
)

// SubmissionArchive 提交记录的本地归档，历史视图在内存列表缺失时从这里读取
type SubmissionArchive struct {
	db *gorm.DB
}

func NewSubmissionArchive(db *gorm.DB) *SubmissionArchive {
	return &SubmissionArchive{db: db}
}

// upsertClause 以 submission_id 去重，远端记录更新（例如审核后）时覆盖旧值
func upsertClause() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"check_in_type", "status", "submitted_at", "reviewed_at", "reviewer_note", "answers_json", "updated_at",
		}),
	}
}

// Save 批量写入或更新
func (a *SubmissionArchive) Save(ctx context.Context, subs ...model.Submission) error {
	if len(subs) == 0 {
		return nil
	}

	records := make([]*model.SubmissionRecord, 0, len(subs))
	for _, s := range subs {
		if s.ID == "" {
			continue
		}
		rec, err := model.NewSubmissionRecord(s)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}

	if err := a.db.WithContext(ctx).Clauses(upsertClause()).CreateInBatches(records, 100).Error; err != nil {
		return fmt.Errorf("failed to archive %d submissions: %w", len(records), err)
	}
	return nil
}

// Get 按提交 ID 查询，不存在时返回 errors.SubmissionNotFound
func (a *SubmissionArchive) Get(ctx context.Context, id model.SubmissionID) (model.Submission, error) {
	var rec model.SubmissionRecord
	err := a.db.WithContext(ctx).Where("submission_id = ?", string(id)).Take(&rec).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return model.Submission{}, errors.SubmissionNotFound
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("failed to load submission %s: %w", id, err)
	}
	return rec.Submission()
}

// List 按提交时间倒序返回，limit <= 0 表示不限制
func (a *SubmissionArchive) List(ctx context.Context, limit int) ([]model.Submission, error) {
	q := a.db.WithContext(ctx).Order("submitted_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []model.SubmissionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list archived submissions: %w", err)
	}

	subs := make([]model.Submission, 0, len(recs))
	for i := range recs {
		s, err := recs[i].Submission()
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, nil
}
