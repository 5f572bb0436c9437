package service

import (
	"context"
	stderrors "errors"
	"sort"

	"go.uber.org/zap"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/internal/reconcile"
	"HealthCheckIn/pkg/errors"
	"HealthCheckIn/pkg/logger"
)

// SubmissionSource 最近一次拉取到的提交列表（由仪表盘同步核心提供）
type SubmissionSource interface {
	Submissions() ([]model.Submission, bool)
}

// SubmissionFetcher 远端全量拉取
type SubmissionFetcher interface {
	Fetch(ctx context.Context) ([]model.Submission, error)
}

// Archive 本地归档
type Archive interface {
	Save(ctx context.Context, subs ...model.Submission) error
	Get(ctx context.Context, id model.SubmissionID) (model.Submission, error)
	List(ctx context.Context, limit int) ([]model.Submission, error)
}

// HistoryService 构建历史记录视图
// 查找顺序：内存中的最近列表 -> 本地归档 -> 远端全量拉取
type HistoryService struct {
	source     SubmissionSource
	remote     SubmissionFetcher
	archive    Archive
	schemas    *SchemaCache
	reconciler *reconcile.Reconciler
	log        *zap.Logger
}

// NewHistoryService archive 可以为 nil
func NewHistoryService(source SubmissionSource, remote SubmissionFetcher, archive Archive, schemas *SchemaCache, reconciler *reconcile.Reconciler) *HistoryService {
	return &HistoryService{
		source:     source,
		remote:     remote,
		archive:    archive,
		schemas:    schemas,
		reconciler: reconciler,
		log:        logger.Named("history"),
	}
}

// Entry 单条历史记录
func (s *HistoryService) Entry(ctx context.Context, id model.SubmissionID) (model.ReconciledHistoryEntry, error) {
	sub, err := s.find(ctx, id)
	if err != nil {
		return model.ReconciledHistoryEntry{}, err
	}
	return s.reconcile(ctx, sub), nil
}

// List 全部已知提交的历史记录，按提交时间倒序
func (s *HistoryService) List(ctx context.Context) ([]model.ReconciledHistoryEntry, error) {
	subs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]model.ReconciledHistoryEntry, 0, len(subs))
	for _, sub := range subs {
		entries = append(entries, s.reconcile(ctx, sub))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SubmittedAt.After(entries[j].SubmittedAt)
	})
	return entries, nil
}

// reconcile 问题模板拉取失败时按空模板处理，条目保留元数据但不含答案
func (s *HistoryService) reconcile(ctx context.Context, sub model.Submission) model.ReconciledHistoryEntry {
	t := reconcile.NormalizeType(sub.CheckInType)
	schema, err := s.schemas.Get(ctx, t)
	if err != nil {
		s.log.Warn("Question schema unavailable, reconciling without answers",
			zap.String("submission_id", string(sub.ID)),
			zap.String("check_in_type", string(t)),
			zap.Error(err),
		)
		schema = nil
	}
	return s.reconciler.Reconcile(sub, schema)
}

func (s *HistoryService) find(ctx context.Context, id model.SubmissionID) (model.Submission, error) {
	if subs, ok := s.source.Submissions(); ok {
		if sub, found := findByID(subs, id); found {
			return sub, nil
		}
	}

	if s.archive != nil {
		sub, err := s.archive.Get(ctx, id)
		if err == nil {
			return sub, nil
		}
		if !stderrors.Is(err, errors.SubmissionNotFound) {
			s.log.Warn("Archive lookup failed", zap.String("submission_id", string(id)), zap.Error(err))
		}
	}

	subs, err := s.remote.Fetch(ctx)
	if err != nil {
		return model.Submission{}, err
	}
	s.archiveAll(ctx, subs)

	if sub, found := findByID(subs, id); found {
		return sub, nil
	}
	return model.Submission{}, errors.SubmissionNotFound
}

func (s *HistoryService) all(ctx context.Context) ([]model.Submission, error) {
	if subs, ok := s.source.Submissions(); ok {
		return subs, nil
	}

	subs, err := s.remote.Fetch(ctx)
	if err == nil {
		s.archiveAll(ctx, subs)
		return subs, nil
	}

	if s.archive == nil {
		return nil, err
	}
	s.log.Warn("Remote submissions unavailable, serving archive", zap.Error(err))
	return s.archive.List(ctx, 0)
}

func (s *HistoryService) archiveAll(ctx context.Context, subs []model.Submission) {
	if s.archive == nil || len(subs) == 0 {
		return
	}
	if err := s.archive.Save(ctx, subs...); err != nil {
		s.log.Warn("Failed to archive submissions", zap.Error(err))
	}
}

func findByID(subs []model.Submission, id model.SubmissionID) (model.Submission, bool) {
	for _, sub := range subs {
		if sub.ID == id {
			return sub, true
		}
	}
	return model.Submission{}, false
}
