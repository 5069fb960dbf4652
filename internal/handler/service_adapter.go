package handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/caseman/internal/exposure"
	"github.com/hitoshi/caseman/internal/model"
	"github.com/hitoshi/caseman/internal/repository"
)

// VisitServiceAdapter はリポジトリ層と照合サービスを
// VisitServiceInterface に適合させるアダプタ。
type VisitServiceAdapter struct {
	visits  repository.VisitRepository
	matcher *exposure.Service
}

// NewVisitServiceAdapter はVisitServiceAdapterを生成する。
func NewVisitServiceAdapter(visits repository.VisitRepository, matcher *exposure.Service) *VisitServiceAdapter {
	return &VisitServiceAdapter{visits: visits, matcher: matcher}
}

// CheckIn は訪問記録（チェックイン）を作成する。
func (a *VisitServiceAdapter) CheckIn(ctx context.Context, params VisitParams) (*model.VisitRecord, error) {
	visit := newVisitRecord(params, false)
	if err := a.visits.Create(ctx, visit); err != nil {
		return nil, err
	}
	return visit, nil
}

// CheckOut は滞在中の訪問記録に終了時刻を設定する。
func (a *VisitServiceAdapter) CheckOut(ctx context.Context, visitID string, endTime time.Time) error {
	return a.visits.SetEndTime(ctx, visitID, endTime)
}

// CreateBookmark はブックマークを作成し、既存ケースとの照合を実行する。
// 新規ブックマークは評価済みを含む全ケースと照合される。
func (a *VisitServiceAdapter) CreateBookmark(ctx context.Context, params VisitParams) (*model.VisitRecord, bool, error) {
	visit := newVisitRecord(params, true)
	if err := a.visits.Create(ctx, visit); err != nil {
		return nil, false, err
	}

	hadNewMatches, err := a.matcher.OnNewBookmarkCreated(ctx, visit.ID)
	if err != nil {
		return nil, false, err
	}

	// 照合で曝露レベルが更新された可能性があるため読み直す
	updated, err := a.visits.FindByID(ctx, visit.ID)
	if err != nil {
		return nil, false, err
	}
	if updated != nil {
		visit = updated
	}

	return visit, hadNewMatches, nil
}

// List は訪問記録の一覧を開始時刻降順で返す。
func (a *VisitServiceAdapter) List(ctx context.Context, limit int) ([]*model.VisitRecord, error) {
	return a.visits.List(ctx, limit)
}

// newVisitRecord は入力パラメータから訪問記録を組み立てる。
func newVisitRecord(params VisitParams, bookmark bool) *model.VisitRecord {
	now := time.Now()
	groupID := params.GroupID
	if groupID == "" {
		groupID = model.NoGroup
	}

	return &model.VisitRecord{
		ID:      uuid.NewString(),
		GroupID: groupID,
		VenueInfo: model.VenueInfo{
			NameEn:    params.NameEn,
			NameZh:    params.NameZhHK,
			LicenseNo: params.LicenseNo,
			Type:      params.VenueType,
			VenueID:   params.VenueID,
		},
		StartTime: params.StartTime,
		Bookmark:  bookmark,
		Exposure:  model.ExposureNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- compile-time interface checks ---

var _ VisitServiceInterface = (*VisitServiceAdapter)(nil)
