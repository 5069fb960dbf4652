package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/caseman/internal/model"
)

// PostgresVisitRepo はPostgreSQLを使用した訪問記録リポジトリ。
type PostgresVisitRepo struct {
	db *sql.DB
}

// NewPostgresVisitRepo はPostgresVisitRepoを生成する。
func NewPostgresVisitRepo(db *sql.DB) *PostgresVisitRepo {
	return &PostgresVisitRepo{db: db}
}

const visitColumns = `id, group_id, venue_type, venue_id, license_no, name_en, name_zh,
	start_time, end_time, bookmark, exposure, created_at, updated_at`

// FindByID は指定IDの訪問記録を取得する。見つからない場合はnilを返す。
func (r *PostgresVisitRepo) FindByID(ctx context.Context, id string) (*model.VisitRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+visitColumns+` FROM visit_records WHERE id = $1`,
		id,
	)

	v, err := scanVisit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("訪問記録の取得に失敗しました: %w", err)
	}

	return v, nil
}

// Create は訪問記録（チェックインまたはブックマーク）を作成する。
func (r *PostgresVisitRepo) Create(ctx context.Context, v *model.VisitRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO visit_records
		   (id, group_id, venue_type, venue_id, license_no, name_en, name_zh,
		    start_time, end_time, bookmark, exposure, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.ID, v.GroupID, v.VenueInfo.Type, v.VenueInfo.VenueID,
		nullString(v.VenueInfo.LicenseNo), nullString(v.VenueInfo.NameEn), nullString(v.VenueInfo.NameZh),
		v.StartTime, nullTime(v.EndTime), v.Bookmark, nullString(string(v.Exposure)),
		v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("訪問記録の作成に失敗しました: %w", err)
	}
	return nil
}

// SetEndTime は滞在中の訪問記録に終了時刻を設定する（チェックアウト）。
func (r *PostgresVisitRepo) SetEndTime(ctx context.Context, id string, endTime time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE visit_records SET end_time = $1, updated_at = now()
		 WHERE id = $2 AND end_time IS NULL`,
		endTime, id,
	)
	if err != nil {
		return fmt.Errorf("訪問記録のチェックアウトに失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("訪問記録のチェックアウト結果の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewVisitNotFoundError(id)
	}

	return nil
}

// SetExposure は訪問記録の曝露レベルを設定する。
// 単調エスカレーションのみ許可され、現在レベルより低い値への更新は無視される。
func (r *PostgresVisitRepo) SetExposure(ctx context.Context, id string, level model.ExposureLevel) error {
	// '' < 'I' < 'D' のレベル順をCASEで数値化して比較する
	_, err := r.db.ExecContext(ctx,
		`UPDATE visit_records SET exposure = $1, updated_at = now()
		 WHERE id = $2
		   AND CASE COALESCE(exposure, '') WHEN 'D' THEN 2 WHEN 'I' THEN 1 ELSE 0 END
		     < CASE $1 WHEN 'D' THEN 2 WHEN 'I' THEN 1 ELSE 0 END`,
		string(level), id,
	)
	if err != nil {
		return fmt.Errorf("訪問記録の曝露レベル更新に失敗しました: %w", err)
	}
	return nil
}

// List は訪問記録の一覧を開始時刻降順で返す。
func (r *PostgresVisitRepo) List(ctx context.Context, limit int) ([]*model.VisitRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+visitColumns+` FROM visit_records ORDER BY start_time DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("訪問記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var visits []*model.VisitRecord
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("訪問記録行の読み取りに失敗しました: %w", err)
		}
		visits = append(visits, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("訪問記録一覧の走査に失敗しました: %w", err)
	}

	return visits, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通走査インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanVisit は1行を訪問記録に変換する。
func scanVisit(row rowScanner) (*model.VisitRecord, error) {
	v := &model.VisitRecord{}
	var licenseNo, nameEn, nameZh, exposure sql.NullString
	var endTime sql.NullTime

	err := row.Scan(
		&v.ID, &v.GroupID, &v.VenueInfo.Type, &v.VenueInfo.VenueID,
		&licenseNo, &nameEn, &nameZh,
		&v.StartTime, &endTime, &v.Bookmark, &exposure, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.VenueInfo.LicenseNo = nullStringValue(licenseNo)
	v.VenueInfo.NameEn = nullStringValue(nameEn)
	v.VenueInfo.NameZh = nullStringValue(nameZh)
	v.Exposure = model.ExposureLevel(nullStringValue(exposure))
	if endTime.Valid {
		t := endTime.Time
		v.EndTime = &t
	}

	return v, nil
}

// nullTime は*time.TimeをNULL許容値に変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
