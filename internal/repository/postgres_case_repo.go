package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/caseman/internal/model"
)

// PostgresCaseRepo はPostgreSQLを使用したケースレコードリポジトリ。
type PostgresCaseRepo struct {
	db *sql.DB
}

// NewPostgresCaseRepo はPostgresCaseRepoを生成する。
func NewPostgresCaseRepo(db *sql.DB) *PostgresCaseRepo {
	return &PostgresCaseRepo{db: db}
}

// InsertWithDupCheck はケースレコードを重複チェック付きで挿入する。
// 重複キー (venue_id, venue_type, batch_id, start_time) に一致する行が
// 既にある場合は挿入せず0を返す。
func (r *PostgresCaseRepo) InsertWithDupCheck(ctx context.Context, c *model.CaseRecord) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO case_records
		   (group_id, random_tokens, venue_type, venue_id, license_no,
		    name_en, name_zh, start_time, end_time, batch_id, batch_time, matched)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE)
		 ON CONFLICT (venue_id, venue_type, batch_id, start_time) DO NOTHING
		 RETURNING id`,
		c.GroupID, c.RandomTokens, c.VenueInfo.Type, c.VenueInfo.VenueID,
		nullString(c.VenueInfo.LicenseNo), nullString(c.VenueInfo.NameEn), nullString(c.VenueInfo.NameZh),
		c.StartTime, c.EndTime, c.BatchID, c.BatchTime,
	).Scan(&id)

	if err == sql.ErrNoRows {
		// 重複によりスキップ
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ケースレコードの挿入に失敗しました: %w", err)
	}

	return id, nil
}

// FindByID は指定IDのケースレコードを取得する。見つからない場合はnilを返す。
func (r *PostgresCaseRepo) FindByID(ctx context.Context, id int64) (*model.CaseRecord, error) {
	c := &model.CaseRecord{}
	var licenseNo, nameEn, nameZh sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, random_tokens, venue_type, venue_id, license_no,
		        name_en, name_zh, start_time, end_time, batch_id, batch_time, matched, created_at
		 FROM case_records WHERE id = $1`,
		id,
	).Scan(
		&c.ID, &c.GroupID, &c.RandomTokens, &c.VenueInfo.Type, &c.VenueInfo.VenueID, &licenseNo,
		&nameEn, &nameZh, &c.StartTime, &c.EndTime, &c.BatchID, &c.BatchTime, &c.Matched, &c.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ケースレコードの取得に失敗しました: %w", err)
	}

	c.VenueInfo.LicenseNo = nullStringValue(licenseNo)
	c.VenueInfo.NameEn = nullStringValue(nameEn)
	c.VenueInfo.NameZh = nullStringValue(nameZh)

	return c, nil
}

// MaxBatchID は保存済みケースの最大バッチIDを返す。1件もない場合は-1を返す。
func (r *PostgresCaseRepo) MaxBatchID(ctx context.Context) (int, error) {
	var maxID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(batch_id) FROM case_records`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("最大バッチIDの取得に失敗しました: %w", err)
	}
	if !maxID.Valid {
		return -1, nil
	}
	return int(maxID.Int64), nil
}

// candidateQuery は訪問記録とケースレコードの結合行の共通SELECT句。
// 結合条件は会場タイプと会場IDの一致（原本データのマッチングキー）。
const candidateQuery = `SELECT
	v.id, v.bookmark, v.venue_type, v.venue_id, v.license_no, v.name_en, v.name_zh,
	v.start_time, v.end_time,
	c.id, c.random_tokens, c.start_time, c.end_time
FROM visit_records v
INNER JOIN case_records c
	ON v.venue_type = c.venue_type AND v.venue_id = c.venue_id`

// ListUnmatchedOverlapsWithCheckIns は未評価ケースと遡及期間内の
// 非ブックマーク訪問の結合行を返す。
func (r *PostgresCaseRepo) ListUnmatchedOverlapsWithCheckIns(ctx context.Context, since time.Time) ([]model.MatchCandidate, error) {
	rows, err := r.db.QueryContext(ctx,
		candidateQuery+` WHERE v.bookmark = FALSE AND v.start_time >= $1 AND c.matched = FALSE`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("チェックイン照合候補の取得に失敗しました: %w", err)
	}
	return scanCandidates(rows)
}

// ListUnmatchedOverlapsWithBookmarks は未評価ケースとブックマークの結合行を返す。
func (r *PostgresCaseRepo) ListUnmatchedOverlapsWithBookmarks(ctx context.Context) ([]model.MatchCandidate, error) {
	rows, err := r.db.QueryContext(ctx,
		candidateQuery+` WHERE v.bookmark = TRUE AND c.matched = FALSE`,
	)
	if err != nil {
		return nil, fmt.Errorf("ブックマーク照合候補の取得に失敗しました: %w", err)
	}
	return scanCandidates(rows)
}

// ListOverlapsForVisit は指定訪問記録と会場が一致する全ケースの結合行を返す。
func (r *PostgresCaseRepo) ListOverlapsForVisit(ctx context.Context, visitID string) ([]model.MatchCandidate, error) {
	rows, err := r.db.QueryContext(ctx,
		candidateQuery+` WHERE v.id = $1`,
		visitID,
	)
	if err != nil {
		return nil, fmt.Errorf("訪問記録の照合候補の取得に失敗しました: %w", err)
	}
	return scanCandidates(rows)
}

// scanCandidates は結合行をMatchCandidateのスライスに変換する。
func scanCandidates(rows *sql.Rows) ([]model.MatchCandidate, error) {
	defer rows.Close()

	var result []model.MatchCandidate
	for rows.Next() {
		var mc model.MatchCandidate
		var licenseNo, nameEn, nameZh sql.NullString
		var visitEnd sql.NullTime

		err := rows.Scan(
			&mc.VisitID, &mc.VisitBookmark, &mc.VenueInfo.Type, &mc.VenueInfo.VenueID,
			&licenseNo, &nameEn, &nameZh,
			&mc.VisitStartTime, &visitEnd,
			&mc.CaseID, &mc.CaseTokens, &mc.CaseStartTime, &mc.CaseEndTime,
		)
		if err != nil {
			return nil, fmt.Errorf("照合候補行の読み取りに失敗しました: %w", err)
		}

		mc.VenueInfo.LicenseNo = nullStringValue(licenseNo)
		mc.VenueInfo.NameEn = nullStringValue(nameEn)
		mc.VenueInfo.NameZh = nullStringValue(nameZh)
		if visitEnd.Valid {
			t := visitEnd.Time
			mc.VisitEndTime = &t
		}

		result = append(result, mc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("照合候補の走査に失敗しました: %w", err)
	}

	return result, nil
}

// MarkAllMatched は未評価の全ケースをmatched=trueにする。
func (r *PostgresCaseRepo) MarkAllMatched(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE case_records SET matched = TRUE WHERE matched = FALSE`,
	)
	if err != nil {
		return fmt.Errorf("ケースの評価済みフラグの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteOlderThan はstart_timeがcutoffより古いケースを削除し、削除件数を返す。
func (r *PostgresCaseRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM case_records WHERE start_time < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れケースの削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから値を取り出す。NULLの場合は空文字列を返す。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
