package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/caseman/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知インボックスリポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

const entryColumns = `id, visit_id, venue_type, venue_id, license_no, name_en, name_zh,
	date, bookmark, exposure, total_count, read, last_update`

// FindByVisitID は訪問記録IDで通知エントリを検索する。見つからない場合はnilを返す。
func (r *PostgresNotificationRepo) FindByVisitID(ctx context.Context, visitID string) (*model.NotificationEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM notification_entries WHERE visit_id = $1`,
		visitID,
	)

	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("通知エントリの取得に失敗しました: %w", err)
	}

	return e, nil
}

// ListLinksByEntry はエントリの全MatchLinkを返す。
func (r *PostgresNotificationRepo) ListLinksByEntry(ctx context.Context, entryID string) ([]*model.MatchLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entry_id, case_id, exposure, multiplicity, overlap_ms, matched_at
		 FROM match_links WHERE entry_id = $1`,
		entryID,
	)
	if err != nil {
		return nil, fmt.Errorf("マッチリンクの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var links []*model.MatchLink
	for rows.Next() {
		l := &model.MatchLink{}
		var exposure string
		err := rows.Scan(&l.ID, &l.EntryID, &l.CaseID, &exposure, &l.Multiplicity, &l.OverlapMs, &l.MatchedAt)
		if err != nil {
			return nil, fmt.Errorf("マッチリンク行の読み取りに失敗しました: %w", err)
		}
		l.Exposure = model.ExposureLevel(exposure)
		links = append(links, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("マッチリンクの走査に失敗しました: %w", err)
	}

	return links, nil
}

// UpsertWithLinks はエントリと新規MatchLinkを同一トランザクションで書き込む。
// 途中で失敗した場合は全体がロールバックされ、部分的な計上は残らない。
func (r *PostgresNotificationRepo) UpsertWithLinks(ctx context.Context, entry *model.NotificationEntry, newLinks []*model.MatchLink, isNew bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if isNew {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO notification_entries
			   (id, visit_id, venue_type, venue_id, license_no, name_en, name_zh,
			    date, bookmark, exposure, total_count, read, last_update)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12)`,
			entry.ID, entry.VisitID, entry.VenueInfo.Type, entry.VenueInfo.VenueID,
			nullString(entry.VenueInfo.LicenseNo), nullString(entry.VenueInfo.NameEn), nullString(entry.VenueInfo.NameZh),
			entry.Date, entry.Bookmark, string(entry.Exposure), entry.TotalCount, entry.LastUpdate,
		)
		if err != nil {
			return fmt.Errorf("通知エントリの作成に失敗しました: %w", err)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE notification_entries
			 SET exposure = $1, total_count = $2, last_update = $3
			 WHERE id = $4`,
			string(entry.Exposure), entry.TotalCount, entry.LastUpdate, entry.ID,
		)
		if err != nil {
			return fmt.Errorf("通知エントリの更新に失敗しました: %w", err)
		}
	}

	for _, l := range newLinks {
		// ユニーク制約 (entry_id, case_id) により再実行時の二重計上を防ぐ
		_, err = tx.ExecContext(ctx,
			`INSERT INTO match_links
			   (id, entry_id, case_id, exposure, multiplicity, overlap_ms, matched_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (entry_id, case_id) DO NOTHING`,
			l.ID, l.EntryID, l.CaseID, string(l.Exposure), l.Multiplicity, l.OverlapMs, l.MatchedAt,
		)
		if err != nil {
			return fmt.Errorf("マッチリンクの作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return nil
}

// List は通知エントリの一覧をlast_update降順で返す。
func (r *PostgresNotificationRepo) List(ctx context.Context, limit int) ([]*model.NotificationEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM notification_entries ORDER BY last_update DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("通知エントリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.NotificationEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("通知エントリ行の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知エントリ一覧の走査に失敗しました: %w", err)
	}

	return entries, nil
}

// UnreadCount は未読エントリ数を返す。
func (r *PostgresNotificationRepo) UnreadCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_entries WHERE read = FALSE`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("未読件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// MarkRead は指定エントリを既読にする。該当なしの場合はfalseを返す。
func (r *PostgresNotificationRepo) MarkRead(ctx context.Context, entryID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notification_entries SET read = TRUE WHERE id = $1`,
		entryID,
	)
	if err != nil {
		return false, fmt.Errorf("通知エントリの既読化に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("通知エントリの既読化結果の取得に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// scanEntry は1行を通知エントリに変換する。
func scanEntry(row rowScanner) (*model.NotificationEntry, error) {
	e := &model.NotificationEntry{}
	var licenseNo, nameEn, nameZh sql.NullString
	var exposure string

	err := row.Scan(
		&e.ID, &e.VisitID, &e.VenueInfo.Type, &e.VenueInfo.VenueID,
		&licenseNo, &nameEn, &nameZh,
		&e.Date, &e.Bookmark, &exposure, &e.TotalCount, &e.Read, &e.LastUpdate,
	)
	if err != nil {
		return nil, err
	}

	e.VenueInfo.LicenseNo = nullStringValue(licenseNo)
	e.VenueInfo.NameEn = nullStringValue(nameEn)
	e.VenueInfo.NameZh = nullStringValue(nameZh)
	e.Exposure = model.ExposureLevel(exposure)

	return e, nil
}
