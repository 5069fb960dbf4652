package exposure

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/caseman/internal/config"
	"github.com/hitoshi/caseman/internal/metrics"
	"github.com/hitoshi/caseman/internal/model"
	"github.com/hitoshi/caseman/internal/repository"
)

// Service はケースと訪問記録の照合、および通知インボックスへの集約を行う。
//
// 集約は冪等であり、同じケースが同じ訪問に二重計上されることはない。
// エントリのexposure/totalCountは常にMatchLink集合からの再導出で決まる。
type Service struct {
	logger        *slog.Logger
	cases         repository.CaseRepository
	visits        repository.VisitRepository
	notifications repository.NotificationRepository
	settings      repository.SettingsRepository
	metrics       metrics.MetricsCollector
	fallback      repository.Thresholds
	now           func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	logger *slog.Logger,
	cases repository.CaseRepository,
	visits repository.VisitRepository,
	notifications repository.NotificationRepository,
	settings repository.SettingsRepository,
) *Service {
	return &Service{
		logger:        logger,
		cases:         cases,
		visits:        visits,
		notifications: notifications,
		settings:      settings,
		now:           time.Now,
	}
}

// WithMetrics はメトリクスコレクタを設定する。未設定の場合は記録しない。
func (s *Service) WithMetrics(mc metrics.MetricsCollector) *Service {
	s.metrics = mc
	return s
}

// WithThresholdFallback はDB設定が未設定（0）の場合に使用する閾値を設定する。
// 環境変数由来の値をここに渡す。それも0の場合は組み込みデフォルトが使われる。
func (s *Service) WithThresholdFallback(th repository.Thresholds) *Service {
	s.fallback = th
	return s
}

// matchResult は1つの照合候補の判定結果。
type matchResult struct {
	candidate model.MatchCandidate
	contact   Contact
}

// RunNewDownloadPass は新規ダウンロード後の照合パスを実行する。
//
// 未評価の全ケースを (a) 遡及期間内のチェックインと分類器で照合し、
// (b) 全ブックマークと無条件間接接触として照合する。
// 両方の照合が完了した後、対象ケースをまとめて評価済みにする。
// 戻り値は新規MatchLinkが1件でも作られたかどうか。
func (s *Service) RunNewDownloadPass(ctx context.Context) (bool, error) {
	th, err := s.settings.Thresholds(ctx)
	if err != nil {
		return false, err
	}
	params, lookbackDays := s.effectiveParams(th)
	since := dayStart(s.now()).AddDate(0, 0, -lookbackDays)

	checkIns, err := s.cases.ListUnmatchedOverlapsWithCheckIns(ctx, since)
	if err != nil {
		return false, err
	}
	bookmarks, err := s.cases.ListUnmatchedOverlapsWithBookmarks(ctx)
	if err != nil {
		return false, err
	}

	now := s.now()
	var results []matchResult
	for _, c := range checkIns {
		contact := Classify(c.CaseStartTime, c.CaseEndTime, c.VisitStartTime, c.VisitEndTime,
			c.VenueInfo.Type, params, now)
		results = append(results, matchResult{candidate: c, contact: contact})
	}
	for _, c := range bookmarks {
		// ブックマークは時間的な意味を持たないため、会場一致自体が間接接触
		results = append(results, matchResult{candidate: c, contact: Contact{Type: ContactIndirect, DiffMs: 0}})
	}

	newLinks, err := s.aggregate(ctx, results)
	if err != nil {
		return false, err
	}

	if err := s.cases.MarkAllMatched(ctx); err != nil {
		return false, err
	}

	s.logger.Info("照合パスが完了しました",
		slog.Int("checkin_candidates", len(checkIns)),
		slog.Int("bookmark_candidates", len(bookmarks)),
		slog.Int("new_match_links", newLinks))

	return newLinks > 0, nil
}

// OnNewBookmarkCreated は新規ブックマーク作成時の照合パスを実行する。
//
// 新規ブックマークには過去の照合がないため、評価済みを含む全ケースを対象に
// 会場一致を無条件間接接触として照合する。評価済みフラグは変更しない。
func (s *Service) OnNewBookmarkCreated(ctx context.Context, visitID string) (bool, error) {
	visit, err := s.visits.FindByID(ctx, visitID)
	if err != nil {
		return false, err
	}
	if visit == nil {
		return false, model.NewVisitNotFoundError(visitID)
	}

	candidates, err := s.cases.ListOverlapsForVisit(ctx, visitID)
	if err != nil {
		return false, err
	}

	var results []matchResult
	for _, c := range candidates {
		results = append(results, matchResult{candidate: c, contact: Contact{Type: ContactIndirect, DiffMs: 0}})
	}

	newLinks, err := s.aggregate(ctx, results)
	if err != nil {
		return false, err
	}

	s.logger.Info("新規ブックマークの照合が完了しました",
		slog.String("visit_id", visitID),
		slog.Int("candidates", len(candidates)),
		slog.Int("new_match_links", newLinks))

	return newLinks > 0, nil
}

// aggregate は判定結果を訪問ごとにまとめ、通知インボックスへ反映する。
// 戻り値は新規に作成されたMatchLinkの件数。
func (s *Service) aggregate(ctx context.Context, results []matchResult) (int, error) {
	byVisit := map[string][]matchResult{}
	var order []string
	for _, r := range results {
		if r.contact.Type == ContactNone {
			continue
		}
		id := r.candidate.VisitID
		if _, seen := byVisit[id]; !seen {
			order = append(order, id)
		}
		byVisit[id] = append(byVisit[id], r)
	}

	totalNew := 0
	for _, visitID := range order {
		n, err := s.applyToVisit(ctx, visitID, byVisit[visitID])
		if err != nil {
			return totalNew, err
		}
		totalNew += n
	}
	return totalNew, nil
}

// applyToVisit は1つの訪問に対する判定結果を通知エントリへ反映する。
//
// 既存MatchLinkと同じケースは読み飛ばし（冪等性）、新規リンクのみ追加する。
// exposure/totalCountは既存＋新規の全リンクから再導出し、
// 訪問記録の曝露レベルも単調エスカレーションで追随させる。
func (s *Service) applyToVisit(ctx context.Context, visitID string, matches []matchResult) (int, error) {
	entry, err := s.notifications.FindByVisitID(ctx, visitID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	isNew := entry == nil
	if isNew {
		first := matches[0].candidate
		entry = &model.NotificationEntry{
			ID:         uuid.NewString(),
			VisitID:    visitID,
			VenueInfo:  first.VenueInfo,
			Date:       first.VisitStartTime,
			Bookmark:   first.VisitBookmark,
			Exposure:   model.ExposureNone,
			LastUpdate: now,
		}
	}

	existing, err := s.notifications.ListLinksByEntry(ctx, entry.ID)
	if err != nil {
		return 0, err
	}
	linked := map[int64]bool{}
	for _, l := range existing {
		linked[l.CaseID] = true
	}

	var newLinks []*model.MatchLink
	for _, m := range matches {
		if linked[m.candidate.CaseID] {
			continue
		}
		linked[m.candidate.CaseID] = true
		overlapMs := m.contact.DiffMs
		if overlapMs < 0 {
			overlapMs = 0
		}
		newLinks = append(newLinks, &model.MatchLink{
			ID:           uuid.NewString(),
			EntryID:      entry.ID,
			CaseID:       m.candidate.CaseID,
			Exposure:     m.contact.Type.Level(),
			Multiplicity: tokenCount(m.candidate.CaseTokens),
			OverlapMs:    overlapMs,
			MatchedAt:    now,
		})
	}

	if len(newLinks) == 0 {
		// 新規リンクなし。既存エントリは変更しない
		return 0, nil
	}

	// 全リンクからexposureとtotalCountを再導出
	level := model.ExposureNone
	total := 0
	for _, l := range existing {
		level = level.Escalate(l.Exposure)
		total += l.Multiplicity
	}
	for _, l := range newLinks {
		level = level.Escalate(l.Exposure)
		total += l.Multiplicity
	}
	entry.Exposure = level
	entry.TotalCount = total
	entry.LastUpdate = now

	if err := s.notifications.UpsertWithLinks(ctx, entry, newLinks, isNew); err != nil {
		return 0, err
	}

	if err := s.visits.SetExposure(ctx, visitID, level); err != nil {
		return 0, err
	}

	if s.metrics != nil {
		byLevel := map[string]int{}
		for _, l := range newLinks {
			byLevel[string(l.Exposure)]++
		}
		for lv, n := range byLevel {
			s.metrics.RecordMatches(lv, n)
		}
	}

	s.logger.Info("通知エントリを更新しました",
		slog.String("visit_id", visitID),
		slog.String("exposure", string(level)),
		slog.Int("total_count", total),
		slog.Int("new_links", len(newLinks)))

	return len(newLinks), nil
}

// effectiveParams は閾値設定から有効なパラメータを決定する。
// 優先順位はDB設定→フォールバック（環境変数）→組み込みデフォルトで、値0は「未設定」を意味する。
func (s *Service) effectiveParams(th repository.Thresholds) (Params, int) {
	direct := firstNonZero64(th.DirectOverlapThresholdMs,
		s.fallback.DirectOverlapThresholdMs, config.DefaultDirectOverlapThresholdMs)
	vehicleDays := firstNonZero(th.IndirectVehicleDays,
		s.fallback.IndirectVehicleDays, config.DefaultIndirectVehicleDays)
	lookbackDays := firstNonZero(th.CheckExposureDays,
		s.fallback.CheckExposureDays, config.DefaultCheckExposureDays)

	params := Params{
		DirectOverlapThresholdMs: direct,
		IndirectWithinMs:         int64(vehicleDays) * 24 * 60 * 60 * 1000,
	}
	return params, lookbackDays
}

// firstNonZero は最初の非ゼロ値を返す。
func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// firstNonZero64 は最初の非ゼロ値を返す。
func firstNonZero64(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// tokenCount はカンマ区切りトークンの個数を返す。
func tokenCount(tokens string) int {
	if tokens == "" {
		return 0
	}
	count := 1
	for i := 0; i < len(tokens); i++ {
		if tokens[i] == ',' {
			count++
		}
	}
	return count
}

// dayStart はtの属する日の開始時刻（ローカル時間の0時）を返す。
func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
