package mask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
)

// ErrSessionClosed は Close 済みの Session を操作したときに返ります。
var ErrSessionClosed = errors.New("マスク編集セッションは終了しています")

// RegionRecorder は解析済み領域を追記するストアです（store.RegionStore が満たします）。
type RegionRecorder interface {
	Append(ctx context.Context, sessionID string, regions []domain.RegionInfo) error
}

// MaskUpdate はマスクが更新されたことを下流へ知らせる通知です。
// Empty が true の場合はすべてのストロークが消去されたことを示します。
type MaskUpdate struct {
	SessionID string
	Index     int
	Mask      domain.Mask
	Empty     bool
}

// MaskListener は MaskUpdate を受け取るコールバックです。
// セッションの所有ゴルーチン上で呼ばれるため、同じ Session のメソッドを同期的に呼んではいけません。
type MaskListener func(MaskUpdate)

// CommitResult は Commit の結果です。
// Available が false の場合は描画面が使えなかったため、マスクなしで続行してください。
type CommitResult struct {
	Mask      domain.Mask
	Analysis  *Analysis
	Available bool
}

// Session は1枚の画像に対するマスク編集状態を単一のゴルーチンで所有します。
// すべての操作はコマンドとして直列化されるため、再入やタイミング依存の重複通知は起きません。
type Session struct {
	id        string
	index     atomic.Int64 // 前の画像が削除されると詰められる
	comp      *Compositor
	recorder  RegionRecorder
	listeners []MaskListener

	cmds      chan func()
	quit      chan struct{}
	closeOnce sync.Once

	// 以下は run ゴルーチンだけが触ります。
	dirty bool
	last  *CommitResult
}

// NewSession はセッションを作成し、所有ゴルーチンを起動します。recorder は nil でも構いません。
func NewSession(id string, index int, comp *Compositor, recorder RegionRecorder, listeners ...MaskListener) (*Session, error) {
	if comp == nil {
		return nil, fmt.Errorf("compositor is required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		id:        id,
		comp:      comp,
		recorder:  recorder,
		listeners: listeners,
		cmds:      make(chan func()),
		quit:      make(chan struct{}),
	}
	s.index.Store(int64(index))
	go s.run()
	return s, nil
}

// ID はセッションIDを返します。
func (s *Session) ID() string { return s.id }

// Index は編集対象の画像インデックスを返します。
func (s *Session) Index() int { return int(s.index.Load()) }

// SetIndex は画像インデックスを更新します。以降の MaskUpdate は新しい値を使います。
func (s *Session) SetIndex(index int) { s.index.Store(int64(index)) }

func (s *Session) run() {
	for {
		select {
		case cmd := <-s.cmds:
			cmd()
		case <-s.quit:
			return
		}
	}
}

// do は fn を所有ゴルーチン上で実行し、完了を待ちます。
func (s *Session) do(ctx context.Context, fn func()) error {
	select {
	case <-s.quit:
		return ErrSessionClosed
	default:
	}

	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}
	select {
	case s.cmds <- cmd:
	case <-s.quit:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// 送信済みのコマンドは必ず最後まで実行されるため、完了だけを待つ
	<-done
	return nil
}

// ApplyStroke はストロークを追加します。
func (s *Session) ApplyStroke(ctx context.Context, stroke domain.Stroke) error {
	return s.do(ctx, func() {
		s.comp.ApplyStroke(stroke.Points, stroke.BrushRadius, stroke.Erase)
		s.dirty = true
	})
}

// ExtendStroke は最後のストロークに点を追加します。
func (s *Session) ExtendStroke(ctx context.Context, points []domain.StrokePoint) (bool, error) {
	var ok bool
	err := s.do(ctx, func() {
		ok = s.comp.ExtendStroke(points)
		s.dirty = s.dirty || ok
	})
	return ok, err
}

// SetErasing はモードを切り替えます。ストロークは変わらないため再描画は不要です。
func (s *Session) SetErasing(ctx context.Context, erasing bool) error {
	return s.do(ctx, func() { s.comp.SetErasing(erasing) })
}

// Undo は最後のストロークを取り消します。
func (s *Session) Undo(ctx context.Context) (bool, error) {
	var ok bool
	err := s.do(ctx, func() {
		ok = s.comp.Undo()
		s.dirty = s.dirty || ok
	})
	return ok, err
}

// Clear はすべてのストロークを消去し、リスナーに空マスクを通知します。
func (s *Session) Clear(ctx context.Context) error {
	return s.do(ctx, func() {
		s.comp.Clear()
		s.dirty = false
		s.last = &CommitResult{Available: true}
		s.notify(MaskUpdate{SessionID: s.id, Index: s.Index(), Empty: true})
	})
}

// Strokes は現在のストローク列のコピーを返します。
func (s *Session) Strokes(ctx context.Context) ([]domain.Stroke, error) {
	var out []domain.Stroke
	err := s.do(ctx, func() { out = s.comp.Strokes() })
	return out, err
}

// Commit は描画→解析→エンコードを行い、最新のマスクを返します。
// 前回の Commit 以降に変更がなければ前回の結果をそのまま返します。
func (s *Session) Commit(ctx context.Context) (CommitResult, error) {
	var (
		res CommitResult
		err error
	)
	if doErr := s.do(ctx, func() { res, err = s.commit(ctx) }); doErr != nil {
		return CommitResult{}, doErr
	}
	return res, err
}

func (s *Session) commit(ctx context.Context) (CommitResult, error) {
	if !s.dirty && s.last != nil {
		return *s.last, nil
	}

	analysis, err := s.comp.Analyze(ctx)
	if err != nil {
		if errors.Is(err, ErrSurfaceUnavailable) {
			slog.WarnContext(ctx, "描画面が利用できないため、マスクなしで続行します", "session", s.id, "error", err)
			return CommitResult{Available: false}, nil
		}
		return CommitResult{}, fmt.Errorf("マスクの描画に失敗しました: %w", err)
	}

	res := CommitResult{Analysis: analysis, Available: true}
	if !analysis.Empty() {
		png, err := analysis.Mask.Encode()
		if err != nil {
			return CommitResult{}, err
		}
		res.Mask = domain.Mask{
			SourceRegionID: uuid.NewString(),
			Image:          png,
			Regions:        analysis.Regions,
		}
	}

	if s.recorder != nil && len(analysis.Regions) > 0 {
		if err := s.recorder.Append(ctx, s.id, analysis.Regions); err != nil {
			// 領域メタデータは補助情報なので、保存に失敗してもマスク自体は返す
			slog.WarnContext(ctx, "領域メタデータの保存に失敗しました", "session", s.id, "error", err)
		}
	}

	s.dirty = false
	s.last = &res
	slog.InfoContext(ctx, "マスクを更新しました", "session", s.id, "index", s.Index(), "regions", len(analysis.Regions))

	s.notify(MaskUpdate{SessionID: s.id, Index: s.Index(), Mask: res.Mask, Empty: analysis.Empty()})
	return res, nil
}

func (s *Session) notify(u MaskUpdate) {
	for _, l := range s.listeners {
		l(u)
	}
}

// Close は所有ゴルーチンを停止します。
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}
