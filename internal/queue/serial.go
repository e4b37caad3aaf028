// Package queue はシリアルワーカー（単一消費者のタスクキュー）を提供する
//
// # 責務
// - 投入されたタスクを投入順に1つずつ実行する
// - Suspend/Resume による後続タスクの一時停止
// - Close 時に残タスクを実行してからワーカーを終了する
//
// # 仕様
//   - 実行中のタスクは Suspend の影響を受けない（次のタスクから停止する）
//   - Suspend はネスト可能で、同じ回数の Resume で再開する
//   - タスク内のpanicは回収してログに出力し、ワーカーは継続する
package queue

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	applog "cameralink/internal/log"
)

// Serial は投入順に直列実行するタスクキュー
type Serial struct {
	logger zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	tasks     []func()
	suspended int
	closed    bool

	done chan struct{}
}

// NewSerial は新しいSerialを作成してワーカーゴルーチンを起動する
func NewSerial(label string) *Serial {
	q := &Serial{
		logger: applog.WithComponent("queue").With().Str("queue", label).Logger(),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	go q.run()
	return q
}

// Async はタスクを非同期に投入する
// キューが閉じられている場合は false を返す
func (q *Serial) Async(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	return true
}

// AsyncAfter は指定時間後にタスクを投入する
func (q *Serial) AsyncAfter(delay time.Duration, task func()) *time.Timer {
	return time.AfterFunc(delay, func() {
		q.Async(task)
	})
}

// Sync はタスクを投入し、実行完了まで待機する
// キューが閉じられている場合は実行せずに false を返す
func (q *Serial) Sync(task func()) bool {
	finished := make(chan struct{})
	if !q.Async(func() {
		defer close(finished)
		task()
	}) {
		return false
	}
	<-finished
	return true
}

// Suspend は後続タスクの実行を停止する
func (q *Serial) Suspend() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.suspended++
}

// Resume は Suspend で停止した実行を再開する
func (q *Serial) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.suspended == 0 {
		q.logger.Warn().Msg("Suspendされていないキューに対してResumeが呼ばれました")
		return
	}
	q.suspended--
	if q.suspended == 0 {
		q.cond.Broadcast()
	}
}

// Close はキューを閉じ、残タスクの実行完了を待つ
// 停止中のキューは停止を解除してから残タスクを実行する
func (q *Serial) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.suspended = 0
		q.cond.Broadcast()
	}
	q.mu.Unlock()

	<-q.done
}

// Pending は未実行のタスク数を返す
func (q *Serial) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// run はワーカーのメインループ
func (q *Serial) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for !q.closed && (len(q.tasks) == 0 || q.suspended > 0) {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			// closed かつ残タスクなし
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.execute(task)
	}
}

// execute はpanicを回収しながらタスクを実行する
func (q *Serial) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Msg("タスクの実行中にpanicが発生しました")
		}
	}()
	task()
}
