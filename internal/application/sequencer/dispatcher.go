package sequencer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
)

// ErrClosed 停止済みのDispatcher/MainThreadへの投入エラー
var ErrClosed = errors.New("sequencer closed")

// ErrNotPersisted 永続化が完了しなかったエラー
var ErrNotPersisted = errors.New("change was not persisted")

// Result 非同期処理の完了通知。チャネルに一度だけ書き込まれ、その後閉じられる。
type Result struct {
	Success bool
	Err     error
}

// Job 非同期に実行する処理
type Job func(ctx context.Context) error

type task struct {
	ctx  context.Context
	job  Job
	done chan Result
}

// Dispatcher 永続化処理をワーカープールで実行する。
// 同じキーの処理は同じワーカーに割り当てられ、投入順に実行される。
type Dispatcher struct {
	shards []chan task
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher 新しいDispatcherを作成し、ワーカーを起動
func NewDispatcher(workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{shards: make([]chan task, workers)}
	for i := range d.shards {
		d.shards[i] = make(chan task, queueSize)
		d.wg.Add(1)
		go d.run(d.shards[i])
	}
	return d
}

func (d *Dispatcher) run(tasks <-chan task) {
	defer d.wg.Done()
	for t := range tasks {
		t.done <- execute(t.ctx, t.job)
		close(t.done)
	}
}

func execute(ctx context.Context, job Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("job panicked: %v", r)}
		}
	}()
	if err := job(ctx); err != nil {
		return Result{Err: err}
	}
	return Result{Success: true}
}

// Submit 処理を投入し、完了通知のチャネルを返す。
// 呼び出し元のキャンセルは処理に伝播しない。
func (d *Dispatcher) Submit(ctx context.Context, key string, job Job) <-chan Result {
	done := make(chan Result, 1)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		done <- Result{Err: ErrClosed}
		close(done)
		return done
	}

	d.shards[d.shard(key)] <- task{ctx: context.WithoutCancel(ctx), job: job, done: done}
	return done
}

// Wait 完了通知を待つ。ctxが先に終了した場合は処理の完了を待たずに返る。
func Wait(ctx context.Context, ch <-chan Result) Result {
	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// Close 新規投入を止め、投入済みの処理が終わるまで待つ
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Partition キーを担当ワーカーごとにまとめる。各グループは先頭のキーで投入すれば同じワーカーで実行される。
func (d *Dispatcher) Partition(keys []string) [][]string {
	groups := map[int][]string{}
	order := []int{}
	for _, k := range keys {
		i := d.shard(k)
		if _, ok := groups[i]; !ok {
			order = append(order, i)
		}
		groups[i] = append(groups[i], k)
	}
	out := make([][]string, 0, len(order))
	for _, i := range order {
		out = append(out, groups[i])
	}
	return out
}

func (d *Dispatcher) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// Completed 完了済みの通知チャネルを返す
func Completed(err error) <-chan Result {
	done := make(chan Result, 1)
	done <- Result{Success: err == nil, Err: err}
	close(done)
	return done
}

// Join 全ての通知を待ち、一つにまとめる。最初のエラーを保持する。
func Join(chs ...<-chan Result) <-chan Result {
	done := make(chan Result, 1)
	go func() {
		defer close(done)
		merged := Result{Success: true}
		for _, ch := range chs {
			res := <-ch
			if !res.Success {
				merged.Success = false
				if merged.Err == nil {
					merged.Err = res.Err
				}
			}
		}
		done <- merged
	}()
	return done
}
