package permission

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func waitState(t *testing.T, ch <-chan AuthorizationState) AuthorizationState {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("コールバックが呼ばれませんでした")
		return NotDetermined
	}
}

func TestGate_CheckAuthorization(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name  string
		store AuthorizationState
		probe AccessProbe
		want  AuthorizationState
	}{
		{"未確認", NotDetermined, nil, NotDetermined},
		{"許可済み", Authorized, nil, Authorized},
		{"拒否済み", Denied, nil, Denied},
		{
			"デバイスを開けない場合は拒否",
			Authorized,
			func(context.Context) error { return ErrAccessDenied },
			Denied,
		},
		{
			"権限以外のエラーは無視",
			Authorized,
			func(context.Context) error { return errors.New("other") },
			Authorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gate := NewGate(NewMemoryStore(tc.store), &StaticPrompter{}, tc.probe)
			assert.Equal(t, tc.want, gate.CheckAuthorization(ctx))
		})
	}
}

func TestGate_RequestAuthorizationPersistsDecision(t *testing.T) {
	store := NewMemoryStore(NotDetermined)
	prompter := &StaticPrompter{Grant: true}
	gate := NewGate(store, prompter, nil)

	ch := make(chan AuthorizationState, 1)
	gate.RequestAuthorization(context.Background(), func(s AuthorizationState) { ch <- s })
	assert.Equal(t, Authorized, waitState(t, ch))
	assert.Equal(t, 1, store.Saves())

	// 2回目は確認せずに保存済みの判断を返す
	gate.RequestAuthorization(context.Background(), func(s AuthorizationState) { ch <- s })
	assert.Equal(t, Authorized, waitState(t, ch))
	assert.Equal(t, 1, prompter.Calls())
	assert.Equal(t, Authorized, gate.CheckAuthorization(context.Background()))
}

func TestGate_RequestAuthorizationDenied(t *testing.T) {
	store := NewMemoryStore(NotDetermined)
	gate := NewGate(store, &StaticPrompter{Grant: false}, nil)

	ch := make(chan AuthorizationState, 1)
	gate.RequestAuthorization(context.Background(), func(s AuthorizationState) { ch <- s })
	assert.Equal(t, Denied, waitState(t, ch))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Denied, state)
}

func TestGate_PromptErrorIsNotPersisted(t *testing.T) {
	store := NewMemoryStore(NotDetermined)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 入力が来ない端末で、キャンセル済みのコンテキストを渡す
	gate := NewGate(store, &TerminalPrompter{In: blockingReader{}, Out: &bytes.Buffer{}}, nil)

	ch := make(chan AuthorizationState, 1)
	gate.RequestAuthorization(ctx, func(s AuthorizationState) { ch <- s })
	assert.Equal(t, Denied, waitState(t, ch))
	assert.Equal(t, 0, store.Saves())
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}

func TestTerminalPrompter(t *testing.T) {
	testCases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(strings.TrimSpace(tc.input), func(t *testing.T) {
			var out bytes.Buffer
			p := &TerminalPrompter{In: strings.NewReader(tc.input), Out: &out}
			got, err := p.Prompt(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Contains(t, out.String(), "[y/N]")
		})
	}
}

func TestTerminalPrompter_CancelLeavesReadUntilInput(t *testing.T) {
	// 他のテストで読み取り待ちのまま残ったゴルーチンは対象外
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	p := &TerminalPrompter{In: r, Out: &bytes.Buffer{}}

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Prompt(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("キャンセル後も Prompt が戻りませんでした")
	}

	// 読み取り中のゴルーチンは入力が届くと終了する
	_, err := w.Write([]byte("y\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "permission.yaml")
	store := NewFileStore(path)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, NotDetermined, state, "ファイルがない場合は未確認")

	require.NoError(t, store.Save(Denied))
	state, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, Denied, state)
}

func TestParseAuthorizationState(t *testing.T) {
	_, err := ParseAuthorizationState("maybe")
	assert.Error(t, err)

	for _, s := range []AuthorizationState{NotDetermined, Authorized, Denied} {
		parsed, err := ParseAuthorizationState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}
