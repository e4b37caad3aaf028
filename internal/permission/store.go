package permission

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// decisionFile は許可判断ファイルの内容
type decisionFile struct {
	Video     string    `yaml:"video"`
	DecidedAt time.Time `yaml:"decided_at"`
}

// FileStore は許可判断をYAMLファイルに保存する
// ファイルが存在しない状態がインストール直後（未確認）に相当する
type FileStore struct {
	path string
}

// NewFileStore は新しいFileStoreを作成する
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load は保存済みの判断を読み込む
func (s *FileStore) Load() (AuthorizationState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NotDetermined, nil
		}
		return NotDetermined, fmt.Errorf("許可判断ファイルの読み込みに失敗: %w", err)
	}

	var f decisionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return NotDetermined, fmt.Errorf("許可判断ファイルの解析に失敗: %w", err)
	}
	return ParseAuthorizationState(f.Video)
}

// Save は判断をアトミックに保存する
func (s *FileStore) Save(state AuthorizationState) error {
	data, err := yaml.Marshal(decisionFile{Video: state.String(), DecidedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("許可判断のエンコードに失敗: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("許可判断ディレクトリの作成に失敗: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("許可判断ファイルの書き込みに失敗: %w", err)
	}
	return nil
}

// MemoryStore はテスト用のメモリ上の Store 実装
type MemoryStore struct {
	mu    sync.Mutex
	state AuthorizationState
	saves int
}

// NewMemoryStore は初期状態を指定してMemoryStoreを作成する
func NewMemoryStore(initial AuthorizationState) *MemoryStore {
	return &MemoryStore{state: initial}
}

// Load は保持している判断を返す
func (m *MemoryStore) Load() (AuthorizationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

// Save は判断を保持する
func (m *MemoryStore) Save(state AuthorizationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.saves++
	return nil
}

// Saves は Save が呼ばれた回数を返す
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
