package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite" // SQLiteドライバー（CGO不要）
)

// ErrEmptyChange は変更リクエストに何も含まれていない場合のエラー
var ErrEmptyChange = errors.New("変更内容がありません")

// ErrAssetNotFound はアセットが存在しない場合のエラー
var ErrAssetNotFound = errors.New("アセットが見つかりません")

// ResourceType はアセットに含めるリソースの種類
type ResourceType string

const (
	ResourceTypePhoto ResourceType = "photo"
)

func (r ResourceType) extension() string {
	switch r {
	case ResourceTypePhoto:
		return ".jpg"
	default:
		return ".bin"
	}
}

// Asset はライブラリに保存されたアセット
type Asset struct {
	ID        string       `json:"id"`
	Type      ResourceType `json:"type"`
	Filename  string       `json:"filename"`
	SizeBytes int64        `json:"size_bytes"`
	CreatedAt time.Time    `json:"created_at"`
}

type resource struct {
	typ  ResourceType
	data []byte
}

// CreationRequest は一つのアセットの作成要求
type CreationRequest struct {
	resources []resource
}

// AddResource はアセットにリソースを追加する
func (c *CreationRequest) AddResource(typ ResourceType, data []byte) {
	c.resources = append(c.resources, resource{typ: typ, data: data})
}

// ChangeRequest は一回の変更トランザクションで行う変更
type ChangeRequest struct {
	creations []*CreationRequest
}

// CreationRequestForAsset は新しいアセットの作成要求を追加して返す
func (r *ChangeRequest) CreationRequestForAsset() *CreationRequest {
	c := &CreationRequest{}
	r.creations = append(r.creations, c)
	return c
}

// Library は写真ライブラリ
// ファイルはディレクトリに、索引はSQLiteに保存する
type Library struct {
	dir    string
	db     *sql.DB
	logger zerolog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Open はディレクトリのライブラリを開く。存在しない場合は作成する
func Open(dir string, logger zerolog.Logger) (*Library, error) {
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		return nil, fmt.Errorf("ライブラリディレクトリの作成に失敗: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		filepath.Join(dir, "library.db"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベースを開けません: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースに接続できません: %w", err)
	}

	lib := &Library{dir: dir, db: db, logger: logger}
	if err := lib.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	return lib, nil
}

func (l *Library) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		filename TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assets_created_at ON assets(created_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close は実行中の変更の完了を待ってからライブラリを閉じる
func (l *Library) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.wg.Wait()
	return l.db.Close()
}

// PerformChanges は変更を非同期に適用し、完了時に completion を呼ぶ
// completion は呼び出し元とは別のゴルーチンから呼ばれる
func (l *Library) PerformChanges(ctx context.Context, changes func(*ChangeRequest), completion func(success bool, err error)) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if completion != nil {
			completion(false, errors.New("ライブラリは閉じられています"))
		}
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		err := l.PerformChangesAndWait(ctx, changes)
		if completion != nil {
			completion(err == nil, err)
		}
	}()
}

// PerformChangesAndWait は変更を同期的に適用する
// 全てのアセットが保存されるか、何も保存されないかのどちらか
func (l *Library) PerformChangesAndWait(ctx context.Context, changes func(*ChangeRequest)) error {
	req := &ChangeRequest{}
	changes(req)

	total := 0
	for _, c := range req.creations {
		total += len(c.resources)
	}
	if total == 0 {
		return ErrEmptyChange
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}

	var written []string
	rollback := func(cause error) error {
		_ = tx.Rollback()
		for _, path := range written {
			_ = os.Remove(path)
		}
		return cause
	}

	now := time.Now().UTC()
	for _, c := range req.creations {
		for _, res := range c.resources {
			if len(res.data) == 0 {
				return rollback(fmt.Errorf("%w: 空のリソース", ErrEmptyChange))
			}

			id := uuid.NewString()
			filename := id + res.typ.extension()
			path := filepath.Join(l.dir, "assets", filename)

			if err := renameio.WriteFile(path, res.data, 0o644); err != nil {
				return rollback(fmt.Errorf("リソースの書き込みに失敗: %w", err))
			}
			written = append(written, path)

			_, err := tx.ExecContext(ctx,
				`INSERT INTO assets (id, type, filename, size_bytes, created_at) VALUES (?, ?, ?, ?, ?)`,
				id, string(res.typ), filename, len(res.data), now.Format(time.RFC3339Nano))
			if err != nil {
				return rollback(fmt.Errorf("アセットの登録に失敗: %w", err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return rollback(fmt.Errorf("コミットに失敗: %w", err))
	}

	l.logger.Info().Int("assets", len(written)).Msg("ライブラリに保存しました")
	return nil
}

// Assets は保存されたアセットを新しい順に返す
func (l *Library) Assets(ctx context.Context) ([]Asset, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, type, filename, size_bytes, created_at FROM assets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var assets []Asset
	for rows.Next() {
		var a Asset
		var created string
		if err := rows.Scan(&a.ID, &a.Type, &a.Filename, &a.SizeBytes, &created); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			a.CreatedAt = t
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// AssetPath はアセットのファイルパスを返す
func (l *Library) AssetPath(ctx context.Context, id string) (string, error) {
	var filename string
	err := l.db.QueryRowContext(ctx, `SELECT filename FROM assets WHERE id = ?`, id).Scan(&filename)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, "assets", filename), nil
}
