package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/krushibheru/agromonitor-backend/internal/platform/envutil"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

// ArtifactStore persists report artifacts under reports/<field>/<name> keys.
// The default backend is a local directory; setting REPORT_GCS_BUCKET_NAME
// switches the same key space onto a GCS bucket.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

func NewArtifactStore(log *logger.Logger) (ArtifactStore, error) {
	if log == nil {
		return nil, fmt.Errorf("missing logger")
	}
	serviceLog := log.With("service", "ArtifactStore")

	if bucket := strings.TrimSpace(os.Getenv("REPORT_GCS_BUCKET_NAME")); bucket != "" {
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		client, err := storage.NewClient(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		serviceLog.Info("report artifacts on gcs", "bucket", bucket)
		return &gcsStore{
			log:       serviceLog,
			client:    client,
			bucket:    bucket,
			cdnDomain: strings.TrimSpace(os.Getenv("REPORT_CDN_DOMAIN")),
		}, nil
	}

	root := envutil.Str("REPORT_LOCAL_DIR", "./reports")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	serviceLog.Info("report artifacts on local disk", "dir", root)
	return &localStore{log: serviceLog, root: root}, nil
}

// cleanKey rejects traversal so a key can never escape the store root.
func cleanKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return cleaned, nil
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".png":
		return "image/png"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return ""
	}
}

type gcsStore struct {
	log       *logger.Logger
	client    *storage.Client
	bucket    string
	cdnDomain string
}

func (gs *gcsStore) Put(ctx context.Context, key string, data io.Reader) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := gs.client.Bucket(gs.bucket).Object(cleaned).NewWriter(ctx)
	if ct := contentTypeForKey(cleaned); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write artifact to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer: %w", err)
	}
	return nil
}

// Open keeps its timeout alive for the life of the reader; cancel fires on
// Close, not on return, so callers do not read from a dead context.
func (gs *gcsStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	rctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := gs.client.Bucket(gs.bucket).Object(cleaned).NewReader(rctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open gcs artifact %q: %w", cleaned, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (gs *gcsStore) Delete(ctx context.Context, key string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := gs.client.Bucket(gs.bucket).Object(cleaned).Delete(ctx); err != nil {
		return fmt.Errorf("delete gcs artifact %q: %w", cleaned, err)
	}
	return nil
}

func (gs *gcsStore) URL(key string) string {
	cleaned, err := cleanKey(key)
	if err != nil {
		return key
	}
	if gs.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", gs.cdnDomain, cleaned)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", gs.bucket, cleaned)
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

type localStore struct {
	log  *logger.Logger
	root string
}

func (ls *localStore) pathFor(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(ls.root, filepath.FromSlash(cleaned)), nil
}

func (ls *localStore) Put(_ context.Context, key string, data io.Reader) error {
	target, err := ls.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create artifact file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write artifact file: %w", err)
	}
	return f.Close()
}

func (ls *localStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := ls.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open artifact %q: %w", key, err)
	}
	return f, nil
}

func (ls *localStore) Delete(_ context.Context, key string) error {
	target, err := ls.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact %q: %w", key, err)
	}
	return nil
}

func (ls *localStore) URL(key string) string {
	target, err := ls.pathFor(key)
	if err != nil {
		return key
	}
	return target
}
