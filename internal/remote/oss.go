package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/cjeanneret/PiLapse/internal/config"
	"github.com/cjeanneret/PiLapse/internal/domain"
	"github.com/cjeanneret/PiLapse/internal/logging"
)

// KeyPrefix is the top-level folder of every uploaded object.
const KeyPrefix = "raspberry"

// ObjectPutter stores one object. *oss.Bucket satisfies it.
type ObjectPutter interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

// Uploader sends local images to an OSS bucket.
type Uploader struct {
	bucket   ObjectPutter
	name     string
	endpoint string // host only
	now      func() time.Time
	log      *slog.Logger
}

// NewOSS builds an uploader from the OSS credentials. No request is made
// until the first upload.
func NewOSS(cfg config.OSSConfig, log *slog.Logger) (*Uploader, error) {
	host := stripScheme(cfg.Endpoint)
	client, err := oss.New("https://"+host, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, domain.Wrap(domain.KindUpload, "oss client", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, domain.Wrap(domain.KindUpload, "oss bucket", err)
	}
	return NewUploader(bucket, cfg.Bucket, host, log), nil
}

// NewUploader wraps an already opened bucket.
func NewUploader(bucket ObjectPutter, bucketName, endpoint string, log *slog.Logger) *Uploader {
	return &Uploader{
		bucket:   bucket,
		name:     bucketName,
		endpoint: stripScheme(endpoint),
		now:      time.Now,
		log:      logging.Component(log, "oss"),
	}
}

// ObjectKey returns raspberry/YYYY/MM/DD/<filename> for the date of t.
func ObjectKey(t time.Time, filename string) string {
	return path.Join(KeyPrefix, t.Format("2006"), t.Format("01"), t.Format("02"), filename)
}

// PublicURL is the virtual-hosted URL of key. It is not checked for reachability.
func (u *Uploader) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", u.name, u.endpoint, key)
}

// Upload streams localPath to the bucket under a key dated with the upload
// time. The local file is left in place. Failures are domain.KindUpload.
func (u *Uploader) Upload(ctx context.Context, localPath, filename string) (domain.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.UploadResult{}, domain.Wrap(domain.KindUpload, "upload", err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return domain.UploadResult{}, domain.Wrap(domain.KindUpload, "upload", err)
	}
	defer f.Close()

	key := ObjectKey(u.now(), filename)
	start := time.Now()
	err = u.bucket.PutObject(key, f,
		oss.ContentType(contentType(filename)),
		oss.WithContext(ctx),
	)
	if err != nil {
		u.log.Error("upload failed", "key", key, "err", err)
		return domain.UploadResult{}, domain.Wrap(domain.KindUpload, "upload "+key, err)
	}

	res := domain.UploadResult{URL: u.PublicURL(key), Key: key}
	u.log.Info("uploaded", "key", key, "url", res.URL, logging.Since(start))
	return res, nil
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if _, rest, ok := strings.Cut(endpoint, "://"); ok {
		endpoint = rest
	}
	return strings.TrimRight(endpoint, "/")
}
