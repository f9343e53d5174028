package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/rickgao/storefront/internal/metrics"
	"github.com/rickgao/storefront/internal/model"
	"github.com/rickgao/storefront/internal/version"
)

// Config locates the bucket.
type Config struct {
	Endpoint string // Overrides the regional endpoint; addressed path-style
	Bucket   string
	Region   string
}

// Progress is the cumulative state of an upload.
type Progress struct {
	Loaded int64
	Total  int64 // 0 when the size is unknown
	Done   bool
}

// Percent returns round(Loaded/Total*100) clamped to [0, 100]. With an
// unknown total it reports 0 until the upload is done, then 100.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		if p.Done {
			return 100
		}
		return 0
	}
	pct := int(math.Round(float64(p.Loaded) / float64(p.Total) * 100))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// PutOptions configures one upload.
type PutOptions struct {
	ContentType string
	// Progress, when set, is called as bytes are sent and once more when
	// the upload completes. Calls are serialized but may come from the HTTP
	// transport's goroutine.
	Progress func(Progress)
}

// ObjectError is a request the object store refused.
type ObjectError struct {
	StatusCode int
	Code       string // e.g. AccessDenied
	Message    string

	err error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("object store %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// RemoteMessage returns the store's message.
func (e *ObjectError) RemoteMessage() string {
	return e.Message
}

func (e *ObjectError) Unwrap() error {
	return e.err
}

func objectError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	e := &ObjectError{Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage(), err: err}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		e.StatusCode = respErr.HTTPStatusCode()
	}
	if e.Message == "" {
		e.Message = http.StatusText(e.StatusCode)
	}
	return e
}

// Uploader writes objects to the bucket.
type Uploader struct {
	cfg        Config
	creds      aws.CredentialsProvider
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger

	uploader *manager.Uploader
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(u *Uploader) {
		u.httpClient = hc
	}
}

// WithMetrics counts uploaded bytes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// NewUploader creates an Uploader that signs requests with creds. A nil
// creds sends anonymous requests.
func NewUploader(cfg Config, creds aws.CredentialsProvider, opts ...Option) *Uploader {
	u := &Uploader{
		cfg:        cfg,
		creds:      creds,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.creds == nil {
		u.creds = aws.AnonymousCredentials{}
	}

	client := s3.New(s3.Options{
		Region:                     cfg.Region,
		Credentials:                u.creds,
		HTTPClient:                 u.httpClient,
		Retryer:                    aws.NopRetryer{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		AppID:                      "storefront-" + version.Version,
	}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	u.uploader = manager.NewUploader(client)
	return u
}

// ObjectKey namespaces an upload: {visibility}/{identityID}/{unixMillis}-{filename}.
// Only the base name of filename is kept.
func ObjectKey(visibility, identityID string, now time.Time, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return fmt.Sprintf("%s/%s/%d-%s", visibility, identityID, now.UnixMilli(), name)
}

// Put streams body to key. size is the byte length of body, or 0 when
// unknown. It returns a reference to the stored object.
func (u *Uploader) Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (model.FileRef, error) {
	if key == "" {
		return model.FileRef{}, errors.New("put object: key is required")
	}
	if u.cfg.Bucket == "" {
		return model.FileRef{}, errors.New("put object: no bucket configured")
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	pr := &progressReader{r: body, total: size, report: opts.Progress}

	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        pr,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return model.FileRef{}, fmt.Errorf("put object %s: %w", key, objectError(err))
	}

	loaded := pr.finish()
	u.metrics.UploadBytes(loaded)
	u.logger.Debug("object uploaded", "key", key, "bytes", loaded, "content_type", contentType)

	return model.FileRef{Key: key, Bucket: u.cfg.Bucket, Region: u.cfg.Region}, nil
}

// progressReader reports cumulative bytes read.
type progressReader struct {
	r      io.Reader
	total  int64
	report func(Progress)

	mu     sync.Mutex
	loaded int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.loaded += int64(n)
		if p.report != nil {
			p.report(Progress{Loaded: p.loaded, Total: p.total})
		}
		p.mu.Unlock()
	}
	return n, err
}

// finish reports completion and returns the byte count.
func (p *progressReader) finish() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.report != nil {
		p.report(Progress{Loaded: p.loaded, Total: p.total, Done: true})
	}
	return p.loaded
}
