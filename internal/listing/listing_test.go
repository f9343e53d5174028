package listing

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/storefront/internal/api"
	"github.com/rickgao/storefront/internal/model"
	"github.com/rickgao/storefront/internal/storage"
	"github.com/rickgao/storefront/internal/view"
)

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeUploader) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (model.FileRef, error) {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	if f.err != nil {
		return model.FileRef{}, f.err
	}
	n, _ := io.Copy(io.Discard, body)
	if opts.Progress != nil {
		opts.Progress(storage.Progress{Loaded: n / 2, Total: n})
		opts.Progress(storage.Progress{Loaded: n, Total: n, Done: true})
	}
	return model.FileRef{Key: key, Bucket: "images", Region: "us-east-1"}, nil
}

type fakeProducts struct {
	inputs []api.CreateProductInput
	err    error
}

func (f *fakeProducts) CreateProduct(ctx context.Context, input api.CreateProductInput) (model.Product, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return model.Product{}, f.err
	}
	return model.Product{
		ID:          "p1",
		MarketID:    input.ProductMarketID,
		Description: input.Description,
		Price:       input.Price,
		Shipped:     input.Shipped,
		File:        model.FileRef{Key: input.File.Key, Bucket: input.File.Bucket, Region: input.File.Region},
	}, nil
}

type fixedIdentity string

func (f fixedIdentity) StorageIdentity(ctx context.Context) (string, error) {
	if f == "" {
		return "", errors.New("no credentials")
	}
	return string(f), nil
}

type noticeRecorder struct {
	notices []view.Notice
}

func (r *noticeRecorder) Notify(n view.Notice) { r.notices = append(r.notices, n) }

func draft() Draft {
	return Draft{
		MarketID:    "m1",
		Description: "  Blue vase ",
		Price:       "19.99",
		Shipped:     true,
		Image:       &Image{Name: "vase.png", ContentType: "image/png", Size: 4, Body: strings.NewReader("data")},
	}
}

func newTestSubmitter(up *fakeUploader, prods *fakeProducts, ident IdentityResolver, rec *noticeRecorder, scope *view.Scope) *Submitter {
	s := NewSubmitter(Config{}, up, prods, ident, rec, scope, nil)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestDraftReady(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Draft)
		want   bool
	}{
		{"complete", func(d *Draft) {}, true},
		{"no description", func(d *Draft) { d.Description = " " }, false},
		{"no price", func(d *Draft) { d.Price = "" }, false},
		{"no image", func(d *Draft) { d.Image = nil }, false},
		{"shipped is optional", func(d *Draft) { d.Shipped = false }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := draft()
			tt.mutate(&d)
			assert.Equal(t, tt.want, d.Ready())
		})
	}
}

func TestSubmit(t *testing.T) {
	up := &fakeUploader{}
	prods := &fakeProducts{}
	rec := &noticeRecorder{}
	s := newTestSubmitter(up, prods, fixedIdentity("us-east-1:abc"), rec, nil)

	p, err := s.Submit(context.Background(), draft())
	require.NoError(t, err)

	assert.Equal(t, []string{"public/us-east-1:abc/1700000000000-vase.png"}, up.keys)
	require.Len(t, prods.inputs, 1)
	assert.Equal(t, api.CreateProductInput{
		Description:     "Blue vase",
		Price:           1999,
		Shipped:         true,
		ProductMarketID: "m1",
		File:            api.S3Object{Key: "public/us-east-1:abc/1700000000000-vase.png", Bucket: "images", Region: "us-east-1"},
	}, prods.inputs[0])
	assert.Equal(t, int64(1999), p.Price)

	require.Len(t, rec.notices, 1)
	assert.Equal(t, view.NoticeSuccess, rec.notices[0].Kind)
	assert.Equal(t, "Product successfully created!", rec.notices[0].Message)

	uploading, pct := s.Progress()
	assert.False(t, uploading)
	assert.Equal(t, 100, pct)
}

func TestSubmitIncomplete(t *testing.T) {
	up := &fakeUploader{}
	prods := &fakeProducts{}
	s := newTestSubmitter(up, prods, fixedIdentity("id"), &noticeRecorder{}, nil)

	d := draft()
	d.Image = nil
	_, err := s.Submit(context.Background(), d)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, api.KindValidation, api.KindOf(err))
	assert.Empty(t, up.keys)
	assert.Empty(t, prods.inputs)
}

func TestSubmitInvalidPriceDoesNotUpload(t *testing.T) {
	up := &fakeUploader{}
	prods := &fakeProducts{}
	rec := &noticeRecorder{}
	s := newTestSubmitter(up, prods, fixedIdentity("id"), rec, nil)

	d := draft()
	d.Price = "12.3.4"
	_, err := s.Submit(context.Background(), d)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	assert.Empty(t, up.keys)
	require.Len(t, rec.notices, 1)
	assert.Equal(t, view.NoticeError, rec.notices[0].Kind)
}

func TestSubmitZeroPriceRejected(t *testing.T) {
	for _, price := range []string{"0", "0.00", ".001"} {
		t.Run(price, func(t *testing.T) {
			up := &fakeUploader{}
			prods := &fakeProducts{}
			rec := &noticeRecorder{}
			s := newTestSubmitter(up, prods, fixedIdentity("id"), rec, nil)

			d := draft()
			d.Price = price
			_, err := s.Submit(context.Background(), d)
			assert.ErrorIs(t, err, api.ErrInvalidInput)
			assert.Equal(t, api.KindValidation, api.KindOf(err))
			assert.Empty(t, up.keys, "nothing uploaded for an unpurchasable price")
			assert.Empty(t, prods.inputs)
			require.Len(t, rec.notices, 1)
			assert.Equal(t, view.NoticeError, rec.notices[0].Kind)
		})
	}
}

func TestSubmitUploadFailureCreatesNothing(t *testing.T) {
	up := &fakeUploader{err: &api.APIError{StatusCode: 403, Message: "Forbidden", Body: []byte(`{"message":"Access Denied"}`)}}
	prods := &fakeProducts{}
	rec := &noticeRecorder{}
	s := newTestSubmitter(up, prods, fixedIdentity("id"), rec, nil)

	_, err := s.Submit(context.Background(), draft())
	require.Error(t, err)
	assert.Empty(t, prods.inputs, "no product without a prior upload")

	require.Len(t, rec.notices, 1)
	assert.Equal(t, "Access Denied", rec.notices[0].Message)
}

func TestSubmitIdentityFailure(t *testing.T) {
	up := &fakeUploader{}
	prods := &fakeProducts{}
	rec := &noticeRecorder{}
	s := newTestSubmitter(up, prods, fixedIdentity(""), rec, nil)

	_, err := s.Submit(context.Background(), draft())
	require.Error(t, err)
	assert.Empty(t, up.keys)
	assert.Equal(t, "Error adding product", rec.notices[0].Message)
}

func TestSubmitCreateFailure(t *testing.T) {
	up := &fakeUploader{}
	prods := &fakeProducts{err: errors.New("timeout")}
	rec := &noticeRecorder{}
	s := newTestSubmitter(up, prods, fixedIdentity("id"), rec, nil)

	_, err := s.Submit(context.Background(), draft())
	require.Error(t, err)
	assert.Len(t, up.keys, 1)
	assert.Equal(t, view.NoticeError, rec.notices[0].Kind)
}

func TestSubmitAfterScopeClosedIsSilent(t *testing.T) {
	rec := &noticeRecorder{}
	scope := view.NewScope()
	s := newTestSubmitter(&fakeUploader{}, &fakeProducts{}, fixedIdentity("id"), rec, scope)
	scope.Close()

	_, err := s.Submit(context.Background(), draft())
	require.NoError(t, err)
	assert.Empty(t, rec.notices)
}
