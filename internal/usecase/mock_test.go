package usecase

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/domain/repository"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/seventv"
	"github.com/hszk-dev/emoteclip/internal/transcoder"
)

// mockConversionRepository provides a configurable mock for ConversionRepository.
type mockConversionRepository struct {
	createFn        func(ctx context.Context, conv *model.Conversion) error
	getByIDFn       func(ctx context.Context, id uuid.UUID) (*model.Conversion, error)
	listByEmoteIDFn func(ctx context.Context, emoteID string) ([]*model.Conversion, error)
	updateFn        func(ctx context.Context, conv *model.Conversion) error
}

func (m *mockConversionRepository) Create(ctx context.Context, conv *model.Conversion) error {
	if m.createFn != nil {
		return m.createFn(ctx, conv)
	}
	return nil
}

func (m *mockConversionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Conversion, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrConversionNotFound
}

func (m *mockConversionRepository) ListByEmoteID(ctx context.Context, emoteID string) ([]*model.Conversion, error) {
	if m.listByEmoteIDFn != nil {
		return m.listByEmoteIDFn(ctx, emoteID)
	}
	return nil, nil
}

func (m *mockConversionRepository) Update(ctx context.Context, conv *model.Conversion) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, conv)
	}
	return nil
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
type mockObjectStorage struct {
	generatePresignedDownloadURLFn func(ctx context.Context, key string, expiry time.Duration) (string, error)
	uploadFn                       func(ctx context.Context, key string, reader io.Reader, contentType string) error
	downloadFn                     func(ctx context.Context, key string) (io.ReadCloser, error)
	existsFn                       func(ctx context.Context, key string) (bool, error)
}

func (m *mockObjectStorage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.generatePresignedDownloadURLFn != nil {
		return m.generatePresignedDownloadURLFn(ctx, key, expiry)
	}
	return "http://example.com/download", nil
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, reader, contentType)
	}
	return nil
}

func (m *mockObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, key)
	}
	return nil, repository.ErrObjectNotFound
}

func (m *mockObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishConversionTaskFn func(ctx context.Context, task repository.ConversionTask) error
}

func (m *mockMessageQueue) PublishConversionTask(ctx context.Context, task repository.ConversionTask) error {
	if m.publishConversionTaskFn != nil {
		return m.publishConversionTaskFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumeConversionTasks(ctx context.Context, handler func(ctx context.Context, task repository.ConversionTask) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockMessageQueue) Close() error {
	return nil
}

// mockTranscoder provides a configurable mock for Transcoder.
type mockTranscoder struct {
	convertFn func(ctx context.Context, inputPath, outputPath string) (*transcoder.ConvertResult, error)
}

func (m *mockTranscoder) Convert(ctx context.Context, inputPath, outputPath string) (*transcoder.ConvertResult, error) {
	if m.convertFn != nil {
		return m.convertFn(ctx, inputPath, outputPath)
	}
	return &transcoder.ConvertResult{OutputPath: outputPath}, nil
}

func (m *mockTranscoder) Stream(ctx context.Context, source string) (*transcoder.Stream, error) {
	return nil, transcoder.ErrStreamSetup
}

// mockDownloader provides a configurable mock for SourceDownloader.
type mockDownloader struct {
	downloadFn func(ctx context.Context, rawURL, dest string) (int64, error)
}

func (m *mockDownloader) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, rawURL, dest)
	}
	return 0, nil
}

// mockSearcher provides a configurable mock for EmoteSearcher.
type mockSearcher struct {
	searchFn func(ctx context.Context, p seventv.SearchParams) (*model.SearchPage, error)
	calls    atomic.Int32
}

func (m *mockSearcher) Search(ctx context.Context, p seventv.SearchParams) (*model.SearchPage, error) {
	m.calls.Add(1)
	if m.searchFn != nil {
		return m.searchFn(ctx, p)
	}
	return &model.SearchPage{Page: p.Page}, nil
}

// mockSearchCache is an in-memory SearchCache.
type mockSearchCache struct {
	mu     sync.Mutex
	data   map[string]*model.SearchPage
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMockSearchCache() *mockSearchCache {
	return &mockSearchCache{
		data: make(map[string]*model.SearchPage),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockSearchCache) Get(ctx context.Context, key string) (*model.SearchPage, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *mockSearchCache) Set(ctx context.Context, key string, page *model.SearchPage, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = page
	m.ttls[key] = ttl
	return nil
}

// mockConversionCache is an in-memory ConversionCache.
type mockConversionCache struct {
	mu       sync.RWMutex
	data     map[uuid.UUID]*model.Conversion
	getFn    func(ctx context.Context, id uuid.UUID) (*model.Conversion, error)
	setFn    func(ctx context.Context, conv *model.Conversion, ttl time.Duration) error
	deleteFn func(ctx context.Context, id uuid.UUID) error
	deleted  []uuid.UUID
}

func newMockConversionCache() *mockConversionCache {
	return &mockConversionCache{
		data: make(map[uuid.UUID]*model.Conversion),
	}
}

func (m *mockConversionCache) Get(ctx context.Context, id uuid.UUID) (*model.Conversion, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[id], nil
}

func (m *mockConversionCache) Set(ctx context.Context, conv *model.Conversion, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, conv, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[conv.ID] = conv
	return nil
}

func (m *mockConversionCache) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, id)
	delete(m.data, id)
	m.mu.Unlock()
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// fakeChunkStream yields chunks then a terminal error.
type fakeChunkStream struct {
	chunks [][]byte
	end    error
	closed int
}

func (f *fakeChunkStream) Next() ([]byte, error) {
	if len(f.chunks) == 0 {
		return nil, f.end
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c, nil
}

func (f *fakeChunkStream) Close() error {
	f.closed++
	return nil
}
