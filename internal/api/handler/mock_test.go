package handler

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/hszk-dev/emoteclip/internal/domain/model"
	"github.com/hszk-dev/emoteclip/internal/domain/repository"
	"github.com/hszk-dev/emoteclip/internal/source"
	"github.com/hszk-dev/emoteclip/internal/usecase"
)

type mockConversionService struct {
	createFn      func(ctx context.Context, emoteURL string) (*usecase.CreateConversionOutput, error)
	getFn         func(ctx context.Context, id uuid.UUID) (*model.Conversion, error)
	downloadURLFn func(ctx context.Context, conv *model.Conversion) (string, error)
	openClipFn    func(ctx context.Context, conv *model.Conversion) (io.ReadCloser, error)
}

func (m *mockConversionService) Create(ctx context.Context, emoteURL string) (*usecase.CreateConversionOutput, error) {
	if m.createFn != nil {
		return m.createFn(ctx, emoteURL)
	}
	return nil, nil
}

func (m *mockConversionService) Get(ctx context.Context, id uuid.UUID) (*model.Conversion, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, repository.ErrConversionNotFound
}

func (m *mockConversionService) DownloadURL(ctx context.Context, conv *model.Conversion) (string, error) {
	if m.downloadURLFn != nil {
		return m.downloadURLFn(ctx, conv)
	}
	return "", usecase.ErrConversionNotReady
}

func (m *mockConversionService) OpenClip(ctx context.Context, conv *model.Conversion) (io.ReadCloser, error) {
	if m.openClipFn != nil {
		return m.openClipFn(ctx, conv)
	}
	return nil, usecase.ErrConversionNotReady
}

type mockSearchService struct {
	searchFn   func(ctx context.Context, query string, page int) (*model.SearchPage, error)
	trendingFn func(ctx context.Context, sort string) (*model.SearchPage, error)
}

func (m *mockSearchService) Search(ctx context.Context, query string, page int) (*model.SearchPage, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, page)
	}
	return &model.SearchPage{Page: page}, nil
}

func (m *mockSearchService) Trending(ctx context.Context, sort string) (*model.SearchPage, error) {
	if m.trendingFn != nil {
		return m.trendingFn(ctx, sort)
	}
	return &model.SearchPage{Page: 1}, nil
}

type mockImageFetcher struct {
	fetchFn func(ctx context.Context, rawURL string) (*source.Object, error)
}

func (m *mockImageFetcher) Fetch(ctx context.Context, rawURL string) (*source.Object, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, rawURL)
	}
	return &source.Object{}, nil
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
