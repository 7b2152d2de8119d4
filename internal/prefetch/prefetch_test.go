package prefetch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"soundserver/internal/catalog"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Build(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockCatalog) Entries() []catalog.Entry {
	args := m.Called()
	return args.Get(0).([]catalog.Entry)
}

func (m *mockCatalog) Materialize(ctx context.Context, e catalog.Entry) (catalog.Entry, error) {
	args := m.Called(ctx, e)
	return args.Get(0).(catalog.Entry), args.Error(1)
}

var (
	local  = catalog.Entry{ShortName: "foo", FullName: "foo.wav", Origin: catalog.OriginLocal, Filename: "foo.wav"}
	horn   = catalog.Entry{ShortName: "horn", FullName: "horn.mp3", Origin: catalog.OriginRemote, RemoteURL: "https://x.example/horn.mp3"}
	tada   = catalog.Entry{ShortName: "tada", FullName: "tada.wav", Origin: catalog.OriginRemote, RemoteURL: "https://x.example/tada.wav"}
	hornOK = catalog.Entry{ShortName: "horn", FullName: "horn.mp3", Origin: catalog.OriginLocal, Filename: "horn.mp3"}
	tadaOK = catalog.Entry{ShortName: "tada", FullName: "tada.wav", Origin: catalog.OriginLocal, Filename: "tada.wav"}
)

func TestService_Run(t *testing.T) {
	t.Run("fetches only remote entries", func(t *testing.T) {
		m := new(mockCatalog)
		m.On("Build", mock.Anything).Return(nil)
		m.On("Entries").Return([]catalog.Entry{local, horn, tada})
		m.On("Materialize", mock.Anything, horn).Return(hornOK, nil).Once()
		m.On("Materialize", mock.Anything, tada).Return(tadaOK, nil).Once()

		run, err := NewService(m, Config{Workers: 2}).Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, run.Status)
		assert.Equal(t, 2, run.Remote)
		assert.Equal(t, 2, run.Fetched)
		assert.Empty(t, run.Failed)
		assert.False(t, run.FinishedAt.Before(run.StartedAt))
		m.AssertExpectations(t)
	})

	t.Run("nothing to do", func(t *testing.T) {
		m := new(mockCatalog)
		m.On("Build", mock.Anything).Return(nil)
		m.On("Entries").Return([]catalog.Entry{local})

		run, err := NewService(m, Config{}).Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, run.Remote)
		m.AssertNotCalled(t, "Materialize", mock.Anything, mock.Anything)
	})

	t.Run("failures are counted", func(t *testing.T) {
		m := new(mockCatalog)
		m.On("Build", mock.Anything).Return(nil)
		m.On("Entries").Return([]catalog.Entry{horn, tada})
		m.On("Materialize", mock.Anything, horn).Return(catalog.Entry{}, errors.New("boom"))
		m.On("Materialize", mock.Anything, tada).Return(tadaOK, nil)

		run, err := NewService(m, Config{Workers: 1}).Run(context.Background())

		require.Error(t, err)
		assert.Equal(t, StatusFailed, run.Status)
		assert.Equal(t, 1, run.Fetched)
		assert.Equal(t, []string{"horn.mp3"}, run.Failed)
	})

	t.Run("build failure", func(t *testing.T) {
		m := new(mockCatalog)
		m.On("Build", mock.Anything).Return(catalog.ErrBuild)

		run, err := NewService(m, Config{}).Run(context.Background())

		assert.ErrorIs(t, err, catalog.ErrBuild)
		assert.Equal(t, StatusFailed, run.Status)
	})
}
