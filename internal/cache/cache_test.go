package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/socialcards/internal/cards"
)

var sampleBatch = cards.JobBatch{
	{Path: "/b-social-card", Width: 1200, Height: 628},
	{Path: "/a-social-card", Width: 1200, Height: 628},
	{Path: "/a-square", Width: 600, Height: 600},
}

// assertRoundTrip checks the contract shared by every backend.
func assertRoundTrip(t *testing.T, c cards.JobCache) {
	t.Helper()
	ctx := context.Background()

	empty, err := c.Get(ctx, cards.CacheKey)
	require.NoError(t, err)
	require.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, c.Set(ctx, cards.CacheKey, sampleBatch))
	got, err := c.Get(ctx, cards.CacheKey)
	require.NoError(t, err)
	assert.Equal(t, sampleBatch, got)

	require.NoError(t, c.Set(ctx, cards.CacheKey, nil))
	got, err = c.Get(ctx, cards.CacheKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"file ok", Config{Backend: BackendFile, Dir: ".cache"}, false},
		{"file missing dir", Config{Backend: BackendFile}, true},
		{"memory", Config{Backend: BackendMemory}, false},
		{"postgres missing dsn", Config{Backend: BackendPostgres}, true},
		{"postgres bad table", Config{Backend: BackendPostgres, Postgres: PostgresConfig{DSN: "postgres://x", Table: "bad;table"}}, true},
		{"sqlite ok", Config{Backend: BackendSQLite, SQLite: SQLiteConfig{Path: "cards.db"}}, false},
		{"redis missing addr", Config{Backend: BackendRedis}, true},
		{"gcs missing bucket", Config{Backend: BackendGCS}, true},
		{"unknown", Config{Backend: "etcd"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewBuildsFileAndMemory(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Config{Backend: BackendFile, Dir: "/cache"}, afero.NewMemMapFs(), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &File{}, c)

	c, err = New(context.Background(), Config{Backend: BackendMemory}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = New(context.Background(), Config{Backend: "nope"}, nil, nil)
	assert.Error(t, err)
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewFile(afero.NewMemMapFs(), "/cache", "")
	require.NoError(t, err)
	assertRoundTrip(t, c)
}

func TestFileSurvivesNewInstance(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	writer, err := NewFile(afero.NewOsFs(), dir, "site")
	require.NoError(t, err)
	require.NoError(t, writer.Set(ctx, cards.CacheKey, sampleBatch))

	reader, err := NewFile(afero.NewOsFs(), dir, "site")
	require.NoError(t, err)
	got, err := reader.Get(ctx, cards.CacheKey)
	require.NoError(t, err)
	assert.Equal(t, sampleBatch, got)
	assert.Equal(t, filepath.Join(dir, "site_socialCardPages.json"), reader.PathFor(cards.CacheKey))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileCorruptDocument(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	c, err := NewFile(fs, "/cache", "")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, c.PathFor(cards.CacheKey), []byte("{nope"), 0o600))

	_, err = c.Get(context.Background(), cards.CacheKey)
	assert.Error(t, err)
}

func TestMemoryRoundTripIsolation(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	assertRoundTrip(t, c)

	batch := sampleBatch.Clone()
	require.NoError(t, c.Set(context.Background(), "k", batch))
	batch[0].Path = "/mutated"
	got, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "/b-social-card", got[0].Path)
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cards.db")
	c, err := NewSQLite(context.Background(), SQLiteConfig{Path: path}, "")
	require.NoError(t, err)
	assertRoundTrip(t, c)
	require.NoError(t, c.Set(context.Background(), cards.CacheKey, sampleBatch))
	require.NoError(t, c.Close())

	reopened, err := NewSQLite(context.Background(), SQLiteConfig{Path: path}, "")
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck // test cleanup
	got, err := reopened.Get(context.Background(), cards.CacheKey)
	require.NoError(t, err)
	assert.Equal(t, sampleBatch, got)
}

func TestPostgresSetUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c, err := NewPostgresWithPool(mock, "", "blog")
	require.NoError(t, err)

	data, err := encode(sampleBatch)
	require.NoError(t, err)
	mock.ExpectExec("INSERT INTO card_batches").
		WithArgs("blog:"+cards.CacheKey, data).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, c.Set(context.Background(), cards.CacheKey, sampleBatch))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c, err := NewPostgresWithPool(mock, "cards", "")
	require.NoError(t, err)

	data, err := encode(sampleBatch)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT batch FROM cards").
		WithArgs(cards.CacheKey).
		WillReturnRows(pgxmock.NewRows([]string{"batch"}).AddRow(data))
	mock.ExpectQuery("SELECT batch FROM cards").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT batch FROM cards").
		WithArgs("broken").
		WillReturnError(errors.New("connection reset"))

	got, err := c.Get(context.Background(), cards.CacheKey)
	require.NoError(t, err)
	assert.Equal(t, sampleBatch, got)

	got, err = c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)

	_, err = c.Get(context.Background(), "broken")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnsureSchemaAndValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresWithPool(nil, "", "")
	assert.Error(t, err)
	_, err = NewPostgresWithPool(mock, "drop table;", "")
	assert.Error(t, err)

	c, err := NewPostgresWithPool(mock, "", "")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS card_batches").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, c.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeRedis struct {
	data   map[string]string
	getErr error
	closed bool
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprintf("%s", value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisRoundTrip(t *testing.T) {
	t.Parallel()

	client := &fakeRedis{data: map[string]string{}}
	c := NewRedisWithClient(client, "site")
	assertRoundTrip(t, c)
	_, ok := client.data["site:"+cards.CacheKey]
	assert.True(t, ok)

	client.getErr = errors.New("timeout")
	_, err := c.Get(context.Background(), cards.CacheKey)
	assert.Error(t, err)

	require.NoError(t, c.Close())
	assert.True(t, client.closed)
}

func TestGCSSetUploadsObject(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "cards/blog/socialCardPages.json", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `"path":"/b-social-card"`)
		fmt.Fprintln(w, `{"name": "cards/blog/socialCardPages.json"}`)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	c, err := NewGCSWithClient(client, GCSConfig{Bucket: "test-bucket", Prefix: "/cards/"}, "blog")
	require.NoError(t, err)
	assert.Equal(t, "cards/blog/socialCardPages.json", c.ObjectName(cards.CacheKey))

	require.NoError(t, c.Set(context.Background(), cards.CacheKey, sampleBatch))
	require.NoError(t, c.Close())
}

func TestGCSSetServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	c, err := NewGCSWithClient(client, GCSConfig{Bucket: "test-bucket"}, "")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, c.Set(ctx, cards.CacheKey, sampleBatch))

	_, err = NewGCSWithClient(nil, GCSConfig{Bucket: "b"}, "")
	assert.Error(t, err)
	_, err = NewGCSWithClient(client, GCSConfig{}, "")
	assert.Error(t, err)
}
