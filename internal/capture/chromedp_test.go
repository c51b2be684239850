package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/socialcards/internal/cards"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{NavigationTimeout: -time.Second}, nil); err == nil {
		t.Fatal("expected error for negative navigation timeout")
	}
	capturer, err := NewChromedp(Config{ExecPath: "/opt/chrome/chrome"}, zap.NewNop())
	require.NoError(t, err)
	assert.NotEmpty(t, capturer.allocOpts)
}

func TestNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	capturer := &Chromedp{}
	if got := capturer.navTimeout(); got != defaultNavigationTimeout {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	capturer.cfg.NavigationTimeout = time.Second
	if got := capturer.navTimeout(); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestDocumentStatusKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	status := newDocumentStatus()
	status.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500},
	})
	assert.Equal(t, 0, status.code())

	status.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404},
	})
	status.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	assert.Equal(t, 404, status.code())
	status.captureEvent("not an event")
}

func TestCaptureRejectsBadRequest(t *testing.T) {
	t.Parallel()

	capturer, err := NewChromedp(Config{Fs: afero.NewMemMapFs()}, zap.NewNop())
	require.NoError(t, err)

	err = capturer.Capture(context.Background(), cards.CaptureRequest{URL: "http://x", Width: 0, Height: 10, Destination: "/a.png"})
	var captureErr *cards.CaptureError
	require.ErrorAs(t, err, &captureErr)
	assert.Equal(t, cards.StageLaunch, captureErr.Stage)

	err = capturer.Capture(context.Background(), cards.CaptureRequest{URL: "http://x", Width: 10, Height: 10})
	require.ErrorAs(t, err, &captureErr)
	assert.Equal(t, cards.StageWrite, captureErr.Stage)
}

func TestNoopCapturerError(t *testing.T) {
	t.Parallel()

	err := NewNoop().Capture(context.Background(), cards.CaptureRequest{URL: "http://x/a"})
	assert.ErrorIs(t, err, ErrBrowserDisabled)
	var captureErr *cards.CaptureError
	require.ErrorAs(t, err, &captureErr)
	assert.Equal(t, "http://x/a", captureErr.URL)
}

func TestWriteAtomic(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	dest := "/static/blog/a-social-card.png"
	require.NoError(t, afero.WriteFile(fs, "/static/keep.txt", []byte("x"), 0o600))
	require.NoError(t, writeAtomic(fs, dest, []byte("first")))
	require.NoError(t, writeAtomic(fs, dest, []byte("second")))

	data, err := afero.ReadFile(fs, dest)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := afero.ReadDir(fs, "/static/blog")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCaptureUnreachableLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/a-social-card"
	srv.Close()

	dest := filepath.Join(t.TempDir(), "a-social-card.png")
	capturer, err := NewChromedp(Config{NavigationTimeout: 10 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	err = capturer.Capture(context.Background(), cards.CaptureRequest{
		URL: url, Width: 320, Height: 200, Destination: dest,
	})
	var captureErr *cards.CaptureError
	require.ErrorAs(t, err, &captureErr)
	if captureErr.Stage == cards.StageLaunch {
		t.Skipf("chrome unavailable: %v", err)
	}
	assert.Equal(t, cards.StageNavigate, captureErr.Stage)
	_, statErr := os.Stat(dest)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestCaptureWritesExactSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body style="margin:0;background:#123456"><h1 id="card">Card</h1></body></html>`)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "nested", "a-social-card.png")
	capturer, err := NewChromedp(Config{NavigationTimeout: 15 * time.Second, ReadySelector: "#card"}, zap.NewNop())
	require.NoError(t, err)

	err = capturer.Capture(context.Background(), cards.CaptureRequest{
		URL: srv.URL + "/a-social-card", Width: 320, Height: 200, Destination: dest, Quiescence: 50 * time.Millisecond,
	})
	if err != nil {
		t.Skipf("capture unavailable: %v", err)
	}

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	img, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Width)
	assert.Equal(t, 200, img.Height)
}
