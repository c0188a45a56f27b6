package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raine/listing-studio/internal/clipboard"
	"github.com/raine/listing-studio/internal/listing"
	"github.com/raine/listing-studio/internal/listing/listingtest"
	"github.com/raine/listing-studio/internal/llm"
	"github.com/raine/listing-studio/internal/media"
	"github.com/raine/listing-studio/internal/session"
	"github.com/raine/listing-studio/internal/storage"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Model() string { return llm.ModelPro3 }

func (g *stubGenerator) Generate(ctx context.Context, image media.EncodedImage) (*llm.Generation, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Generation{Result: listingtest.Result("")}, nil
}

type stubHistory struct {
	entries []storage.GenerationLogEntry
}

func (h *stubHistory) RecentGenerations(limit int) ([]storage.GenerationLogEntry, error) {
	if limit < len(h.entries) {
		return h.entries[:limit], nil
	}
	return h.entries, nil
}

type commandResponse struct {
	View          platformView `json:"view"`
	Accepted      bool         `json:"accepted"`
	ClearURLInput bool         `json:"clearUrlInput"`
	Text          string       `json:"text"`
	Toast         string       `json:"toast"`
	Error         string       `json:"error"`
}

type testEnv struct {
	srv  *httptest.Server
	gen  *stubGenerator
	clip *clipboard.Memory
	ws   *session.Workspace
}

func newTestEnv(t *testing.T, history HistoryLister) *testEnv {
	t.Helper()
	gen := &stubGenerator{}
	clip := &clipboard.Memory{}
	ws := session.NewWorkspace(gen, media.NewDownloader())
	copier := clipboard.NewCopier(clip, time.Minute)
	t.Cleanup(copier.Stop)

	s, err := NewServer(Options{Workspace: ws, Copier: copier, History: history, MaxUploadBytes: 1024})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Wait()
	})
	return &testEnv{srv: srv, gen: gen, clip: clip, ws: ws}
}

// noRedirect returns 3xx responses to the caller instead of following them.
func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func uploadBody(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="photo"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, p listing.Platform, contentType string, data []byte) commandResponse {
	t.Helper()
	body, ct := uploadBody(t, contentType, data)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/platforms/"+string(p)+"/image", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out commandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) postJSON(t *testing.T, path string, form url.Values) (int, commandResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out commandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestIndex_RendersActiveTab(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/?platform=trendyol")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	html := buf.String()

	assert.Contains(t, html, `data-platform="trendyol"`)
	assert.Contains(t, html, `class="active">Trendyol</a>`)
	assert.Contains(t, html, "disabled>Generate Trendyol listing")
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestIndex_UnknownPlatform(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/?platform=etsy")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload_StoresImageForOnePlatform(t *testing.T) {
	env := newTestEnv(t, nil)

	out := env.upload(t, listing.Amazon, "image/png", pngBytes)

	assert.True(t, out.Accepted)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", out.View.State.Image)
	assert.True(t, out.View.CanGenerate)

	other, err := env.ws.Snapshot(listing.Trendyol)
	require.NoError(t, err)
	assert.False(t, other.HasImage())
}

func TestUpload_NonImageIgnored(t *testing.T) {
	env := newTestEnv(t, nil)

	out := env.upload(t, listing.Amazon, "application/pdf", []byte("%PDF-1.4"))

	assert.False(t, out.Accepted)
	assert.False(t, out.View.State.HasImage())
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := uploadBody(t, "image/png", bytes.Repeat([]byte{1}, 2048))
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/platforms/amazon/image", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUpload_BrowserFormRedirects(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := uploadBody(t, "image/png", pngBytes)
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/platforms/trendyol/image", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	resp, err := noRedirect().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/?platform=trendyol", resp.Header.Get("Location"))
}

func TestGenerate_WithoutImage(t *testing.T) {
	env := newTestEnv(t, nil)

	status, out := env.postJSON(t, "/platforms/amazon/generate", nil)

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, session.ErrNoImage.Error(), out.Error)
}

func TestGenerate_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	env.upload(t, listing.Amazon, "image/png", pngBytes)

	status, out := env.postJSON(t, "/platforms/amazon/generate", nil)
	require.Equal(t, http.StatusOK, status)

	st := out.View.State
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	require.NotNil(t, st.Result)
	assert.Equal(t, llm.ModelPro3, st.Result.ModelName)

	require.Len(t, out.View.SEO, 6)
	assert.Equal(t, "amazon/seo.title", out.View.SEO[0].ID)
	require.Len(t, out.View.Prompts, 5)
	assert.Equal(t, "Main: White Background", out.View.Prompts[0].Label)
	assert.Equal(t, "1:1 Photo Prompts (English)", out.View.PromptHeading)
}

func TestGenerate_FailureMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gen.err = errors.New("model unavailable")
	env.upload(t, listing.Trendyol, "image/png", pngBytes)

	status, out := env.postJSON(t, "/platforms/trendyol/generate", nil)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, session.MsgGenerationFailed, out.View.State.Error)
	assert.Nil(t, out.View.State.Result)
}

func TestGenerate_BrowserRedirectsAndFinishes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.upload(t, listing.Amazon, "image/png", pngBytes)

	resp, err := noRedirect().PostForm(env.srv.URL+"/platforms/amazon/generate", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	assert.Eventually(t, func() bool {
		st, err := env.ws.Snapshot(listing.Amazon)
		return err == nil && st.Result != nil && !st.Loading
	}, time.Second, 10*time.Millisecond)
}

func TestCopy(t *testing.T) {
	env := newTestEnv(t, nil)
	env.upload(t, listing.Amazon, "image/png", pngBytes)
	_, _ = env.postJSON(t, "/platforms/amazon/generate", nil)

	status, out := env.postJSON(t, "/platforms/amazon/copy", url.Values{"field": {"prompts.sizing"}})
	require.Equal(t, http.StatusOK, status)

	want := listingtest.Result("").Amazon.Prompts.Sizing
	assert.Equal(t, want, out.Text)
	assert.Equal(t, want, env.clip.Last())
	assert.Equal(t, "Sizing copied!", out.Toast)

	var copied []string
	for _, f := range out.View.Prompts {
		if f.Copied {
			copied = append(copied, f.ID)
		}
	}
	assert.Equal(t, []string{"amazon/prompts.sizing"}, copied)
}

func TestCopy_UnknownField(t *testing.T) {
	env := newTestEnv(t, nil)
	env.upload(t, listing.Amazon, "image/png", pngBytes)
	_, _ = env.postJSON(t, "/platforms/amazon/generate", nil)

	status, _ := env.postJSON(t, "/platforms/amazon/copy", url.Values{"field": {"seo.averageSize.nope"}})
	assert.Equal(t, http.StatusNotFound, status)

	// Trendyol has no average size field
	status, _ = env.postJSON(t, "/platforms/trendyol/copy", url.Values{"field": {"seo.averageSize"}})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Empty(t, env.clip.Writes())
}

func TestImageURL(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer images.Close()
	env := newTestEnv(t, nil)

	t.Run("failure keeps the url", func(t *testing.T) {
		bad := images.URL + "/missing.png"
		resp, err := noRedirect().PostForm(env.srv.URL+"/platforms/amazon/image-url", url.Values{"url": {bad}})
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, bad, loc.Query().Get("url"))

		st, err := env.ws.Snapshot(listing.Amazon)
		require.NoError(t, err)
		assert.Equal(t, session.MsgURLLoadFailed, st.Error)
		assert.False(t, st.Loading)
	})

	t.Run("success clears input and error", func(t *testing.T) {
		status, out := env.postJSON(t, "/platforms/amazon/image-url", url.Values{"url": {images.URL + "/ok.png"}})
		require.Equal(t, http.StatusOK, status)

		assert.True(t, out.ClearURLInput)
		assert.Empty(t, out.View.State.Error)
		assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", out.View.State.Image)
	})
}

func TestSnapshotAPI(t *testing.T) {
	env := newTestEnv(t, nil)
	env.upload(t, listing.Trendyol, "image/png", pngBytes)

	resp, err := http.Get(env.srv.URL + "/api/platforms/trendyol")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view platformView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, listing.Trendyol, view.Platform)
	assert.True(t, view.State.HasImage())
	assert.Equal(t, "2:3 Photo Prompts (English)", view.PromptHeading)

	resp2, err := http.Get(env.srv.URL + "/api/platforms/etsy")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, nil)
		resp, err := http.Get(env.srv.URL + "/api/generations")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("lists entries", func(t *testing.T) {
		env := newTestEnv(t, &stubHistory{entries: []storage.GenerationLogEntry{
			{ID: 2, Platform: listing.Trendyol, Model: llm.ModelPro3},
			{ID: 1, Platform: listing.Amazon, Model: llm.ModelPro3, Failed: true},
		}})

		resp, err := http.Get(env.srv.URL + "/api/generations?limit=1")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var entries []storage.GenerationLogEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
		require.Len(t, entries, 1)
		assert.Equal(t, int64(2), entries[0].ID)
	})

	t.Run("bad limit", func(t *testing.T) {
		env := newTestEnv(t, &stubHistory{})
		resp, err := http.Get(env.srv.URL + "/api/generations?limit=abc")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, llm.ModelPro3, body["model"])
}

func (e *testEnv) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_SendsCurrentStateOnConnect(t *testing.T) {
	env := newTestEnv(t, nil)
	env.upload(t, listing.Amazon, "image/png", pngBytes)
	_, _ = env.postJSON(t, "/platforms/amazon/generate", nil)
	want, err := env.ws.Snapshot(listing.Amazon)
	require.NoError(t, err)
	require.NotNil(t, want.Result)

	conn := env.dialWS(t)

	amazon := readWS(t, conn)
	assert.Equal(t, "state", amazon.Type)
	assert.Equal(t, listing.Amazon, amazon.Platform)
	require.NotNil(t, amazon.View)
	assert.Equal(t, want.Version, amazon.View.State.Version)
	assert.False(t, amazon.View.State.Loading)
	assert.NotNil(t, amazon.View.State.Result)

	trendyol := readWS(t, conn)
	assert.Equal(t, listing.Trendyol, trendyol.Platform)
	require.NotNil(t, trendyol.View)
	assert.Equal(t, uint64(0), trendyol.View.State.Version)
}

func TestWebSocket_PushesStateAndCopy(t *testing.T) {
	env := newTestEnv(t, nil)

	conn := env.dialWS(t)

	// The initial snapshot arrives once the handler has subscribed
	for _, p := range listing.Platforms() {
		msg := readWS(t, conn)
		assert.Equal(t, p, msg.Platform)
	}
	env.upload(t, listing.Trendyol, "image/png", pngBytes)

	msg := readWS(t, conn)
	assert.Equal(t, "state", msg.Type)
	assert.Equal(t, listing.Trendyol, msg.Platform)
	require.NotNil(t, msg.View)
	assert.True(t, msg.View.State.HasImage())

	_, _ = env.postJSON(t, "/platforms/trendyol/generate", nil)
	_, _ = env.postJSON(t, "/platforms/trendyol/copy", url.Values{"field": {"seo.title"}})

	for {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "copy" {
			break
		}
	}
	assert.Equal(t, []string{"trendyol/seo.title"}, msg.Copied)
	assert.Equal(t, "Title copied!", msg.Toast)
}
