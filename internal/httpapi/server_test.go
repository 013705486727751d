package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/swiftlybot/yomiage/internal/dictionary"
	"github.com/swiftlybot/yomiage/internal/store"
	"github.com/swiftlybot/yomiage/internal/tts"
)

type fakeDictionary struct {
	entries map[string][]store.Entry
	err     error
}

func (f *fakeDictionary) UserDictionary(_ context.Context, userID string) ([]store.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[userID], nil
}

type fakeInvalidator struct {
	scopes []dictionary.Scope
	keys   []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, scope dictionary.Scope, key string) {
	f.scopes = append(f.scopes, scope)
	f.keys = append(f.keys, key)
}

type fakeSampler struct {
	calls int
	texts []string
}

func (f *fakeSampler) Synthesize(_ context.Context, text string, _ int, _ float64) (*tts.Result, error) {
	f.calls++
	f.texts = append(f.texts, text)
	return &tts.Result{WAV: []byte("RIFFdata")}, nil
}

type fakeVoices struct {
	invalidated []string
}

func (f *fakeVoices) InvalidateUserVoice(userID string) {
	f.invalidated = append(f.invalidated, userID)
}

type serverFixture struct {
	srv   *Server
	dict  *fakeDictionary
	cache *fakeInvalidator
	synth *fakeSampler
	prefs *fakeVoices
	ready bool
}

func newFixture() *serverFixture {
	f := &serverFixture{
		dict:  &fakeDictionary{entries: map[string][]store.Entry{}},
		cache: &fakeInvalidator{},
		synth: &fakeSampler{},
		prefs: &fakeVoices{},
		ready: true,
	}
	f.srv = New(Config{
		Dictionary: f.dict,
		Cache:      f.cache,
		Synth:      f.synth,
		Voices:     f.prefs,
		Guilds:     func() int { return 12 },
		Ready:      func() bool { return f.ready },
		PingDB:     func(context.Context) error { return nil },
	})
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := newFixture().do(t, "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzReflectsGatewayAndDatabase(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if rec := f.do(t, "GET", "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}

	f.ready = false
	if rec := f.do(t, "GET", "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-ready status = %d, want 503", rec.Code)
	}
}

func TestReadyzFailsOnDatabaseError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.srv.cfg.PingDB = func(context.Context) error { return fmt.Errorf("connection refused") }
	rec := f.do(t, "GET", "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServers(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec := f.do(t, "GET", "/servers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["count"] != 12 {
		t.Errorf("count = %d, want 12", body["count"])
	}

	f.ready = false
	if rec := f.do(t, "GET", "/servers", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-ready status = %d, want 503", rec.Code)
	}
}

func TestUserDictionary(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dict.entries["u1"] = []store.Entry{{Key: "www", Value: "わらわら"}}

	rec := f.do(t, "GET", "/user-dictionary/u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Dictionary []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"dictionary"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Dictionary) != 1 || body.Dictionary[0].Key != "www" || body.Dictionary[0].Value != "わらわら" {
		t.Errorf("dictionary = %+v", body.Dictionary)
	}
}

func TestUserDictionaryEmptyIsArray(t *testing.T) {
	t.Parallel()

	rec := newFixture().do(t, "GET", "/user-dictionary/nobody", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"dictionary":[]`) {
		t.Errorf("body = %s, want empty array not null", rec.Body.String())
	}
}

func TestNotifyEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture()

	if rec := f.do(t, "POST", "/user-dictionary/notify", `{"user_id":"u1"}`); rec.Code != http.StatusOK {
		t.Errorf("user notify status = %d, want 200", rec.Code)
	}
	if rec := f.do(t, "POST", "/guild-dictionary/notify", `{"guild_id":"g1"}`); rec.Code != http.StatusOK {
		t.Errorf("guild notify status = %d, want 200", rec.Code)
	}
	if len(f.cache.scopes) != 2 || f.cache.scopes[0] != dictionary.ScopeUser || f.cache.scopes[1] != dictionary.ScopeGuild {
		t.Errorf("invalidated scopes = %v", f.cache.scopes)
	}
	if f.cache.keys[0] != "u1" || f.cache.keys[1] != "g1" {
		t.Errorf("invalidated keys = %v", f.cache.keys)
	}

	if rec := f.do(t, "POST", "/user-voice/notify", `{"user_id":"u2"}`); rec.Code != http.StatusOK {
		t.Errorf("voice notify status = %d, want 200", rec.Code)
	}
	if len(f.prefs.invalidated) != 1 || f.prefs.invalidated[0] != "u2" {
		t.Errorf("voice invalidations = %v", f.prefs.invalidated)
	}
}

func TestNotifyRejectsBadBodies(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if rec := f.do(t, "POST", "/user-dictionary/notify", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", rec.Code)
	}
	if rec := f.do(t, "POST", "/user-dictionary/notify", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", rec.Code)
	}
	if rec := f.do(t, "POST", "/guild-dictionary/notify", `{"user_id":"u1"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing guild_id status = %d, want 400", rec.Code)
	}
	if len(f.cache.scopes) != 0 {
		t.Errorf("invalidations on rejected bodies = %v", f.cache.scopes)
	}
}

func TestVoiceSampleCachesPerSpeaker(t *testing.T) {
	t.Parallel()

	f := newFixture()

	rec := f.do(t, "GET", "/voice-sample/3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q, want audio/wav", ct)
	}
	if !strings.Contains(f.synth.texts[0], "ずんだもん") {
		t.Errorf("sample text = %q, want speaker name inside", f.synth.texts[0])
	}

	f.do(t, "GET", "/voice-sample/3", "")
	if f.synth.calls != 1 {
		t.Errorf("synthesis calls = %d, want 1 (cached)", f.synth.calls)
	}

	if rec := f.do(t, "GET", "/voice-sample/9999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown speaker status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, "GET", "/voice-sample/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric speaker status = %d, want 400", rec.Code)
	}
}
