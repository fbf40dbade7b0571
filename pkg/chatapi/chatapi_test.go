package chatapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haivivi/chatlogo/pkg/artifact"
	"github.com/haivivi/chatlogo/pkg/auth"
	"github.com/haivivi/chatlogo/pkg/chat"
	"github.com/haivivi/chatlogo/pkg/chatapi"
	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/genx"
	"github.com/haivivi/chatlogo/pkg/genx/generators"
	"github.com/haivivi/chatlogo/pkg/kv"
	"github.com/haivivi/chatlogo/pkg/storage"
	"github.com/haivivi/chatlogo/pkg/stream"
)

type fixture struct {
	srv     *httptest.Server
	streams *stream.Registry
	store   *chatstore.Store
	chat    *genx.Fake
	token   string
}

func newFixture(t *testing.T, resumable bool) *fixture {
	t.Helper()
	mem := kv.NewMemory(nil)
	t.Cleanup(func() { mem.Close() })

	var log stream.Log
	if resumable {
		log = &stream.KVLog{Store: mem, TTL: time.Hour}
	}
	f := &fixture{
		streams: stream.NewRegistry(mem, log),
		store:   chatstore.New(mem),
		chat:    &genx.Fake{Turns: [][]*genx.MessageChunk{genx.FakeText("Hi", " there")}},
	}

	mux := generators.NewMux()
	for name, g := range map[string]genx.Generator{
		chat.ModelChat:     f.chat,
		chat.TitleModel:    &genx.Fake{Turns: [][]*genx.MessageChunk{genx.FakeText("Greeting")}},
		chat.ArtifactModel: &genx.Fake{},
	} {
		if err := mux.Handle(name, g); err != nil {
			t.Fatal(err)
		}
	}
	blobs, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := chat.New(chat.Config{}, chat.Deps{
		Store:     f.store,
		Streams:   f.streams,
		Artifacts: artifact.NewRegistry(artifact.Deps{Generator: mux}),
		Generator: mux,
		Blobs:     blobs,
	})

	jwt, err := auth.NewJWT([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	f.token, err = jwt.Issue(auth.User{ID: "alice", Type: auth.UserRegular}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	f.srv = httptest.NewServer(chatapi.New(svc, jwt, nil))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, contentType string, body io.Reader, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postBody(cid, text, model, visibility string) string {
	b, _ := json.Marshal(map[string]any{
		"id": cid,
		"message": map[string]any{
			"id":    uuid.NewString(),
			"role":  "user",
			"parts": []map[string]string{{"type": "text", "text": text}},
		},
		"selectedChatModel":      model,
		"selectedVisibilityType": visibility,
	})
	return string(b)
}

type sseEvent struct {
	id   string
	Type stream.Type     `json:"type"`
	Body json.RawMessage `json:"content"`
}

func readSSE(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		id  string
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			var e sseEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
				t.Fatalf("bad data line %q: %v", line, err)
			}
			e.id = id
			id = ""
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return out
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Message == "" {
		t.Fatalf("error %s has no message", body.Code)
	}
	return body.Code
}

func TestPostChatStreams(t *testing.T) {
	f := newFixture(t, true)
	cid := uuid.NewString()
	resp := f.do(t, http.MethodPost, "/api/chat", "application/json",
		strings.NewReader(postBody(cid, "hello", chat.ModelChat, "private")), true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := readSSE(t, resp.Body)
	if len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	for i, e := range events {
		if e.id != strconv.Itoa(i+1) {
			t.Fatalf("event %d id = %q", i, e.id)
		}
	}
	if events[0].Type != stream.TypeTextDelta || string(events[0].Body) != `"Hi"` {
		t.Fatalf("first = %+v", events[0])
	}
	if events[2].Type != stream.TypeFinish {
		t.Fatalf("last = %+v", events[2])
	}

	c, err := f.store.GetConversation(context.Background(), cid)
	if err != nil || c.Title != "Greeting" {
		t.Fatalf("conversation = %+v, %v", c, err)
	}
}

func TestPostChatRejects(t *testing.T) {
	f := newFixture(t, true)
	cid := uuid.NewString()
	tests := []struct {
		name   string
		body   string
		authed bool
		status int
		code   string
	}{
		{"malformed", `{`, true, 400, "bad_request:api"},
		{"bad id", postBody("nope", "hi", chat.ModelChat, "private"), true, 400, "bad_request:api"},
		{"long text", postBody(cid, strings.Repeat("x", 2001), chat.ModelChat, "private"), true, 400, "bad_request:api"},
		{"unknown model", postBody(cid, "hi", "gpt-9", "private"), true, 400, "bad_request:api"},
		{"unknown visibility", postBody(cid, "hi", chat.ModelChat, "secret"), true, 400, "bad_request:api"},
		{"validation before auth", postBody("nope", "hi", chat.ModelChat, "private"), false, 400, "bad_request:api"},
		{"no token", postBody(cid, "hi", chat.ModelChat, "private"), false, 401, "unauthorized:chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/chat", "application/json", strings.NewReader(tt.body), tt.authed)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if code := errorCode(t, resp); code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestPostChatConversationIDAlias(t *testing.T) {
	f := newFixture(t, true)
	cid := uuid.NewString()
	var body map[string]any
	json.Unmarshal([]byte(postBody("", "hello", chat.ModelChat, "public")), &body)
	delete(body, "id")
	body["conversationId"] = cid
	b, _ := json.Marshal(body)

	resp := f.do(t, http.MethodPost, "/api/chat", "application/json", bytes.NewReader(b), true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	readSSE(t, resp.Body)
	c, err := f.store.GetConversation(context.Background(), cid)
	if err != nil || c.Visibility != chatstore.VisibilityPublic {
		t.Fatalf("conversation = %+v, %v", c, err)
	}
}

func TestResumeWithoutTransport(t *testing.T) {
	f := newFixture(t, false)
	resp := f.do(t, http.MethodGet, "/api/chat?chatId="+uuid.NewString(), "", nil, false)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestResumeAfterFinish(t *testing.T) {
	f := newFixture(t, true)
	cid := uuid.NewString()
	resp := f.do(t, http.MethodPost, "/api/chat", "application/json",
		strings.NewReader(postBody(cid, "hello", chat.ModelChat, "private")), true)
	readSSE(t, resp.Body)

	resp = f.do(t, http.MethodGet, "/api/chat?chatId="+cid, "", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	events := readSSE(t, resp.Body)
	if len(events) != 1 || events[0].Type != stream.TypeAppendMessage || events[0].id != "" {
		t.Fatalf("events = %+v", events)
	}
	var msg chatstore.Message
	if err := json.Unmarshal(events[0].Body, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Role != chatstore.RoleAssistant || msg.Text() != "Hi there" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestResumeErrors(t *testing.T) {
	f := newFixture(t, true)
	tests := []struct {
		name   string
		path   string
		authed bool
		status int
		code   string
	}{
		{"no id", "/api/chat", true, 400, "bad_request:api"},
		{"bad id", "/api/chat?chatId=x", true, 400, "bad_request:api"},
		{"no token", "/api/chat?chatId=" + uuid.NewString(), false, 401, "unauthorized:chat"},
		{"missing", "/api/chat?chatId=" + uuid.NewString(), true, 404, "not_found:chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodGet, tt.path, "", nil, tt.authed)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if code := errorCode(t, resp); code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestResumeLastEventID(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cid := uuid.NewString()
	if err := f.store.SaveConversation(ctx, &chatstore.Conversation{ID: cid, UserID: "alice"}); err != nil {
		t.Fatal(err)
	}
	w, err := f.streams.Begin(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"a", "b", "c"} {
		if err := w.Emit(ctx, stream.TypeTextDelta, s); err != nil {
			t.Fatal(err)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/chat?chatId="+cid, nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	// Headers are flushed only after the reader is attached.
	if err := w.Finish(ctx, "stop"); err != nil {
		t.Fatal(err)
	}
	events := readSSE(t, resp.Body)

	var ids []string
	for _, e := range events {
		ids = append(ids, e.id)
	}
	if strings.Join(ids, ",") != "2,3,4" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestDeleteChat(t *testing.T) {
	f := newFixture(t, true)
	cid := uuid.NewString()
	resp := f.do(t, http.MethodPost, "/api/chat", "application/json",
		strings.NewReader(postBody(cid, "hello", chat.ModelChat, "private")), true)
	readSSE(t, resp.Body)

	if resp := f.do(t, http.MethodDelete, "/api/chat?id="+cid, "", nil, false); resp.StatusCode != 401 {
		t.Fatalf("unauthenticated delete status = %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodDelete, "/api/chat?id="+cid, "", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var c chatstore.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil || c.ID != cid {
		t.Fatalf("deleted = %+v, %v", c, err)
	}
	if resp := f.do(t, http.MethodDelete, "/api/chat?id="+cid, "", nil, true); resp.StatusCode != 404 {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}

func multipartBody(t *testing.T, name, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadAndDocument(t *testing.T) {
	f := newFixture(t, true)

	body, ct := multipartBody(t, "logo.png", "image/png", []byte("\x89PNG fake"))
	resp := f.do(t, http.MethodPost, "/api/files/upload", ct, body, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var up chat.Upload
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(up.Pathname, "attachments/alice/") || !strings.HasSuffix(up.Pathname, "-logo.png") ||
		up.Kind != "image" || up.Title != "Uploaded image: logo.png" {
		t.Fatalf("upload = %+v", up)
	}

	resp = f.do(t, http.MethodGet, "/api/document?id="+up.DocumentID, "", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("document status = %d", resp.StatusCode)
	}
	var docs []chatstore.Document
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Content != storage.Ref(up.Pathname) {
		t.Fatalf("docs = %+v", docs)
	}
}

func TestUploadRejects(t *testing.T) {
	f := newFixture(t, true)
	tests := []struct {
		name   string
		ctype  string
		size   int
		authed bool
		status int
		code   string
	}{
		{"no token", "image/png", 10, false, 401, "unauthorized:upload"},
		{"wrong type", "text/plain", 10, true, 400, "bad_request:upload"},
		{"too large", "image/jpeg", chatapi.MaxUploadBytes + 1, true, 400, "bad_request:upload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, "a.bin", tt.ctype, bytes.Repeat([]byte{1}, tt.size))
			resp := f.do(t, http.MethodPost, "/api/files/upload", ct, body, tt.authed)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if code := errorCode(t, resp); code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestDocumentNotFound(t *testing.T) {
	f := newFixture(t, true)
	resp := f.do(t, http.MethodGet, "/api/document?id=missing", "", nil, true)
	if resp.StatusCode != http.StatusNotFound || errorCode(t, resp) != "not_found:document" {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebSocketTail(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cid := uuid.NewString()
	if err := f.store.SaveConversation(ctx, &chatstore.Conversation{ID: cid, UserID: "alice"}); err != nil {
		t.Fatal(err)
	}
	w, err := f.streams.Begin(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Emit(ctx, stream.TypeTextDelta, "early"); err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/chat/ws?chatId=" + cid + "&from=1"
	hdr := http.Header{"Authorization": {"Bearer " + f.token}}
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	var e stream.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatal(err)
	}
	if e.Seq != 1 || e.Type != stream.TypeTextDelta {
		t.Fatalf("first frame = %+v", e)
	}
	if err := w.Finish(ctx, "stop"); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatal(err)
	}
	if e.Seq != 2 || e.Type != stream.TypeFinish {
		t.Fatalf("second frame = %+v", e)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("after finish: %v, want normal close", err)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false)
	resp := f.do(t, http.MethodGet, "/healthz", "", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
