package chat_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/haivivi/chatlogo/pkg/auth"
	"github.com/haivivi/chatlogo/pkg/chat"
	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/genx"
	"github.com/haivivi/chatlogo/pkg/storage"
)

var bob = &auth.User{ID: "bob", Type: auth.UserRegular}

func (e *env) upload(t *testing.T, u *auth.User, name, data string) *chat.Upload {
	t.Helper()
	up, err := e.svc.UploadImage(context.Background(), u, name, "image/png", strings.NewReader(data))
	if err != nil {
		t.Fatalf("UploadImage(%s): %v", u.ID, err)
	}
	return up
}

func (e *env) blobContent(t *testing.T, docID string) string {
	t.Helper()
	doc, err := e.store.GetDocument(context.Background(), docID)
	if err != nil {
		t.Fatalf("GetDocument(%s): %v", docID, err)
	}
	p, ok := storage.ParseRef(doc.Content)
	if !ok {
		t.Fatalf("content %q is not a blob ref", doc.Content)
	}
	rc, err := e.blobs.Open(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestUploadSameFilename(t *testing.T) {
	e := newEnv(t)
	a := e.upload(t, alice, "logo.png", "ALICE")
	b := e.upload(t, bob, "logo.png", "BOB")
	again := e.upload(t, alice, "logo.png", "ALICE-2")

	if a.Pathname == b.Pathname || a.Pathname == again.Pathname {
		t.Fatalf("paths collide: %s %s %s", a.Pathname, b.Pathname, again.Pathname)
	}
	if !strings.HasPrefix(a.Pathname, "attachments/alice/") || !strings.HasPrefix(b.Pathname, "attachments/bob/") {
		t.Fatalf("paths not scoped by user: %s %s", a.Pathname, b.Pathname)
	}
	for _, tt := range []struct {
		up   *chat.Upload
		want string
	}{
		{a, "ALICE"},
		{b, "BOB"},
		{again, "ALICE-2"},
	} {
		if got := e.blobContent(t, tt.up.DocumentID); got != tt.want {
			t.Fatalf("document %s blob = %q, want %q", tt.up.DocumentID, got, tt.want)
		}
		if tt.up.Title != "Uploaded image: logo.png" {
			t.Fatalf("title = %q", tt.up.Title)
		}
	}
}

func contextBlobs(mctx genx.ModelContext) []string {
	var out []string
	for m := range mctx.Messages() {
		cs, ok := m.Payload.(genx.Contents)
		if !ok {
			continue
		}
		for _, p := range cs {
			if b, ok := p.(*genx.Blob); ok {
				out = append(out, string(b.Data))
			}
		}
	}
	return out
}

func TestAttachmentsLimitedToOwnUploads(t *testing.T) {
	e := newEnv(t)
	e.chat.Turns = [][]*genx.MessageChunk{genx.FakeText("nice logo")}
	mine := e.upload(t, alice, "mine.png", "ALICE")
	theirs := e.upload(t, bob, "theirs.png", "BOB")

	msg := userMessage("what do you think?")
	msg.Attachments = []chatstore.Attachment{
		{URL: storage.Ref(mine.Pathname), ContentType: "image/png"},
		{URL: storage.Ref(theirs.Pathname), ContentType: "image/png"},
		{URL: theirs.Pathname, ContentType: "image/png"},
		{URL: "attachments/alice/../bob/" + strings.TrimPrefix(theirs.Pathname, "attachments/bob/"), ContentType: "image/png"},
	}
	r, err := e.svc.Send(context.Background(), chat.Request{
		ConversationID: "c-attach",
		Message:        msg,
		Model:          chat.ModelChat,
		Visibility:     chatstore.VisibilityPrivate,
		User:           alice,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	drain(t, r)

	ctxs := e.chat.Contexts()
	if len(ctxs) == 0 {
		t.Fatal("chat model not called")
	}
	got := contextBlobs(ctxs[0])
	if len(got) != 1 || got[0] != "ALICE" {
		t.Fatalf("blobs in model context = %q, want only [ALICE]", got)
	}
}
