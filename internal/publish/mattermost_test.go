package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"go.uber.org/zap/zaptest"

	"github.com/rubiojr/lunarvox/internal/chat"
)

type fakeAPI struct {
	uploadErr error
	uploaded  []string
	posts     []*model.Post
}

func (f *fakeAPI) UploadFile(_ context.Context, data []byte, channelID, filename string) (*model.FileUploadResponse, *model.Response, error) {
	if f.uploadErr != nil {
		return nil, nil, f.uploadErr
	}
	f.uploaded = append(f.uploaded, channelID+"/"+filename)
	return &model.FileUploadResponse{FileInfos: []*model.FileInfo{{Id: "file1", Size: int64(len(data))}}}, nil, nil
}

func (f *fakeAPI) CreatePost(_ context.Context, post *model.Post) (*model.Post, *model.Response, error) {
	f.posts = append(f.posts, post)
	created := post.Clone()
	created.Id = "post1"
	return created, nil, nil
}

func TestPublishCreatesVoicePost(t *testing.T) {
	api := &fakeAPI{}
	mm := newMattermost(api, "chan1", WithRootID("root1"), WithLogger(zaptest.NewLogger(t)))

	msg := &chat.Message{
		ID:              "m1",
		DurationSeconds: 4,
		MIMEType:        "audio/ogg; codecs=opus",
		Audio:           []byte("OggS"),
		Transcript:      "hello there",
		SentAt:          time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}
	postID, err := mm.Publish(context.Background(), msg)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if postID != "post1" {
		t.Errorf("Expected post1, got %q", postID)
	}
	if len(api.uploaded) != 1 || api.uploaded[0] != "chan1/voice_20240501_123000.ogg" {
		t.Errorf("Unexpected upload %v", api.uploaded)
	}

	post := api.posts[0]
	if post.Type != PostType || post.RootId != "root1" || post.ChannelId != "chan1" {
		t.Errorf("Unexpected post %+v", post)
	}
	if len(post.FileIds) != 1 || post.FileIds[0] != "file1" {
		t.Errorf("Expected file1 attached, got %v", post.FileIds)
	}
	if got := post.GetProp(PropDuration); got != "4" {
		t.Errorf("Expected duration prop 4, got %v", got)
	}
	if got := post.GetProp(PropMIMEType); got != msg.MIMEType {
		t.Errorf("Expected mime prop %s, got %v", msg.MIMEType, got)
	}
	if post.Message != "hello there" {
		t.Errorf("Expected transcript as message, got %q", post.Message)
	}
}

func TestPublishUploadFailure(t *testing.T) {
	api := &fakeAPI{uploadErr: errors.New("413 too large")}
	mm := newMattermost(api, "chan1")

	if _, err := mm.Publish(context.Background(), &chat.Message{MIMEType: "audio/wav"}); err == nil {
		t.Fatal("Expected upload error")
	}
	if len(api.posts) != 0 {
		t.Error("Expected no post without an uploaded file")
	}
}

func TestExtForContentType(t *testing.T) {
	tests := map[string]string{
		"audio/wav":              ".wav",
		"audio/x-wav":            ".wav",
		"audio/webm;codecs=opus": ".webm",
		"audio/ogg; codecs=opus": ".ogg",
		"":                       ".ogg",
	}
	for ct, want := range tests {
		if got := extForContentType(ct); got != want {
			t.Errorf("extForContentType(%q) = %q, want %q", ct, got, want)
		}
	}
}
