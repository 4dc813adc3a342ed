package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rubiojr/lunarvox/config"
	"github.com/rubiojr/lunarvox/internal/audio"
	"github.com/rubiojr/lunarvox/internal/blob"
	"github.com/rubiojr/lunarvox/internal/capture/synthetic"
	"github.com/rubiojr/lunarvox/internal/recording"
	"github.com/rubiojr/lunarvox/internal/store"
	"github.com/rubiojr/lunarvox/internal/version"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendSynthetic
	cfg.Format = "wav"
	cfg.Normalize = false
	cfg.DataDir = t.TempDir()
	cfg.DatabasePath = ""
	return cfg
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCmd(&Dependencies{Config: testConfig(t)})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out.String()) != version.Full() {
		t.Errorf("Unexpected version output %q", out.String())
	}
}

func TestNewMicrophone(t *testing.T) {
	cfg := testConfig(t)
	mic, err := newMicrophone(cfg)
	if err != nil {
		t.Fatal(err)
	}
	sm, ok := mic.(*synthetic.Microphone)
	if !ok {
		t.Fatalf("Expected synthetic microphone, got %T", mic)
	}
	if sm.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, sm.SampleRate)
	}

	cfg.Backend = "carrier-pigeon"
	if _, err := newMicrophone(cfg); err == nil {
		t.Error("Expected unknown backend to fail")
	}
}

func TestOpenStore(t *testing.T) {
	cfg := testConfig(t)
	st, err := openStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*store.Memory); !ok {
		t.Errorf("Expected memory store without a database path, got %T", st)
	}
	st.Close()

	cfg.DatabasePath = filepath.Join(t.TempDir(), "db", "lunarvox.db")
	st, err = openStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, ok := st.(*store.SQLite); !ok {
		t.Errorf("Expected SQLite store, got %T", st)
	}
}

func TestEncoderRejectsUnknownFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Format = "mp3"
	if _, err := encoder(cfg); err == nil {
		t.Error("Expected unknown format to fail")
	}
}

func TestRecordSavesAndSends(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabasePath = filepath.Join(t.TempDir(), "lunarvox.db")
	out := filepath.Join(t.TempDir(), "take.wav")

	root := NewRootCmd(&Dependencies{Config: cfg})
	root.SetIn(strings.NewReader("s\n"))
	root.SetArgs([]string{"record", "--send", "-o", out})
	if err := root.Execute(); err != nil {
		t.Fatalf("record: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Expected saved recording: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Errorf("Expected WAV file, got %q", data[:min(4, len(data))])
	}

	st, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	msgs, err := st.List(t.Context(), cfg.Thread, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].DurationSeconds != 1 {
		t.Fatalf("Expected one one-second message, got %+v", msgs)
	}
}

func TestRecordDiscard(t *testing.T) {
	cfg := testConfig(t)
	deps := &Dependencies{Config: cfg}
	root := NewRootCmd(deps)
	root.SetIn(strings.NewReader("d\n"))
	root.SetArgs([]string{"record"})
	if err := root.Execute(); err != nil {
		t.Fatalf("record: %v", err)
	}
	if deps.Blobs.Live() != 0 {
		t.Errorf("Expected nothing kept after discard, %d blobs live", deps.Blobs.Live())
	}
}

func TestTogglePauseFollowsController(t *testing.T) {
	sink := recording.SinkFunc(func(context.Context, recording.Asset) error { return nil })
	mic := synthetic.New()
	c := recording.New(mic, blob.NewStore(), sink,
		recording.WithEncoder(audio.Encoder{Format: audio.FormatWAV}))
	defer c.Close()

	if err := c.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	togglePause(c)
	if !c.Session().Paused {
		t.Error("Expected take paused")
	}
	togglePause(c)
	if c.Session().Paused {
		t.Error("Expected take resumed")
	}

	togglePause(c)
	mic.Streams()[0].Close()
	togglePause(c)
	if !c.Session().Paused {
		t.Error("Expected take still paused when the device cannot resume")
	}

	c.Discard()
	togglePause(c)
	if s := c.Session(); s.Paused || s.Status != recording.StatusIdle {
		t.Errorf("Expected toggling a finished take to change nothing, got %+v", s)
	}
}
