package genai

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDebugModeWritesExchange(t *testing.T) {
	dir := t.TempDir()
	client := &Client{chat: &mockChatService{resp: completion("debug reply")}, model: "m", debugMode: true, stateDir: dir}

	if _, err := client.Reply(context.Background(), "919811111111", history); err != nil {
		t.Fatal(err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "debug", "openai_*.json"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one debug file, got %v (%v)", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	var rec debugRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Sender != "919811111111" || rec.Reply != "debug reply" || len(rec.History) != len(history) {
		t.Errorf("unexpected debug record %+v", rec)
	}
}

func TestDebugModeDisabled(t *testing.T) {
	dir := t.TempDir()
	client := &Client{chat: &mockChatService{resp: completion("x")}, model: "m", stateDir: dir}
	if _, err := client.Reply(context.Background(), "s", history); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "debug")); !os.IsNotExist(err) {
		t.Errorf("debug dir should not exist, stat err = %v", err)
	}
}

func TestWithDebugEmptyDir(t *testing.T) {
	cfg := applyOpts([]Option{WithDebug("")})
	if cfg.DebugMode {
		t.Error("empty state dir should keep debug off")
	}
}
