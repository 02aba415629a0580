package stream

import "testing"

func TestBuildStreamURLFromBase(t *testing.T) {
	got, err := BuildStreamURL("https://api.example.com", "", "")
	if err != nil {
		t.Fatalf("BuildStreamURL failed: %v", err)
	}
	if got != "wss://api.example.com/live/stream" {
		t.Errorf("unexpected url: %s", got)
	}
}

func TestBuildStreamURLPlainHTTP(t *testing.T) {
	got, err := BuildStreamURL("http://localhost:8000", "", "")
	if err != nil {
		t.Fatalf("BuildStreamURL failed: %v", err)
	}
	if got != "ws://localhost:8000/live/stream" {
		t.Errorf("unexpected url: %s", got)
	}
}

func TestBuildStreamURLExplicit(t *testing.T) {
	got, err := BuildStreamURL("https://api.example.com", "wss://stream.example.com/custom", "")
	if err != nil {
		t.Fatalf("BuildStreamURL failed: %v", err)
	}
	// explicit stream urls keep their own path
	if got != "wss://stream.example.com/custom" {
		t.Errorf("unexpected url: %s", got)
	}
}

func TestBuildStreamURLToken(t *testing.T) {
	got, err := BuildStreamURL("http://localhost:8000", "", "secret")
	if err != nil {
		t.Fatalf("BuildStreamURL failed: %v", err)
	}
	if got != "ws://localhost:8000/live/stream?token=secret" {
		t.Errorf("unexpected url: %s", got)
	}
}

func TestBuildStreamURLNoBase(t *testing.T) {
	if _, err := BuildStreamURL("", "", ""); err == nil {
		t.Fatal("expected error without any url")
	}
}
