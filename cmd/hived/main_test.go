package main

import (
	"context"
	"testing"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/coordinator"
)

func TestVersion_NotEmpty(t *testing.T) {
	if Version == "" {
		t.Fatal("Version should not be empty")
	}
}

func TestDemoExecutor_EchoesTaskIDAndTitle(t *testing.T) {
	out, err := demoExecutor{}.Execute(context.Background(), coordinator.Task{ID: "t1", Title: "do the thing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "completed t1 (do the thing)" {
		t.Fatalf("unexpected output: %q", out)
	}
}
