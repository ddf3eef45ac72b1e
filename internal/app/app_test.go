package app

import (
	"context"
	"testing"

	"simplane/internal/config"
	"simplane/internal/launcher"
)

func TestNewLauncher(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
		want    string
	}{
		{name: "slurm", want: "slurm"},
		{name: "dev", want: "dev"},
		{name: "pbs", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLauncher(&config.Config{Launcher: tt.name}, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown launcher")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l.Name() != tt.want {
				t.Errorf("got launcher %q, want %q", l.Name(), tt.want)
			}
		})
	}
}

func TestBuild_DevWithoutArchive(t *testing.T) {
	cfg := &config.Config{
		RootDir:         t.TempDir(),
		Launcher:        "dev",
		NodesPerJob:     1,
		CoresPerNode:    4,
		NumberTimesteps: 10,
		JobStepCount:    3,
		FrameHeight:     480,
		AvatarPoolSize:  5,
		LeaderboardSize: 2,
		CacheSize:       4,
	}

	a, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer a.Close()

	if a.Archive != nil {
		t.Error("expected no archive without a database url")
	}
	if _, ok := a.Launcher.(launcher.DevLauncher); !ok {
		t.Errorf("expected dev launcher, got %T", a.Launcher)
	}

	ids, err := a.Store.ListIDs(context.Background())
	if err != nil || len(ids) != 0 {
		t.Errorf("expected an empty store, got %v (%v)", ids, err)
	}
}
