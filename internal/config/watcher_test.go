package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func validYAML(multiplier string) string {
	return "schema_version: \"1.0\"\ndetector:\n  threshold_multiplier: " + multiplier + "\n"
}

func startWatcher(t *testing.T, path string, callback ReloadCallback) *Watcher {
	t.Helper()
	watcher, err := NewWatcher(WatcherConfig{FilePath: path, Debounce: 100 * time.Millisecond}, callback)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = watcher.Stop(ctx)
	})
	return watcher
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNewWatcherValidation(t *testing.T) {
	if _, err := NewWatcher(WatcherConfig{}, func(*Config) error { return nil }); err == nil {
		t.Error("expected error for empty FilePath")
	}
	if _, err := NewWatcher(WatcherConfig{FilePath: "x.yaml"}, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

func TestWatcherStartLoadsInitialConfig(t *testing.T) {
	path := writeConfig(t, validYAML("3"))

	var received *Config
	startWatcher(t, path, func(cfg *Config) error {
		received = cfg
		return nil
	})

	if received == nil {
		t.Fatal("callback was not called on Start")
	}
	if received.Detector.ThresholdMultiplier != 3 {
		t.Errorf("expected multiplier 3, got %v", received.Detector.ThresholdMultiplier)
	}
}

func TestWatcherStartFailures(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	w, err := NewWatcher(WatcherConfig{FilePath: missing}, func(*Config) error { return nil })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, validYAML("3"))
	w, err = NewWatcher(WatcherConfig{FilePath: path}, func(*Config) error { return errors.New("rejected") })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error when initial callback fails")
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfig(t, validYAML("3"))

	var mu sync.Mutex
	var multipliers []float64
	startWatcher(t, path, func(cfg *Config) error {
		mu.Lock()
		defer mu.Unlock()
		multipliers = append(multipliers, cfg.Detector.ThresholdMultiplier)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(validYAML("4")), 0o600); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(multipliers) >= 2 && multipliers[len(multipliers)-1] == 4
	})
}

func TestWatcherDebouncesBursts(t *testing.T) {
	path := writeConfig(t, validYAML("3"))

	var calls atomic.Int32
	startWatcher(t, path, func(*Config) error {
		calls.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(validYAML("4")), 0o600); err != nil {
			t.Fatalf("failed to update config: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, 3*time.Second, func() bool { return calls.Load() >= 2 })
	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 1 initial + 1 debounced reload, got %d calls", got)
	}
}

func TestWatcherKeepsPreviousConfigOnInvalidReload(t *testing.T) {
	path := writeConfig(t, validYAML("3"))

	var calls atomic.Int32
	startWatcher(t, path, func(*Config) error {
		calls.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("schema_version: \"9.0\"\n"), 0o600); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("invalid config must not reach the callback, got %d calls", got)
	}

	if err := os.WriteFile(path, []byte(validYAML("5")), 0o600); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool { return calls.Load() == 2 })
}

func TestWatcherStopWithoutStart(t *testing.T) {
	w, err := NewWatcher(WatcherConfig{FilePath: "x.yaml"}, func(*Config) error { return nil })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop without Start: %v", err)
	}
}
