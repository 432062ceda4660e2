package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FollowInterval is how often Follow re-reads the file when no write event
// arrives.
const FollowInterval = 250 * time.Millisecond

// ReadFile returns every well-formed event in the JSONL file at path.
// Malformed lines are skipped.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if evt, ok := decode(scanner.Bytes()); ok {
			events = append(events, evt)
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("telemetry: read %s: %w", path, err)
	}
	return events, nil
}

// Latest returns the most recently modified run file in dir.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return "", fmt.Errorf("telemetry: list %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("telemetry: no runs in %s: %w", dir, os.ErrNotExist)
	}
	type entry struct {
		path string
		mod  time.Time
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: m, mod: info.ModTime()})
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("telemetry: no readable runs in %s: %w", dir, os.ErrNotExist)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod.After(entries[j].mod) })
	return entries[0].path, nil
}

// RunID returns the run id encoded in a telemetry file name.
func RunID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

// Follow calls fn for every event in the file at path, then keeps reading
// newly appended lines until ctx ends. It stops early after a run_done event.
// New data is picked up on fsnotify write events, with FollowInterval as a
// fallback.
func Follow(ctx context.Context, path string, fn func(Event)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("telemetry: create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("telemetry: watch %s: %w", path, err)
	}
	events, errs := watcher.Events, watcher.Errors

	reader := bufio.NewReader(f)
	var partial []byte
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			partial = append(partial, line...)
		}
		if err == nil {
			evt, ok := decode(partial)
			partial = partial[:0]
			if ok {
				fn(evt)
				if evt.Kind == KindRunDone {
					return nil
				}
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("telemetry: read %s: %w", path, err)
		}

		// No complete line yet; wait for more data.
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-time.After(FollowInterval):
		}
	}
}

func decode(line []byte) (Event, bool) {
	var evt Event
	if len(strings.TrimSpace(string(line))) == 0 {
		return evt, false
	}
	if err := json.Unmarshal(line, &evt); err != nil {
		return evt, false
	}
	return evt, true
}
