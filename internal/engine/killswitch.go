package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// stopPresent reports whether the STOP sentinel exists. Its mere presence
// halts runs; content is ignored.
func stopPresent(sb Sandbox) bool {
	_, err := os.Stat(sb.StopPath())
	return err == nil
}

// checkStop gates an operation on the kill-switch.
func checkStop(sb Sandbox) error {
	if stopPresent(sb) {
		return fmt.Errorf("%w: %s present", ErrHalted, sb.StopPath())
	}
	return nil
}

// stopWatcher reports the STOP sentinel appearing while a run is in flight,
// so the run halts at the next replica boundary instead of at the next stat.
type stopWatcher struct {
	watcher *fsnotify.Watcher
	halted  chan struct{}
	done    chan struct{}
}

// watchStop watches the sandbox root for the sentinel being created.
func watchStop(sb Sandbox, log zerolog.Logger) (*stopWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create stop watcher: %w", err)
	}
	if err := w.Add(sb.Root()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch sandbox root: %w", err)
	}

	sw := &stopWatcher{
		watcher: w,
		halted:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(sw.done)
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != stopFileName {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				select {
				case <-sw.halted:
				default:
					close(sw.halted)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("stop watcher error")
			}
		}
	}()
	return sw, nil
}

// Halted reports whether the sentinel appeared since watching began.
func (sw *stopWatcher) Halted() bool {
	select {
	case <-sw.halted:
		return true
	default:
		return false
	}
}

func (sw *stopWatcher) Close() {
	_ = sw.watcher.Close()
	<-sw.done
}
