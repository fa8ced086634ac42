package tailer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/pkg/types"
)

// Tailer reads newly appended lines from monitored files. Reads are
// poll-driven: each Poll picks up from the last recorded position and
// never seeks backward except when rotation is detected. An fsnotify
// watcher on the parent directories signals appends between polls so the
// scheduler can run an early pass instead of waiting a full interval.
type Tailer struct {
	logger  *logging.Logger
	watcher *fsnotify.Watcher
	wake    chan struct{}
	done    chan struct{}
}

// New creates a Tailer.
func New(logger *logging.Logger) (*Tailer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	t := &Tailer{
		logger:  logger.WithComponent("tailer"),
		watcher: watcher,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go t.watchLoop()
	return t, nil
}

// Watch registers the parent directory of path with the watcher. Watching
// the directory rather than the file keeps notifications flowing across
// rotation, when the file itself is replaced.
func (t *Tailer) Watch(path string) error {
	if err := t.watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return nil
}

// Wake returns a channel that receives a signal when a watched directory
// changes. Signals are coalesced; a receive means "poll soon", nothing
// more.
func (t *Tailer) Wake() <-chan struct{} {
	return t.wake
}

// Close stops the watcher.
func (t *Tailer) Close() error {
	close(t.done)
	return t.watcher.Close()
}

func (t *Tailer) watchLoop() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				select {
				case t.wake <- struct{}{}:
				default:
				}
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.Warn().Err(err).Msg("File watcher error")
		case <-t.done:
			return
		}
	}
}

// Poll reads every complete line appended to pos.Path since pos.Offset and
// returns the advanced position. A missing file returns no lines and an
// unchanged position: the file may reappear after rotation. A shrunken
// file or a changed inode is treated as rotation and reading restarts
// from offset zero. A trailing line without a terminator is not returned
// and not counted toward the new offset, so it is re-read once complete.
func (t *Tailer) Poll(pos types.FilePosition) ([]string, types.FilePosition, error) {
	fi, err := os.Stat(pos.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pos, nil
		}
		return nil, pos, fmt.Errorf("failed to stat %s: %w", pos.Path, err)
	}

	ino := inodeOf(fi)
	offset := pos.Offset
	if fi.Size() < offset || (pos.Inode != 0 && ino != 0 && ino != pos.Inode) {
		t.logger.Info().
			Str("path", pos.Path).
			Int64("offset", offset).
			Int64("size", fi.Size()).
			Msg("Rotation detected, resetting to start of file")
		offset = 0
	}

	f, err := os.Open(pos.Path)
	if err != nil {
		return nil, pos, fmt.Errorf("failed to open %s: %w", pos.Path, err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, pos, fmt.Errorf("failed to seek %s: %w", pos.Path, err)
		}
	}

	var lines []string
	consumed := offset
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			// Incomplete trailing line: leave it for the next poll.
			break
		}
		if err != nil {
			return lines, types.FilePosition{Path: pos.Path, Offset: consumed, Inode: ino},
				fmt.Errorf("failed to read %s: %w", pos.Path, err)
		}
		consumed += int64(len(line))
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}

	return lines, types.FilePosition{Path: pos.Path, Offset: consumed, Inode: ino}, nil
}

// inodeOf extracts the inode from FileInfo, zero where unsupported.
func inodeOf(fi os.FileInfo) uint64 {
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
