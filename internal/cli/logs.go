package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	logx "paydigest/pkg/logx"
)

func newLogsCmd(opts *rootOptions) *cobra.Command {
	var (
		follow bool
		lines  int
		file   string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the log file",
		Long: `Print the last lines of the log file (logging.file.path, LOG_FILE).

With --follow, keep printing new lines as they are written. Rotation and
truncation are handled by reopening the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(file)
			if path == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				path = logx.FileConfig{Path: cfg.Logging.File.Path}.ResolvedPath()
			}

			offset, err := printTail(out(cmd), path, lines)
			if err != nil {
				return err
			}
			if !follow {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return followFile(ctx, out(cmd), path, offset)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "number of trailing lines to print (0 prints all)")
	cmd.Flags().StringVar(&file, "file", "", "log file to read (overrides config)")
	return cmd
}

// printTail writes the last n lines of path and returns the offset reached.
func printTail(w io.Writer, path string, n int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("log file %s does not exist; enable logging.file or set LOG_FILE", path)
		}
		return 0, err
	}
	defer f.Close()

	var (
		ring  = make([]string, 0, max(n, 0))
		start int
		all   []string
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	var offset int64
	for sc.Scan() {
		line := sc.Text()
		offset += int64(len(sc.Bytes())) + 1
		switch {
		case n <= 0:
			all = append(all, line)
		case len(ring) < n:
			ring = append(ring, line)
		default:
			ring[start] = line
			start = (start + 1) % n
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if n <= 0 {
		ring, start = all, 0
	}
	for i := range ring {
		if _, err := fmt.Fprintln(w, ring[(start+i)%len(ring)]); err != nil {
			return 0, err
		}
	}

	// The last line may lack a newline; resume from the real size.
	if st, err := f.Stat(); err == nil {
		offset = st.Size()
	}
	return offset, nil
}

// followFile copies bytes appended to path after offset until ctx ends.
// The parent directory is watched so a rotated or recreated file is picked up.
func followFile(ctx context.Context, w io.Writer, path string, offset int64) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Base(path)

	copyNew := func() error {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return err
		}
		if st.Size() < offset {
			// truncated or replaced
			offset = 0
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		n, err := io.Copy(w, f)
		offset += n
		return err
	}

	// Catch writes that landed between printTail and the watch.
	if err := copyNew(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				offset = 0
			case ev.Op&fsnotify.Create != 0:
				offset = 0
				if err := copyNew(); err != nil {
					return err
				}
			case ev.Op&fsnotify.Write != 0:
				if err := copyNew(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
}
