package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/glimps-re/pescan/pkg/config"
	"github.com/glimps-re/pescan/pkg/datamodel"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const shellPrompt = "pescan> "

const shellHelp = `Commands:
  select <location>      choose the file to scan (path or s3://bucket/key)
  drop <location>...     drop files, the first one is selected
  scan                   submit the selected file in the background
  wait                   wait for the running scan to end
  filter [text]          only show features whose name contains text
  show                   print the current state
  clear                  forget the selected file
  help                   print this help
  quit                   leave the shell`

func newShellCmd(appConfig *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "shell [location]",
		Short: "Interactive session: select files, run scans, filter features",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd, appConfig)
			if err != nil {
				return
			}
			defer a.Close()
			sh := newShell(a)
			if len(args) == 1 {
				sh.execute(cmd.Context(), []string{"select", args[0]})
			}
			return sh.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

type shell struct {
	app *app
	// done of the last started scan
	done <-chan struct{}
}

func newShell(a *app) *shell {
	a.printScanEnd()
	return &shell{app: a}
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
}

// run reads commands until quit or end of input, then waits for the running scan.
func (sh *shell) run(ctx context.Context, in io.Reader) (err error) {
	interactive := isTerminal(in)
	lines := make(chan string)
	readErr := make(chan error, 1)
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		if interactive {
			sh.app.out.Print(shellPrompt)
		}
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case line, ok = <-lines:
		}
		if !ok {
			break
		}
		args, splitErr := shellquote.Split(line)
		if splitErr != nil {
			sh.app.out.Println("invalid command:", splitErr)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if quit := sh.execute(ctx, args); quit {
			return
		}
	}

	sh.wait(ctx)
	select {
	case err = <-readErr:
	default:
	}
	return
}

// execute runs one command, it returns true when the shell must stop.
func (sh *shell) execute(ctx context.Context, args []string) (quit bool) {
	a := sh.app
	logger.Debug("shell command", slog.String("command", args[0]), slog.Int("args", len(args)-1))
	switch args[0] {
	case "select":
		if len(args) != 2 {
			a.out.Println("usage: select <location>")
			return
		}
		file, err := a.selector.Acquire(ctx, args[1])
		if err != nil {
			a.out.Println(err)
			return
		}
		a.session.Select(&file)
		a.out.Render(a.session.Snapshot())
	case "drop":
		files := make([]datamodel.FileRef, 0, len(args)-1)
		for _, location := range args[1:] {
			file, err := a.selector.Acquire(ctx, location)
			if err != nil {
				a.out.Println(err)
				continue
			}
			files = append(files, file)
		}
		if len(files) == 0 {
			return
		}
		a.session.Drop(files)
		a.out.Render(a.session.Snapshot())
	case "scan":
		done, started := a.session.RunScan(ctx)
		if !started {
			if a.session.File() == nil {
				a.out.Println("select a file first")
			} else {
				a.out.Println("a scan is already running")
			}
			return
		}
		sh.done = done
		a.out.Println("Scanning…")
	case "wait":
		sh.wait(ctx)
	case "filter":
		a.session.SetQuery(strings.Join(args[1:], " "))
		a.out.Render(a.session.Snapshot())
	case "show":
		a.out.Render(a.session.Snapshot())
	case "clear":
		a.session.Select(nil)
		a.out.Render(a.session.Snapshot())
	case "help":
		a.out.Println(shellHelp)
	case "quit", "exit":
		quit = true
	default:
		a.out.Println(fmt.Sprintf("unknown command %q, type help", args[0]))
	}
	return
}

func (sh *shell) wait(ctx context.Context) {
	if sh.done == nil {
		return
	}
	select {
	case <-sh.done:
	case <-ctx.Done():
	}
}
