package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/navigator/codebook/internal/apperr"
	"github.com/navigator/codebook/internal/challenge"
	"github.com/navigator/codebook/internal/session"
	"github.com/navigator/codebook/internal/storage"
	"github.com/navigator/codebook/internal/terminal"
)

const clearScreen = "\033[H\033[2J"

// Play runs one challenge as an interactive terminal over in and out.
// Besides the challenge's own commands it understands:
//
//	download <file>  save evidence to the downloads directory and unlock it
//	tools <name>     load a simulated tool
//	exit             leave
func Play(ctx context.Context, in io.Reader, out io.Writer, challengeID string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	// Keep the terminal clean: logs go to stderr and only warnings show.
	if app.logger == nil {
		app.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	logger := app.logger

	rt, err := newRuntime(app.config, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	if challengeID == "" {
		items, err := rt.catalog.List()
		if err != nil {
			return fmt.Errorf("list scenarios: %w", err)
		}
		if len(items) == 0 {
			return errors.New("no scenarios found under " + rt.site.Root())
		}
		challengeID = items[0].ID
	}

	if err := os.MkdirAll(app.config.Site.Downloads, 0o755); err != nil {
		return fmt.Errorf("create downloads dir: %w", err)
	}
	downloads, err := storage.NewFS(app.config.Site.Downloads)
	if err != nil {
		return fmt.Errorf("init downloads: %w", err)
	}

	v, err := rt.sessions.Create(ctx, challenge.PageContext{ChallengeID: challengeID}, "")
	if err != nil {
		return err
	}
	p := &player{rt: rt, downloads: downloads, out: out, id: v.ID}
	p.banner(v)

	scanner := bufio.NewScanner(in)
	for {
		p.printf("%s", p.prompt())
		if !scanner.Scan() {
			p.printf("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if done := p.handle(ctx, line); done {
			return nil
		}
	}
}

type player struct {
	rt        *runtime
	downloads *storage.FS
	out       io.Writer
	id        string
}

func (p *player) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *player) prompt() string {
	v, err := p.rt.sessions.Get(p.id)
	if err != nil {
		return "$ "
	}
	return v.Prompt
}

func (p *player) banner(v session.View) {
	st := v.Challenge
	if st.Degraded {
		p.printf("[ERROR] %s\n\n", challenge.DegradedMessage)
		return
	}
	p.printf("=== %s ===\n\n%s\n\n", st.Title, st.MissionBrief)
	if st.XISMessage != "" {
		p.printf("XIS: %s\n\n", st.XISMessage)
	}
	p.printf("Evidence:\n")
	for _, e := range st.Evidence {
		p.printf("  %s  (%s)\n", e.Filename, e.DisplayName)
	}
	p.printf("\nType 'download <file>' to fetch evidence, 'help' for commands, 'exit' to quit.\n\n")
}

// handle runs one line and reports whether the player asked to leave.
func (p *player) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "exit", "quit":
		p.printf("Goodbye, Navigator.\n")
		return true
	case "download":
		if len(fields) < 2 {
			p.printf("[ERROR] Usage: download <filename>\n")
			return false
		}
		p.download(fields[1])
		return false
	case "tools":
		if len(fields) < 2 {
			p.printf("Available tools: %s\n", strings.Join(slices.Sorted(maps.Keys(terminal.Tools)), ", "))
			return false
		}
		banner, err := p.rt.sessions.LoadTool(p.id, fields[1])
		if err != nil {
			p.printf("[ERROR] Unknown tool: %s\n", fields[1])
			return false
		}
		p.printf("%s\n", banner)
		return false
	}

	res, _, err := p.rt.sessions.Dispatch(ctx, p.id, line)
	if err != nil {
		p.printf("[ERROR] %v\n", err)
		return false
	}
	p.render(res)
	return false
}

func (p *player) download(filename string) {
	d, err := p.rt.sessions.Download(p.id, filename)
	if err != nil {
		if errors.Is(err, apperr.ErrDegraded) {
			p.printf("[ERROR] %s\n", challenge.DegradedMessage)
		} else {
			p.printf("[ERROR] %v\n", err)
		}
		return
	}
	if err := p.downloads.Write(d.Filename, []byte(d.Content)); err != nil {
		p.printf("[ERROR] save %s: %v\n", d.Filename, err)
		return
	}
	for _, l := range d.Lines {
		p.printf("%s\n", l)
	}
	p.printf("[INFO] Saved to %s\n", p.downloads.Root()+string(os.PathSeparator)+d.Filename)
}

func (p *player) render(res terminal.Result) {
	if res.Clear {
		p.printf("%s", clearScreen)
	}
	for _, l := range res.Lines {
		if l.Kind == terminal.KindCommand {
			continue
		}
		p.printf("%s\n", l.Text)
	}
}
