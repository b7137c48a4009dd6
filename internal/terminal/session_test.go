package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func output(r Result) string { return r.Text() }

func TestRegisterOverrideLastWins(t *testing.T) {
	s := NewSession()
	ctx := context.Background()

	s.Register(Command{Name: "CAT", Handler: func(context.Context, []string) (string, error) { return "first", nil }})
	s.Register(Command{Name: "cat", Handler: func(context.Context, []string) (string, error) { return "second", nil }})

	assert.Equal(t, "second", output(s.Dispatch(ctx, "cat x")))
	assert.Equal(t, "second", output(s.Dispatch(ctx, "CaT x")))
}

func TestDispatchPassesArgs(t *testing.T) {
	s := NewSession()
	var got []string
	s.Register(Command{Name: "probe", Handler: func(_ context.Context, args []string) (string, error) {
		got = args
		return "", nil
	}})
	s.Dispatch(context.Background(), "  probe   a\tb  c ")
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestUnknownCommand(t *testing.T) {
	s := NewSession()
	r := s.Dispatch(context.Background(), "FROB now")
	require.Len(t, r.Lines, 2)
	assert.Equal(t, KindCommand, r.Lines[0].Kind)
	assert.Equal(t, KindError, r.Lines[1].Kind)
	assert.Equal(t, "Command not found: frob. Type 'help' for available commands.", r.Lines[1].Text)
	assert.Equal(t, []string{"FROB now"}, s.History())
}

func TestHandlerErrorAndPanicAreContained(t *testing.T) {
	s := NewSession()
	ctx := context.Background()
	s.Register(Command{Name: "boom", Handler: func(context.Context, []string) (string, error) {
		return "", errors.New("kaput")
	}})
	s.Register(Command{Name: "panic", Handler: func(context.Context, []string) (string, error) {
		panic("deep trouble")
	}})

	r := s.Dispatch(ctx, "boom")
	assert.Equal(t, Line{Text: "Error: kaput", Kind: KindError}, r.Lines[len(r.Lines)-1])

	r = s.Dispatch(ctx, "panic")
	assert.Equal(t, Line{Text: "Error: deep trouble", Kind: KindError}, r.Lines[len(r.Lines)-1])

	assert.Equal(t, "hello", output(s.Dispatch(ctx, "echo hello")), "session stays usable")
}

func TestHistoryBoundedMostRecentFirst(t *testing.T) {
	s := NewSession(WithHistoryLimit(5))
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		s.Dispatch(ctx, fmt.Sprintf("echo %d", i))
	}
	assert.Equal(t, []string{"echo 11", "echo 10", "echo 9", "echo 8", "echo 7"}, s.History())
}

func TestHistoryDefaultCap(t *testing.T) {
	s := NewSession()
	for i := 0; i < 150; i++ {
		s.Dispatch(context.Background(), "pwd")
	}
	assert.Len(t, s.History(), DefaultHistoryLimit)
}

func TestEmptyLineIgnored(t *testing.T) {
	s := NewSession()
	r := s.Dispatch(context.Background(), "   ")
	assert.Empty(t, r.Lines)
	assert.Empty(t, s.History())
}

func TestHistoryRecallAndCursorReset(t *testing.T) {
	s := NewSession()
	ctx := context.Background()
	s.Dispatch(ctx, "pwd")
	s.Dispatch(ctx, "whoami")

	line, ok := s.HistoryPrev()
	require.True(t, ok)
	assert.Equal(t, "whoami", line)
	line, _ = s.HistoryPrev()
	assert.Equal(t, "pwd", line)
	_, ok = s.HistoryPrev()
	assert.False(t, ok)

	line, _ = s.HistoryNext()
	assert.Equal(t, "whoami", line)
	line, ok = s.HistoryNext()
	assert.True(t, ok)
	assert.Equal(t, "", line)

	s.HistoryPrev()
	s.Dispatch(ctx, "date")
	line, _ = s.HistoryPrev()
	assert.Equal(t, "date", line, "dispatch resets the cursor")
}

func TestCdPwdAndPrompt(t *testing.T) {
	s := NewSession()
	ctx := context.Background()
	assert.Equal(t, "navigator@uss-navigator:navigator$ ", s.Prompt())

	s.Dispatch(ctx, "cd tools")
	assert.Equal(t, HomeDir+"/tools", output(s.Dispatch(ctx, "pwd")))
	assert.Contains(t, output(s.Dispatch(ctx, "ls")), "wireshark")

	s.Dispatch(ctx, "cd ..")
	s.Dispatch(ctx, "cd ..")
	s.Dispatch(ctx, "cd ..")
	assert.Equal(t, "/home", s.Cwd())

	s.Dispatch(ctx, "cd /var/log")
	assert.Equal(t, "Directory is empty.", output(s.Dispatch(ctx, "ls")))
	s.Dispatch(ctx, "cd")
	assert.Equal(t, HomeDir, s.Cwd())
}

func TestBuiltinCat(t *testing.T) {
	s := NewSession()
	ctx := context.Background()
	assert.Contains(t, output(s.Dispatch(ctx, "cat readme.txt")), "Welcome to the Navigator Terminal!")
	assert.Equal(t, "[ERROR] File not found: nope.txt", output(s.Dispatch(ctx, "cat nope.txt")))
	assert.Equal(t, "[ERROR] Usage: cat <filename>", output(s.Dispatch(ctx, "cat")))
	s.Dispatch(ctx, "cd tools")
	assert.Equal(t, "[INFO] Binary file - content not displayable", output(s.Dispatch(ctx, "cat nmap")))
}

func TestHelpListsSortedCommands(t *testing.T) {
	s := NewSession()
	out := output(s.Dispatch(context.Background(), "help"))
	assert.True(t, strings.HasPrefix(out, "Available commands:\n\n"))
	assert.Less(t, strings.Index(out, "  cat"), strings.Index(out, "  whoami"))
	assert.Contains(t, out, "  nmap            - Network discovery and security auditing\n")
}

func TestClearDropsEcho(t *testing.T) {
	s := NewSession()
	r := s.Dispatch(context.Background(), "clear")
	assert.True(t, r.Clear)
	assert.Empty(t, r.Lines)
}

func TestMiscBuiltins(t *testing.T) {
	fixed := time.Date(2024, 3, 17, 12, 0, 0, 0, time.UTC)
	s := NewSession(WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	assert.Equal(t, "navigator", output(s.Dispatch(ctx, "whoami")))
	assert.Equal(t, fixed.Format(time.UnixDate), output(s.Dispatch(ctx, "date")))
	assert.Equal(t, "a b", output(s.Dispatch(ctx, "echo a b")))
	assert.Contains(t, output(s.Dispatch(ctx, "env")), "USER=navigator")
	assert.Contains(t, output(s.Dispatch(ctx, "man nmap")), "nmap - Network discovery")
	assert.Equal(t, "No manual entry for grep", output(s.Dispatch(ctx, "man grep")))
	assert.Contains(t, output(s.Dispatch(ctx, "nmap 10.0.0.1")), "3389/tcp  FILTERED rdp")
}

func TestCompletion(t *testing.T) {
	s := NewSession()
	assert.Equal(t, []string{"whoami"}, s.Complete("wh"))
	matches := s.Complete("c")
	assert.Equal(t, []string{"cat", "cd", "clear"}, matches)
	assert.Equal(t, "Available completions: cat, cd, clear", CompletionText(matches))
	assert.Empty(t, s.Complete("zz"))
}

func TestLockRejectsDispatch(t *testing.T) {
	s := NewSession()
	s.Lock()
	r := s.Dispatch(context.Background(), "pwd")
	assert.Equal(t, "[ERROR] Terminal locked", r.Text())
	assert.Empty(t, s.History())
	s.Unlock()
	assert.Equal(t, HomeDir, s.Dispatch(context.Background(), "pwd").Text())
}

func TestResetKeepsCommands(t *testing.T) {
	s := NewSession()
	ctx := context.Background()
	s.Register(Command{Name: "submit", Handler: func(context.Context, []string) (string, error) { return "ok", nil }})
	s.Dispatch(ctx, "cd /tmp")
	r := s.Reset()
	assert.True(t, r.Clear)
	assert.Empty(t, s.History())
	assert.Equal(t, HomeDir, s.Cwd())
	assert.Equal(t, "ok", s.Dispatch(ctx, "submit").Text())
}

func TestLoadTool(t *testing.T) {
	s := NewSession()
	ctx := context.Background()
	assert.Contains(t, s.Dispatch(ctx, "tshark").Text(), "Command not found")
	assert.Contains(t, s.Dispatch(ctx, "load wireshark").Text(), "Loading Wireshark")
	assert.Contains(t, s.Dispatch(ctx, "tshark").Text(), "Packets captured")
	assert.Equal(t, "[ERROR] Unknown tool: nessus", s.Dispatch(ctx, "load nessus").Text())

	_, err := s.LoadTool("nessus")
	assert.Error(t, err)
}
