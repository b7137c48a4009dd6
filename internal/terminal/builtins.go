package terminal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

type entry struct {
	name        string
	dir         bool
	permissions string
	size        string
	content     string
}

// filesystem is the fixed simulated tree. Any other directory is empty.
var filesystem = map[string][]entry{
	HomeDir: {
		{name: "documents", dir: true, permissions: "drwxr-xr-x", size: "4096"},
		{name: "tools", dir: true, permissions: "drwxr-xr-x", size: "4096"},
		{name: "readme.txt", permissions: "-rw-r--r--", size: "1024",
			content: "Welcome to the Navigator Terminal!\nUse this environment to complete cybersecurity challenges."},
	},
	HomeDir + "/tools": {
		{name: "hashcat", permissions: "-rwxr-xr-x", size: "2048"},
		{name: "nmap", permissions: "-rwxr-xr-x", size: "1536"},
		{name: "wireshark", permissions: "-rwxr-xr-x", size: "4096"},
	},
}

var manPages = map[string]string{
	"nmap": `NAME
        nmap - Network discovery and security auditing tool

SYNOPSIS
        nmap [options] <target>

DESCRIPTION
        Nmap is a network scanning tool used to discover hosts and services on a network.

OPTIONS
        -sS     TCP SYN scan (default)
        -sU     UDP scan
        -p      Specify port range

EXAMPLES
        nmap 192.168.1.1
        nmap -p 80,443 target.com`,

	"ls": `NAME
        ls - list directory contents

SYNOPSIS
        ls [options] [directory]

DESCRIPTION
        List information about files and directories.`,
}

type port struct {
	num     int
	service string
	state   string
}

var scanPorts = []port{
	{22, "ssh", "open"},
	{80, "http", "open"},
	{443, "https", "open"},
	{3389, "rdp", "filtered"},
	{1433, "mssql", "closed"},
}

func (s *Session) registerBuiltins() {
	for _, c := range []Command{
		{Name: "help", Description: "Show available commands", Handler: s.help},
		{Name: "clear", Description: "Clear the terminal screen", Handler: s.clear},
		{Name: "ls", Description: "List directory contents", Handler: s.ls},
		{Name: "cd", Description: "Change directory", Handler: s.cd},
		{Name: "pwd", Description: "Print working directory", Handler: s.pwd},
		{Name: "cat", Description: "Display file contents", Handler: s.cat},
		{Name: "echo", Description: "Display text", Handler: echo},
		{Name: "env", Description: "Show environment variables", Handler: s.printEnv},
		{Name: "man", Description: "Display manual page for command", Handler: man},
		{Name: "whoami", Description: "Print the current user", Handler: whoami},
		{Name: "date", Description: "Print the current date and time", Handler: s.date},
		{Name: "nmap", Description: "Network discovery and security auditing", Handler: nmap},
		{Name: "load", Description: "Load a security tool (hashcat, wireshark, john)", Handler: s.load},
	} {
		s.registry.Register(c)
	}
}

func (s *Session) help(context.Context, []string) (string, error) {
	var b strings.Builder
	b.WriteString("Available commands:\n\n")
	for _, name := range s.registry.Names() {
		cmd, _ := s.registry.Lookup(name)
		desc := cmd.Description
		if desc == "" {
			desc = "No description available"
		}
		fmt.Fprintf(&b, "  %-15s - %s\n", name, desc)
	}
	b.WriteString("\nType `man <command>` for detailed information about a specific command.")
	return b.String(), nil
}

func (s *Session) clear(context.Context, []string) (string, error) {
	s.clearPending = true
	return "", nil
}

func (s *Session) ls(context.Context, []string) (string, error) {
	files := filesystem[s.cwd]
	if len(files) == 0 {
		return "Directory is empty.", nil
	}
	var b strings.Builder
	for i, f := range files {
		icon := "📄"
		if f.dir {
			icon = "📁"
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s %-20s %s", f.permissions, icon, f.name, f.size)
	}
	return b.String(), nil
}

// cd only rewrites the path string; the target is not required to exist.
func (s *Session) cd(_ context.Context, args []string) (string, error) {
	if len(args) == 0 || args[0] == "~" {
		s.cwd = HomeDir
		return "", nil
	}
	target := args[0]
	switch {
	case target == "..":
		parts := strings.Split(s.cwd, "/")
		if len(parts) > 2 {
			s.cwd = strings.Join(parts[:len(parts)-1], "/")
		}
	case strings.HasPrefix(target, "/"):
		s.cwd = target
	default:
		s.cwd = strings.TrimSuffix(s.cwd, "/") + "/" + strings.TrimSuffix(target, "/")
	}
	return "", nil
}

func (s *Session) pwd(context.Context, []string) (string, error) {
	return s.cwd, nil
}

func (s *Session) cat(_ context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "[ERROR] Usage: cat <filename>", nil
	}
	for _, f := range filesystem[s.cwd] {
		if f.name != args[0] {
			continue
		}
		if f.dir {
			return fmt.Sprintf("[ERROR] cat: %s: Is a directory", f.name), nil
		}
		if f.content == "" {
			return "[INFO] Binary file - content not displayable", nil
		}
		return f.content, nil
	}
	return "[ERROR] File not found: " + args[0], nil
}

func echo(_ context.Context, args []string) (string, error) {
	return strings.Join(args, " "), nil
}

func (s *Session) printEnv(context.Context, []string) (string, error) {
	keys := make([]string, 0, len(s.env))
	for k := range s.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("Environment variables:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s=%s", k, s.env[k])
	}
	return b.String(), nil
}

func man(_ context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "[ERROR] Usage: man <command>", nil
	}
	if page, ok := manPages[strings.ToLower(args[0])]; ok {
		return page, nil
	}
	return "No manual entry for " + args[0], nil
}

func whoami(context.Context, []string) (string, error) {
	return userName, nil
}

func (s *Session) date(context.Context, []string) (string, error) {
	return s.now().UTC().Format(time.UnixDate), nil
}

func nmap(_ context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "[ERROR] Usage: nmap <target>", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Starting Nmap scan on %s\n\n", args[len(args)-1])
	b.WriteString("PORT     STATE    SERVICE\n")
	for _, p := range scanPorts {
		fmt.Fprintf(&b, "%d/tcp  %-8s %s\n", p.num, strings.ToUpper(p.state), p.service)
	}
	b.WriteString("\nNmap scan completed.")
	return b.String(), nil
}
