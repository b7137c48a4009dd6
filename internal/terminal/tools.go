package terminal

import (
	"context"
	"fmt"
	"strings"

	"github.com/navigator/codebook/internal/apperr"
)

// Tools lists the loadable simulated tools and the command each registers.
var Tools = map[string]string{
	"hashcat":   "hashcat",
	"wireshark": "tshark",
	"john":      "john",
}

// LoadTool registers the command for toolID and returns the banner line.
func (s *Session) LoadTool(toolID string) (string, error) {
	switch strings.ToLower(toolID) {
	case "hashcat":
		s.Register(Command{Name: "hashcat", Description: "Advanced password recovery utility", Handler: hashcat})
		return "[INFO] Loading Hashcat - Advanced password recovery utility", nil
	case "wireshark":
		s.Register(Command{Name: "tshark", Description: "Network packet analyzer", Handler: tshark})
		return "[INFO] Loading Wireshark - Network protocol analyzer", nil
	case "john":
		s.Register(Command{Name: "john", Description: "Password cracking tool", Handler: john})
		return "[INFO] Loading John the Ripper - Password cracker", nil
	}
	return "", fmt.Errorf("terminal: tool %s: %w", toolID, apperr.ErrNotFound)
}

func (s *Session) load(_ context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "[ERROR] Usage: load <hashcat|wireshark|john>", nil
	}
	banner, err := s.LoadTool(args[0])
	if err != nil {
		return "[ERROR] Unknown tool: " + args[0], nil
	}
	return banner, nil
}

func hashcat(_ context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return `[INFO] Hashcat v6.2.6
Usage: hashcat [options] hashfile [dictionary]

Options:
  -m    Hash type (0=MD5, 100=SHA1, 1000=NTLM)
  -a    Attack mode (0=straight, 3=brute-force)
  -o    Output file`, nil
	}
	return "[INFO] Starting hashcat attack...\n[INFO] Cracking in progress...\n[SUCCESS] Password found: password123", nil
}

func tshark(context.Context, []string) (string, error) {
	return `[INFO] Wireshark packet capture analysis
Packets captured: 1,337
Protocols detected: HTTP, HTTPS, DNS, TCP, UDP
Suspicious traffic: 3 connections to unknown hosts`, nil
}

func john(context.Context, []string) (string, error) {
	return `[INFO] John the Ripper password cracker
Loaded 1 password hash
Trying dictionary attack...
Password cracked: admin123`, nil
}
