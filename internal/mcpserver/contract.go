package mcpserver

// CommandReference describes how to drive a challenge terminal. LLM
// consumers read it before calling run_command.
const CommandReference = `# Codebook Terminal Command Reference

Every challenge runs in a simulated shell. Start one with ` + "`start_session`" + `, then
send one line at a time with ` + "`run_command`" + `.

## Flow

1. ` + "`start_session`" + ` with a challenge id (see ` + "`list_scenarios`" + `).
2. ` + "`download_evidence`" + ` for each file listed in the session status. Gated
   commands refuse to read a file until it has been downloaded.
3. Investigate with ` + "`grep`" + `, ` + "`cat`" + ` and ` + "`analyze`" + `.
4. ` + "`submit NAVIGATOR{...}`" + ` once the flag is found.

## Challenge commands

| Command | Usage | Notes |
|---|---|---|
| cat | ` + "`cat <file>`" + ` | Prints a downloaded evidence file |
| grep | ` + "`grep <pattern> <file>`" + ` | Case-insensitive, prints matching lines with numbers |
| analyze | ` + "`analyze <file>`" + ` | Counts lines and flags suspicious content |
| submit | ` + "`submit <flag>`" + ` | Checks the flag; the comparison is exact |
| hint | ` + "`hint`" + ` | Reveals the next progressive hint |
| objectives | ` + "`objectives`" + ` | Lists objectives and their completion |

A challenge may omit any of these; ` + "`help`" + ` lists what the current session offers.

## Shell builtins

help, clear, ls, cd, pwd, echo, env, man, whoami, date, nmap, and
` + "`load <tool>`" + ` where tool is hashcat, wireshark or john.

## Output conventions

- Lines starting with ` + "`[ERROR]`" + ` are failures; the session is unchanged.
- ` + "`[SUCCESS]`" + ` marks an accepted flag.
- ` + "`[INFO]`" + ` lines are status or guidance.
- A degraded session (definition failed to load) still answers commands but
  cannot hand out evidence.
`
