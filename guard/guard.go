package guard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// protectedDefaults can never be written by a tool, regardless of the
// session's permission mode. Entries match against the path's basename
// (exact) and against the full path (substring).
var protectedDefaults = []string{
	".env",
	"secrets",
	"credentials",
	"id_rsa",
	"id_ed25519",
	".pem",
	"known_hosts",
	"warden.db",
	"config.json",
	"guard.go",
}

// shellWrappers re-invoke another command and are used to smuggle a
// blocked command past argv[0] checks.
var shellWrappers = map[string]bool{
	"sudo":    true,
	"doas":    true,
	"env":     true,
	"nohup":   true,
	"nice":    true,
	"time":    true,
	"timeout": true,
	"setsid":  true,
	"stdbuf":  true,
	"xargs":   true,
	"command": true,
	"builtin": true,
	"watch":   true,
}

// writeCommands modify the filesystem; their targets must all be
// provably safe or the command is blocked.
var writeCommands = map[string]bool{
	"rm":       true,
	"mv":       true,
	"cp":       true,
	"dd":       true,
	"tee":      true,
	"truncate": true,
	"shred":    true,
	"unlink":   true,
	"rsync":    true,
	"install":  true,
	"ln":       true,
	"chmod":    true,
	"chown":    true,
}

type Guard struct {
	protected []string
}

// New builds a Guard enforcing the fixed protected list plus any extra
// operator-configured entries.
func New(extra ...string) *Guard {
	g := &Guard{protected: append([]string(nil), protectedDefaults...)}
	for _, e := range extra {
		if e = strings.TrimSpace(e); e != "" {
			g.protected = append(g.protected, e)
		}
	}
	return g
}

// CheckPath rejects writes to protected files. The check applies to the
// resolved path; bypass permission modes do not skip it.
func (g *Guard) CheckPath(path string) error {
	clean := filepath.Clean(path)
	base := strings.ToLower(filepath.Base(clean))
	lower := strings.ToLower(clean)
	for _, p := range g.protected {
		if base == p || strings.Contains(lower, p) {
			return fmt.Errorf("path %q is protected and can never be modified", path)
		}
	}
	return nil
}

// CheckCommand inspects a shell command before execution. It tokenizes
// quote-aware, rejects dangerous constructs outright, and for
// write-capable commands requires every target to pass CheckPath.
func (g *Guard) CheckCommand(command string) error {
	if err := checkDangerousPatterns(command); err != nil {
		return err
	}
	tokens, err := Tokenize(command)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	tokens = unwrap(tokens)
	if len(tokens) == 0 {
		return fmt.Errorf("command reduces to a bare wrapper")
	}
	name := filepath.Base(tokens[0])

	switch name {
	case "sh", "bash", "zsh", "dash", "ksh":
		for _, tok := range tokens[1:] {
			if tok == "-c" {
				return fmt.Errorf("nested shell invocation (%s -c) is not allowed", name)
			}
		}
	case "eval", "exec", "source":
		return fmt.Errorf("%s is not allowed", name)
	case "find":
		for _, tok := range tokens[1:] {
			if tok == "-delete" || tok == "-exec" || tok == "-execdir" || tok == "-ok" {
				return fmt.Errorf("destructive find flag %s is not allowed", tok)
			}
		}
	case "sed", "perl":
		for _, tok := range tokens[1:] {
			if strings.HasPrefix(tok, "-i") {
				return g.checkWriteTargets(name, tokens[1:])
			}
		}
	}

	if writeCommands[name] {
		return g.checkWriteTargets(name, tokens[1:])
	}
	if err := g.checkRedirects(command); err != nil {
		return err
	}
	return nil
}

func checkDangerousPatterns(command string) error {
	if strings.Contains(command, "$(") || strings.Contains(command, "`") {
		return fmt.Errorf("command substitution is not allowed")
	}
	if strings.Contains(command, "${") {
		return fmt.Errorf("parameter expansion is not allowed")
	}
	return nil
}

// checkWriteTargets requires every non-flag argument of a write-capable
// command to be a provably safe path. Globs and variables cannot be
// proven safe and are blocked.
func (g *Guard) checkWriteTargets(name string, args []string) error {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if strings.ContainsAny(arg, "*?[$") {
			return fmt.Errorf("%s target %q cannot be proven safe", name, arg)
		}
		if err := g.CheckPath(arg); err != nil {
			return err
		}
	}
	return nil
}

// checkRedirects validates > and >> targets for any command.
func (g *Guard) checkRedirects(command string) error {
	rest := command
	for {
		idx := strings.IndexByte(rest, '>')
		if idx < 0 {
			return nil
		}
		rest = rest[idx+1:]
		rest = strings.TrimPrefix(rest, ">")
		rest = strings.TrimLeft(rest, " \t")
		end := strings.IndexAny(rest, " \t;|&")
		target := rest
		if end >= 0 {
			target = rest[:end]
		}
		if target == "" {
			continue
		}
		if strings.ContainsAny(target, "*?[$") {
			return fmt.Errorf("redirect target %q cannot be proven safe", target)
		}
		if err := g.CheckPath(target); err != nil {
			return err
		}
	}
}

// Tokenize splits a shell command quote-aware: single quotes take
// everything literally, double quotes preserve spaces, a backslash
// escapes the next rune outside single quotes.
func Tokenize(command string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inToken := false
	var quote rune
	escaped := false
	for _, r := range command {
		switch {
		case escaped:
			cur.WriteRune(r)
			inToken = true
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inToken = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if escaped || quote != 0 {
		return nil, fmt.Errorf("unterminated quoting in command")
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// unwrap strips leading command wrappers (sudo, env, xargs, ...) and
// their option arguments so the real command is inspected.
func unwrap(tokens []string) []string {
	for len(tokens) > 0 {
		name := filepath.Base(tokens[0])
		if !shellWrappers[name] {
			return tokens
		}
		tokens = tokens[1:]
		for len(tokens) > 0 {
			tok := tokens[0]
			if strings.HasPrefix(tok, "-") || strings.Contains(tok, "=") {
				tokens = tokens[1:]
				continue
			}
			break
		}
	}
	return tokens
}
