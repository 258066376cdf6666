// Package categories implements the signature/category matcher (§4.1): a
// fixed, ordered list of (category, regex) pairs compiled once at
// construction and matched against a lowercased command string or a
// forward-slash-normalised working directory.
package categories

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// cmdRule is one (category, regex) entry in the fixed command taxonomy.
type cmdRule struct {
	category model.CommandCategory
	pattern  string
	re       *regexp.Regexp
}

// cmdRuleSource is the ordered, first-match-wins command classification
// table. Order matters: more specific categories are listed ahead of more
// general ones (e.g. dev_server ahead of shell).
var cmdRuleSource = []cmdRule{
	{category: model.CmdTest, pattern: `\b(jest|pytest|go test|mocha|vitest|rspec|phpunit|cargo test|ctest|tox)\b`},
	{category: model.CmdDevServer, pattern: `\b(webpack-dev-server|vite|next dev|npm run dev|yarn dev|react-scripts start|nodemon)\b`},
	{category: model.CmdAgent, pattern: `\b(claude|copilot|aider|cursor-agent|codex)\b`},
	{category: model.CmdDatabase, pattern: `\b(postgres|mysqld|mongod|redis-server|sqlite3|cockroach)\b`},
	{category: model.CmdVCS, pattern: `\b(git|hg|svn|jj)\b`},
	{category: model.CmdPackageManager, pattern: `\b(npm|yarn|pnpm|pip|pip3|cargo|apt|apt-get|brew|go install|go get)\b`},
	{category: model.CmdContainer, pattern: `\b(docker|containerd|runc|podman|dockerd|kubelet|nerdctl)\b`},
	{category: model.CmdBuild, pattern: `\b(make|cmake|ninja|bazel|gradle|mvn|webpack|esbuild|tsc|go build|cargo build)\b`},
	{category: model.CmdEditor, pattern: `\b(vim|nvim|emacs|code|subl|nano|helix)\b`},
	{category: model.CmdServer, pattern: `\b(nginx|httpd|caddy|envoy|traefik|gunicorn|uvicorn|puma)\b`},
	{category: model.CmdDaemon, pattern: `\b(systemd|cron|crond|dbus-daemon|sshd|syslogd|rsyslogd)\b`},
	{category: model.CmdShell, pattern: `\b(bash|zsh|fish|sh|tcsh|ksh|dash)\b`},
}

// cwdRule is one (category, regex) entry in the working-directory taxonomy.
type cwdRule struct {
	category model.CwdCategory
	pattern  string
	re       *regexp.Regexp
}

// cwdRuleSource is the ordered CWD classification table. Home-relative
// patterns are ordered project -> appdata -> home so the general home
// pattern acts as a fallback, per §4.1.
var cwdRuleSource = []cwdRule{
	{category: model.CwdTemp, pattern: `^/(tmp|var/tmp|private/tmp)(/|$)`},
	{category: model.CwdRuntime, pattern: `^/(run|var/run|proc|sys)(/|$)`},
	{category: model.CwdRoot, pattern: `^/$`},
	{category: model.CwdSystem, pattern: `^/(etc|usr|bin|sbin|lib|opt)(/|$)`},
}

// Matcher holds the compiled command and CWD rule tables for one host
// configuration (parametrised only by the caller's home directory).
type Matcher struct {
	logger   *zap.Logger
	cmdRules []cmdRule
	cwdRules []cwdRule
}

// NewMatcher compiles the fixed rule tables, escaping homeDir into the
// project/appdata/home CWD patterns. Malformed regexes are dropped and
// logged at Warn rather than causing a panic or a construction error.
func NewMatcher(homeDir string, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Matcher{logger: logger}

	for _, r := range cmdRuleSource {
		re, err := regexp.Compile(r.pattern)
		if err != nil {
			logger.Warn("dropping malformed command category regex",
				zap.String("category", r.category.String()), zap.Error(err))
			continue
		}
		r.re = re
		m.cmdRules = append(m.cmdRules, r)
	}

	homeEsc := regexp.QuoteMeta(normalizeSlashes(strings.TrimRight(homeDir, "/")))
	homeRules := []cwdRule{}
	if homeDir != "" {
		homeRules = append(homeRules,
			cwdRule{category: model.CwdProject, pattern: homeEsc + `/(projects|src|code|dev|workspace|repos)(/|$)`},
			cwdRule{category: model.CwdAppData, pattern: homeEsc + `/\.(config|cache|local|cargo|npm|cursor)(/|$)`},
			cwdRule{category: model.CwdHome, pattern: `^` + homeEsc + `(/|$)`},
		)
	}
	allCwd := append(append([]cwdRule{}, homeRules...), cwdRuleSource...)
	for _, r := range allCwd {
		re, err := regexp.Compile(r.pattern)
		if err != nil {
			logger.Warn("dropping malformed cwd category regex",
				zap.String("category", r.category.String()), zap.Error(err))
			continue
		}
		r.re = re
		m.cwdRules = append(m.cwdRules, r)
	}

	return m
}

func normalizeSlashes(p string) string {
	return path.Clean(strings.ReplaceAll(p, `\`, "/"))
}

// MatchCommand returns the first command category whose regex matches the
// lowercased command string, or CmdUnknown if none match or the command is
// empty.
func (m *Matcher) MatchCommand(cmdline string) model.CommandCategory {
	if strings.TrimSpace(cmdline) == "" {
		return model.CmdUnknown
	}
	lower := strings.ToLower(cmdline)
	for _, r := range m.cmdRules {
		if r.re.MatchString(lower) {
			return r.category
		}
	}
	return model.CmdUnknown
}

// MatchCwd returns the first CWD category whose regex matches the
// forward-slash-normalised path, or CwdUnknown if none match.
func (m *Matcher) MatchCwd(cwd string) model.CwdCategory {
	if cwd == "" {
		return model.CwdUnknown
	}
	norm := normalizeSlashes(cwd)
	for _, r := range m.cwdRules {
		if r.re.MatchString(norm) {
			return r.category
		}
	}
	return model.CwdUnknown
}

// baseName strips both '/' and '\' path segments from a command token,
// matching the cross-platform basename rule in §4.1.
func baseName(token string) string {
	token = strings.ReplaceAll(token, `\`, "/")
	if idx := strings.LastIndex(token, "/"); idx >= 0 {
		token = token[idx+1:]
	}
	return token
}

// extractFlags collects every '-'-prefixed token with any "=value" suffix
// stripped, then sorts and deduplicates them.
func extractFlags(tokens []string) []string {
	seen := map[string]struct{}{}
	var flags []string
	for _, tok := range tokens {
		if !strings.HasPrefix(tok, "-") {
			continue
		}
		name := tok
		if idx := strings.Index(name, "="); idx >= 0 {
			name = name[:idx]
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		flags = append(flags, name)
	}
	sort.Strings(flags)
	return flags
}

// cmdSignature computes "cmd:" + first-16-hex of
// SHA-256("<cat>:<basecmd>:<flags-joined-with-comma>").
func cmdSignature(cat model.CommandCategory, basecmd string, flags []string) string {
	payload := fmt.Sprintf("%s:%s:%s", cat.String(), basecmd, strings.Join(flags, ","))
	sum := sha256.Sum256([]byte(payload))
	return "cmd:" + hex.EncodeToString(sum[:8])
}

// subcommand returns the first non-flag token after the base command, if
// present.
func subcommand(tokens []string) string {
	for _, tok := range tokens[1:] {
		if !strings.HasPrefix(tok, "-") {
			return tok
		}
	}
	return ""
}

// Categorize runs the full command+CWD categorisation pipeline and builds
// the stable CategorizationOutput (§3).
func (m *Matcher) Categorize(cmdline, cwd string) model.CategorizationOutput {
	tokens := strings.Fields(cmdline)
	if len(tokens) == 0 {
		return model.CategorizationOutput{
			CmdCategory:   model.CmdUnknown,
			CwdCategory:   m.MatchCwd(cwd),
			CmdSignature:  cmdSignature(model.CmdUnknown, "unknown", nil),
			CmdShort:      fmt.Sprintf("unknown (%s)", model.CmdUnknown.String()),
			SchemaVersion: model.CategoriesSchemaVersion,
		}
	}

	cat := m.MatchCommand(cmdline)
	base := baseName(tokens[0])
	flags := extractFlags(tokens)

	short := base
	if cat.ShowsSubcommand() {
		if sub := subcommand(tokens); sub != "" {
			short = base + " " + sub
		}
	}
	short = fmt.Sprintf("%s (%s)", short, cat.String())

	return model.CategorizationOutput{
		CmdCategory:   cat,
		CwdCategory:   m.MatchCwd(cwd),
		CmdSignature:  cmdSignature(cat, base, flags),
		CmdShort:      short,
		SchemaVersion: model.CategoriesSchemaVersion,
	}
}
