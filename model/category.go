package model

// CategoriesSchemaVersion is the versioned taxonomy identifier carried on
// every CategorizationOutput so that stored/replayed categorizations can be
// checked against the taxonomy that produced them.
const CategoriesSchemaVersion = "1.0.0"

// CommandCategory is the closed set of command taxonomies a process's
// argv[0]/cmdline can fall into.
type CommandCategory int

const (
	CmdTest CommandCategory = iota
	CmdDevServer
	CmdAgent
	CmdServer
	CmdDaemon
	CmdBuild
	CmdEditor
	CmdShell
	CmdDatabase
	CmdVCS
	CmdPackageManager
	CmdContainer
	CmdUnknown
)

var cmdCategoryOrder = [...]CommandCategory{
	CmdTest, CmdDevServer, CmdAgent, CmdServer, CmdDaemon, CmdBuild, CmdEditor,
	CmdShell, CmdDatabase, CmdVCS, CmdPackageManager, CmdContainer, CmdUnknown,
}

// NumCommandCategories is the size of the closed command-category set (13).
const NumCommandCategories = len(cmdCategoryOrder)

// AllCommandCategories returns all categories in stable index order.
func AllCommandCategories() []CommandCategory {
	out := make([]CommandCategory, len(cmdCategoryOrder))
	copy(out, cmdCategoryOrder[:])
	return out
}

// Index returns the stable Dirichlet-parameter index for this category.
func (c CommandCategory) Index() int { return int(c) }

// CommandCategoryFromIndex maps an index back to a category, clamping to
// CmdUnknown on out-of-range input.
func CommandCategoryFromIndex(idx int) CommandCategory {
	if idx < 0 || idx >= NumCommandCategories {
		return CmdUnknown
	}
	return cmdCategoryOrder[idx]
}

// String returns the lowercase snake_case category name.
func (c CommandCategory) String() string {
	switch c {
	case CmdTest:
		return "test"
	case CmdDevServer:
		return "dev_server"
	case CmdAgent:
		return "agent"
	case CmdServer:
		return "server"
	case CmdDaemon:
		return "daemon"
	case CmdBuild:
		return "build"
	case CmdEditor:
		return "editor"
	case CmdShell:
		return "shell"
	case CmdDatabase:
		return "database"
	case CmdVCS:
		return "vcs"
	case CmdPackageManager:
		return "package_manager"
	case CmdContainer:
		return "container"
	default:
		return "unknown"
	}
}

func (c CommandCategory) MarshalJSON() ([]byte, error) { return []byte(`"` + c.String() + `"`), nil }

func (c *CommandCategory) UnmarshalJSON(data []byte) error {
	s := trimQuotes(string(data))
	for _, cand := range cmdCategoryOrder {
		if cand.String() == s {
			*c = cand
			return nil
		}
	}
	*c = CmdUnknown
	return nil
}

// ShowsSubcommand reports whether cmd_short should include a detected
// subcommand for this category (dev_server, test, build, vcs, container,
// package_manager per §4.1).
func (c CommandCategory) ShowsSubcommand() bool {
	switch c {
	case CmdDevServer, CmdTest, CmdBuild, CmdVCS, CmdContainer, CmdPackageManager:
		return true
	default:
		return false
	}
}

// CwdCategory is the closed set of working-directory taxonomies.
type CwdCategory int

const (
	CwdProject CwdCategory = iota
	CwdSystem
	CwdTemp
	CwdHome
	CwdAppData
	CwdRuntime
	CwdRoot
	CwdUnknown
)

var cwdCategoryOrder = [...]CwdCategory{
	CwdProject, CwdSystem, CwdTemp, CwdHome, CwdAppData, CwdRuntime, CwdRoot, CwdUnknown,
}

// NumCwdCategories is the size of the closed CWD-category set (8).
const NumCwdCategories = len(cwdCategoryOrder)

// AllCwdCategories returns all CWD categories in stable index order.
func AllCwdCategories() []CwdCategory {
	out := make([]CwdCategory, len(cwdCategoryOrder))
	copy(out, cwdCategoryOrder[:])
	return out
}

func (c CwdCategory) Index() int { return int(c) }

func CwdCategoryFromIndex(idx int) CwdCategory {
	if idx < 0 || idx >= NumCwdCategories {
		return CwdUnknown
	}
	return cwdCategoryOrder[idx]
}

func (c CwdCategory) String() string {
	switch c {
	case CwdProject:
		return "project"
	case CwdSystem:
		return "system"
	case CwdTemp:
		return "temp"
	case CwdHome:
		return "home"
	case CwdAppData:
		return "appdata"
	case CwdRuntime:
		return "runtime"
	case CwdRoot:
		return "root"
	default:
		return "unknown"
	}
}

func (c CwdCategory) MarshalJSON() ([]byte, error) { return []byte(`"` + c.String() + `"`), nil }

func (c *CwdCategory) UnmarshalJSON(data []byte) error {
	s := trimQuotes(string(data))
	for _, cand := range cwdCategoryOrder {
		if cand.String() == s {
			*c = cand
			return nil
		}
	}
	*c = CwdUnknown
	return nil
}

// CategorizationOutput is the stable, versioned result of categorizing one
// process's command and working directory.
type CategorizationOutput struct {
	CmdCategory   CommandCategory `json:"cmd_category"`
	CwdCategory   CwdCategory     `json:"cwd_category"`
	CmdSignature  string          `json:"cmd_signature"`
	CmdShort      string          `json:"cmd_short"`
	SchemaVersion string          `json:"schema_version"`
}
