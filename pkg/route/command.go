package route

import (
    "fmt"
    "sort"
    "strings"

    "github.com/amirimatin/go-spantree/pkg/translate"
)

// ModuleFlag marks properties of the module that declares a command.
type ModuleFlag uint32

const (
    // FlagCommon marks modules that every server on the network is expected
    // to load, so their commands are understood everywhere.
    FlagCommon ModuleFlag = 1 << iota
    // FlagCore marks commands built into the daemon.
    FlagCore
)

// Module identifies the component that declared a command.
type Module struct {
    Name  string
    Flags ModuleFlag
}

// NetworkSafe reports whether commands from m may be routed to any peer.
func (m *Module) NetworkSafe() bool { return m != nil && m.Flags&(FlagCommon|FlagCore) != 0 }

func (m *Module) String() string {
    if m == nil { return "<none>" }
    return m.Name
}

// Command is the contract every routable command implements.
type Command interface {
    Name() string
    Creator() *Module
    Translation() []translate.Rule
    Routing(actor string, params []string) Descriptor
}

// Result is the outcome of executing a command.
type Result int

const (
    Success Result = iota
    Failure
    Invalid
)

func (r Result) String() string {
    switch r {
    case Success:
        return "success"
    case Failure:
        return "failure"
    case Invalid:
        return "invalid"
    default:
        return "unknown"
    }
}

// Handler executes a command received from a peer before it is propagated.
type Handler interface {
    Handle(actor string, params []string) Result
}

// Definition is a table-driven Command. The zero Route makes the command
// LocalOnly; a nil Exec accepts every invocation.
type Definition struct {
    Verb    string
    Module  *Module
    Rules   []translate.Rule
    Route   func(actor string, params []string) Descriptor
    Exec    func(actor string, params []string) Result
    Encoder translate.ParameterEncoder
}

func (d *Definition) Name() string                  { return strings.ToUpper(d.Verb) }
func (d *Definition) Creator() *Module              { return d.Module }
func (d *Definition) Translation() []translate.Rule { return d.Rules }

func (d *Definition) Routing(actor string, params []string) Descriptor {
    if d.Route == nil { return LocalOnly() }
    return d.Route(actor, params)
}

func (d *Definition) Handle(actor string, params []string) Result {
    if d.Exec == nil { return Success }
    return d.Exec(actor, params)
}

// EncodeParameter delegates Custom positions to the definition's Encoder.
func (d *Definition) EncodeParameter(param string, index int, dir translate.Direction) string {
    if d.Encoder == nil { return param }
    return d.Encoder.EncodeParameter(param, index, dir)
}

// Table maps command names, compared case-insensitively, to commands.
type Table struct {
    cmds map[string]Command
}

func NewTable() *Table { return &Table{cmds: make(map[string]Command)} }

// Register adds cmd, failing if the name is taken.
func (t *Table) Register(cmd Command) error {
    if cmd == nil || cmd.Name() == "" { return ErrInvalidCommand }
    key := strings.ToUpper(cmd.Name())
    if _, ok := t.cmds[key]; ok { return fmt.Errorf("%w: %s", ErrDuplicateCommand, key) }
    t.cmds[key] = cmd
    return nil
}

func (t *Table) Lookup(name string) (Command, bool) {
    c, ok := t.cmds[strings.ToUpper(name)]
    return c, ok
}

// Names returns the registered command names in sorted order.
func (t *Table) Names() []string {
    out := make([]string, 0, len(t.cmds))
    for k := range t.cmds { out = append(out, k) }
    sort.Strings(out)
    return out
}

var (
    _ Command                    = (*Definition)(nil)
    _ Handler                    = (*Definition)(nil)
    _ translate.ParameterEncoder = (*Definition)(nil)
)
