// Package route declares how a command propagates through the server tree.
//
// Every command computes a Descriptor for each execution. The propagation
// engine inspects only the descriptor's class, never the command's meaning,
// so new commands never require engine changes.
package route

import "fmt"

// Class is the propagation category a command declares for one execution.
type Class int

const (
    ClassLocalOnly Class = iota
    ClassBroadcast
    ClassUnicast
    ClassOptionalBroadcast
    ClassOptionalUnicast
    ClassMessage
)

func (c Class) String() string {
    switch c {
    case ClassLocalOnly:
        return "local_only"
    case ClassBroadcast:
        return "broadcast"
    case ClassUnicast:
        return "unicast"
    case ClassOptionalBroadcast:
        return "optional_broadcast"
    case ClassOptionalUnicast:
        return "optional_unicast"
    case ClassMessage:
        return "message"
    default:
        return fmt.Sprintf("class(%d)", int(c))
    }
}

// Optional reports whether commands of this class travel encapsulated.
func (c Class) Optional() bool { return c == ClassOptionalBroadcast || c == ClassOptionalUnicast }

// Descriptor is produced fresh per command execution and consumed immediately.
// Target holds the server name or id for the unicast classes and the
// destination token for ClassMessage.
type Descriptor struct {
    Class  Class
    Target string
}

func LocalOnly() Descriptor                    { return Descriptor{Class: ClassLocalOnly} }
func Broadcast() Descriptor                    { return Descriptor{Class: ClassBroadcast} }
func Unicast(target string) Descriptor         { return Descriptor{Class: ClassUnicast, Target: target} }
func OptionalBroadcast() Descriptor            { return Descriptor{Class: ClassOptionalBroadcast} }
func OptionalUnicast(target string) Descriptor { return Descriptor{Class: ClassOptionalUnicast, Target: target} }
func Message(dest string) Descriptor           { return Descriptor{Class: ClassMessage, Target: dest} }

func (d Descriptor) String() string {
    if d.Target == "" { return d.Class.String() }
    return d.Class.String() + "(" + d.Target + ")"
}
