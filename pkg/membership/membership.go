// Package membership tracks users and channels across the network.
//
// The routing core only reads from it: it resolves nicknames for identifier
// translation and asks which servers host members of a channel.
package membership

import "strings"

// User is a client connected somewhere on the network.
type User struct {
    UUID   string `json:"uuid"`
    Nick   string `json:"nick"`
    Server string `json:"server"` // home server id
}

// Member is a user's presence in a channel together with its rank.
type Member struct {
    User
    Rank int `json:"rank"`
}

// Channel is a copy of a channel and its members, ordered by UUID.
type Channel struct {
    Name    string   `json:"name"`
    Members []Member `json:"members"`
}

// Prefix is a status character that addresses channel members of at least
// Rank, as in "@#chat" for operators.
type Prefix struct {
    Char byte
    Rank int
}

// DefaultPrefixes are the status prefixes known to a stock server.
var DefaultPrefixes = []Prefix{
    {'~', 50000},
    {'&', 40000},
    {'@', 30000},
    {'%', 20000},
    {'+', 10000},
}

// ChannelMarker starts every channel name.
const ChannelMarker = '#'

// ServerMaskMarker starts a network-wide server mask target such as "$*".
const ServerMaskMarker = '$'

// IsChannel reports whether token names a channel.
func IsChannel(token string) bool { return token != "" && token[0] == ChannelMarker }

// IsServerMask reports whether token is a server mask.
func IsServerMask(token string) bool { return strings.HasPrefix(token, string(ServerMaskMarker)) }

// Lookup is the read side of the directory used while routing.
type Lookup interface {
    FindNick(nick string) (User, bool)
    FindUUID(uuid string) (User, bool)
    FindChannel(name string) (Channel, bool)
    PrefixRank(c byte) (int, bool)
    UUIDForNick(nick string) (string, bool)
    NickForUUID(uuid string) (string, bool)
}
