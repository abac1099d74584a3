package membership

import (
    "fmt"
    "sort"
    "sync"

    "github.com/amirimatin/go-spantree/pkg/casemap"
)

// Directory is an in-memory Lookup with the mutations peers announce.
type Directory struct {
    mu       sync.RWMutex
    users    map[string]User
    nicks    map[string]string            // folded nick -> uuid
    channels map[string]map[string]int    // folded name -> uuid -> rank
    names    map[string]string            // folded name -> display name
    prefixes map[byte]int
}

// NewDirectory creates an empty directory. DefaultPrefixes apply when none
// are given.
func NewDirectory(prefixes ...Prefix) *Directory {
    if len(prefixes) == 0 { prefixes = DefaultPrefixes }
    d := &Directory{
        users:    make(map[string]User),
        nicks:    make(map[string]string),
        channels: make(map[string]map[string]int),
        names:    make(map[string]string),
        prefixes: make(map[byte]int, len(prefixes)),
    }
    for _, p := range prefixes { d.prefixes[p.Char] = p.Rank }
    return d
}

func (d *Directory) AddUser(u User) error {
    if u.UUID == "" || u.Nick == "" || u.Server == "" { return ErrInvalidUser }
    d.mu.Lock(); defer d.mu.Unlock()
    if _, ok := d.users[u.UUID]; ok { return fmt.Errorf("%w: %s", ErrDuplicateUser, u.UUID) }
    key := casemap.Fold(u.Nick)
    if _, ok := d.nicks[key]; ok { return fmt.Errorf("%w: %s", ErrNickInUse, u.Nick) }
    d.users[u.UUID] = u
    d.nicks[key] = u.UUID
    return nil
}

// RemoveUser forgets uuid and parts it from every channel.
func (d *Directory) RemoveUser(uuid string) error {
    d.mu.Lock(); defer d.mu.Unlock()
    if _, ok := d.users[uuid]; !ok { return fmt.Errorf("%w: %s", ErrUnknownUser, uuid) }
    d.removeLocked(uuid)
    return nil
}

func (d *Directory) removeLocked(uuid string) {
    u := d.users[uuid]
    delete(d.users, uuid)
    delete(d.nicks, casemap.Fold(u.Nick))
    for key, members := range d.channels {
        delete(members, uuid)
        if len(members) == 0 {
            delete(d.channels, key)
            delete(d.names, key)
        }
    }
}

// RenameUser changes a user's nickname. A case-only change is allowed.
func (d *Directory) RenameUser(uuid, nick string) error {
    if nick == "" { return ErrInvalidUser }
    d.mu.Lock(); defer d.mu.Unlock()
    u, ok := d.users[uuid]
    if !ok { return fmt.Errorf("%w: %s", ErrUnknownUser, uuid) }
    key := casemap.Fold(nick)
    if owner, ok := d.nicks[key]; ok && owner != uuid { return fmt.Errorf("%w: %s", ErrNickInUse, nick) }
    delete(d.nicks, casemap.Fold(u.Nick))
    u.Nick = nick
    d.users[uuid] = u
    d.nicks[key] = uuid
    return nil
}

// Join adds uuid to channel with rank, creating the channel if needed. Joining
// again updates the rank.
func (d *Directory) Join(channel, uuid string, rank int) error {
    if !IsChannel(channel) { return fmt.Errorf("%w: %q", ErrInvalidChannel, channel) }
    d.mu.Lock(); defer d.mu.Unlock()
    if _, ok := d.users[uuid]; !ok { return fmt.Errorf("%w: %s", ErrUnknownUser, uuid) }
    key := casemap.Fold(channel)
    members, ok := d.channels[key]
    if !ok {
        members = make(map[string]int)
        d.channels[key] = members
        d.names[key] = channel
    }
    members[uuid] = rank
    return nil
}

// Part removes uuid from channel; the channel disappears with its last member.
func (d *Directory) Part(channel, uuid string) error {
    d.mu.Lock(); defer d.mu.Unlock()
    key := casemap.Fold(channel)
    members, ok := d.channels[key]
    if !ok { return fmt.Errorf("%w: %s", ErrNotOnChannel, channel) }
    if _, ok := members[uuid]; !ok { return fmt.Errorf("%w: %s", ErrNotOnChannel, channel) }
    delete(members, uuid)
    if len(members) == 0 {
        delete(d.channels, key)
        delete(d.names, key)
    }
    return nil
}

// RemoveServerUsers drops every user homed on one of serverIDs, as after a
// netsplit, and returns how many were removed.
func (d *Directory) RemoveServerUsers(serverIDs []string) int {
    if len(serverIDs) == 0 { return 0 }
    gone := make(map[string]struct{}, len(serverIDs))
    for _, id := range serverIDs { gone[id] = struct{}{} }
    d.mu.Lock(); defer d.mu.Unlock()
    n := 0
    for uuid, u := range d.users {
        if _, ok := gone[u.Server]; !ok { continue }
        d.removeLocked(uuid)
        n++
    }
    return n
}

func (d *Directory) FindNick(nick string) (User, bool) {
    d.mu.RLock(); defer d.mu.RUnlock()
    uuid, ok := d.nicks[casemap.Fold(nick)]
    if !ok { return User{}, false }
    return d.users[uuid], true
}

func (d *Directory) FindUUID(uuid string) (User, bool) {
    d.mu.RLock(); defer d.mu.RUnlock()
    u, ok := d.users[uuid]
    return u, ok
}

func (d *Directory) FindChannel(name string) (Channel, bool) {
    d.mu.RLock(); defer d.mu.RUnlock()
    key := casemap.Fold(name)
    members, ok := d.channels[key]
    if !ok { return Channel{}, false }
    ch := Channel{Name: d.names[key], Members: make([]Member, 0, len(members))}
    for uuid, rank := range members {
        ch.Members = append(ch.Members, Member{User: d.users[uuid], Rank: rank})
    }
    sort.Slice(ch.Members, func(i, j int) bool { return ch.Members[i].UUID < ch.Members[j].UUID })
    return ch, true
}

func (d *Directory) PrefixRank(c byte) (int, bool) {
    r, ok := d.prefixes[c]
    return r, ok
}

func (d *Directory) UUIDForNick(nick string) (string, bool) {
    u, ok := d.FindNick(nick)
    return u.UUID, ok
}

func (d *Directory) NickForUUID(uuid string) (string, bool) {
    u, ok := d.FindUUID(uuid)
    return u.Nick, ok
}

// Users returns every known user ordered by UUID.
func (d *Directory) Users() []User {
    d.mu.RLock()
    out := make([]User, 0, len(d.users))
    for _, u := range d.users { out = append(out, u) }
    d.mu.RUnlock()
    sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
    return out
}

// Channels returns a copy of every channel ordered by name.
func (d *Directory) Channels() []Channel {
    d.mu.RLock()
    keys := make([]string, 0, len(d.channels))
    for k := range d.channels { keys = append(keys, k) }
    d.mu.RUnlock()
    sort.Strings(keys)
    out := make([]Channel, 0, len(keys))
    for _, k := range keys {
        if ch, ok := d.FindChannel(k); ok { out = append(out, ch) }
    }
    return out
}

// Counts returns the number of known users and channels.
func (d *Directory) Counts() (users, channels int) {
    d.mu.RLock(); defer d.mu.RUnlock()
    return len(d.users), len(d.channels)
}

// Snapshot is a copy of the directory for status reporting.
type Snapshot struct {
    Version  int       `json:"version"`
    Users    []User    `json:"users"`
    Channels []Channel `json:"channels"`
}

// Snapshot copies every user ordered by UUID and every channel ordered by
// name.
func (d *Directory) Snapshot() Snapshot {
    return Snapshot{Version: 1, Users: d.Users(), Channels: d.Channels()}
}

var _ Lookup = (*Directory)(nil)
