package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"warden/internal/config"

	"github.com/bwmarrin/discordgo"
)

var (
	errLocked  = errors.New("the bot is locked, only developers may run commands")
	errDevOnly = errors.New("this command is restricted to developers")
)

// Command is one prefix command. Permission is the Discord permission bit
// required to run it; zero means anyone.
type Command struct {
	Name        string
	Usage       string
	Description string
	Permission  int64
	DevOnly     bool
	Run         func(ctx context.Context, inv *Invocation) error
}

// Invocation carries one parsed command message.
type Invocation struct {
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string
	Moderator string
	Roles     []string
	// Perms are the author's effective permissions in the channel.
	Perms int64
	Args  []string
	// Text is everything after the command name, spacing intact.
	Text string
}

func (inv *Invocation) arg(i int) string {
	if i < len(inv.Args) {
		return inv.Args[i]
	}
	return ""
}

// rest joins the arguments from index i on, or returns fallback when empty.
func (inv *Invocation) rest(i int, fallback string) string {
	if text := restAfter(inv.Text, i); text != "" {
		return text
	}
	return fallback
}

// usageError is shown to the invoker as the command's usage line.
type usageError struct {
	usage string
}

func (e *usageError) Error() string { return "Usage: `" + e.usage + "`" }

// noticeError is a message for the invoker that is not a failure of the bot.
type noticeError struct {
	msg string
}

func (e *noticeError) Error() string { return e.msg }

func notice(format string, args ...any) error {
	return &noticeError{msg: fmt.Sprintf(format, args...)}
}

// permissionError names the permission the invoker is missing.
type permissionError struct {
	name string
}

func (e *permissionError) Error() string {
	return "missing " + e.name + " permission"
}

// Dispatcher routes prefixed messages to commands and holds the operational
// mode shared by every command.
type Dispatcher struct {
	prefix    string
	devRoleID string

	mu       sync.RWMutex
	mode     config.OperationalMode
	commands map[string]*Command
}

func NewDispatcher(prefix, devRoleID string, mode config.OperationalMode) *Dispatcher {
	if mode != config.ModeLocked {
		mode = config.ModeUnlocked
	}
	return &Dispatcher{
		prefix:    prefix,
		devRoleID: devRoleID,
		mode:      mode,
		commands:  make(map[string]*Command),
	}
}

func (d *Dispatcher) Register(cmd *Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[strings.ToLower(cmd.Name)] = cmd
}

func (d *Dispatcher) Prefix() string { return d.prefix }

func (d *Dispatcher) Mode() config.OperationalMode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

func (d *Dispatcher) SetMode(mode config.OperationalMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
}

// Commands returns the registered commands sorted by name.
func (d *Dispatcher) Commands() []*Command {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Command, 0, len(d.commands))
	for _, cmd := range d.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve splits a message into its command and arguments. ok is false for
// messages without the prefix or naming an unknown command.
func (d *Dispatcher) Resolve(content string) (cmd *Command, args []string, text string, ok bool) {
	if d.prefix == "" || !strings.HasPrefix(content, d.prefix) {
		return nil, nil, "", false
	}
	body := strings.TrimSpace(content[len(d.prefix):])
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return nil, nil, "", false
	}

	d.mu.RLock()
	cmd, ok = d.commands[strings.ToLower(fields[0])]
	d.mu.RUnlock()
	if !ok {
		return nil, nil, "", false
	}
	return cmd, fields[1:], restAfter(body, 1), true
}

func (d *Dispatcher) isDev(roles []string) bool {
	if d.devRoleID == "" {
		return false
	}
	for _, role := range roles {
		if role == d.devRoleID {
			return true
		}
	}
	return false
}

// Authorize checks the mode, the dev role and the permission bit, in that
// order. Administrators pass every permission check.
func (d *Dispatcher) Authorize(cmd *Command, inv *Invocation) error {
	dev := d.isDev(inv.Roles)
	if d.Mode() == config.ModeLocked && !dev {
		return errLocked
	}
	if cmd.DevOnly {
		if !dev {
			return errDevOnly
		}
		return nil
	}
	if cmd.Permission == 0 || inv.Perms&discordgo.PermissionAdministrator != 0 {
		return nil
	}
	if inv.Perms&cmd.Permission == 0 {
		return &permissionError{name: permissionName(cmd.Permission)}
	}
	return nil
}

func permissionName(perm int64) string {
	switch perm {
	case discordgo.PermissionKickMembers:
		return "Kick Members"
	case discordgo.PermissionBanMembers:
		return "Ban Members"
	case discordgo.PermissionManageRoles:
		return "Manage Roles"
	case discordgo.PermissionManageServer:
		return "Manage Server"
	case discordgo.PermissionManageMessages:
		return "Manage Messages"
	default:
		return "required"
	}
}
