package bot

import (
	"context"
	"errors"
	"testing"

	"warden/internal/config"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, *Invocation) error { return nil }

func newTestDispatcher(mode config.OperationalMode) *Dispatcher {
	d := NewDispatcher("-", "dev-role", mode)
	d.Register(&Command{Name: "warn", Usage: "warn <user> [reason]", Permission: discordgo.PermissionKickMembers, Run: noop})
	d.Register(&Command{Name: "modhelp", Usage: "modhelp", Run: noop})
	d.Register(&Command{Name: "lock", Usage: "lock", DevOnly: true, Run: noop})
	return d
}

func TestResolve(t *testing.T) {
	d := newTestDispatcher(config.ModeUnlocked)

	cmd, args, text, ok := d.Resolve("-WARN <@1>  spamming links")
	require.True(t, ok)
	assert.Equal(t, "warn", cmd.Name)
	assert.Equal(t, []string{"<@1>", "spamming", "links"}, args)
	assert.Equal(t, "<@1>  spamming links", text)

	_, _, _, ok = d.Resolve("warn <@1>")
	assert.False(t, ok)
	_, _, _, ok = d.Resolve("-unknown")
	assert.False(t, ok)
	_, _, _, ok = d.Resolve("-")
	assert.False(t, ok)
}

func TestAuthorizePermissions(t *testing.T) {
	d := newTestDispatcher(config.ModeUnlocked)
	warn, _, _, _ := d.Resolve("-warn")

	var perr *permissionError
	err := d.Authorize(warn, &Invocation{})
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, err.Error(), "Kick Members")

	assert.NoError(t, d.Authorize(warn, &Invocation{Perms: discordgo.PermissionKickMembers}))
	assert.NoError(t, d.Authorize(warn, &Invocation{Perms: discordgo.PermissionAdministrator}))

	help, _, _, _ := d.Resolve("-modhelp")
	assert.NoError(t, d.Authorize(help, &Invocation{}))
}

func TestAuthorizeDevOnly(t *testing.T) {
	d := newTestDispatcher(config.ModeUnlocked)
	lock, _, _, _ := d.Resolve("-lock")

	assert.ErrorIs(t, d.Authorize(lock, &Invocation{Perms: discordgo.PermissionAdministrator}), errDevOnly)
	assert.NoError(t, d.Authorize(lock, &Invocation{Roles: []string{"dev-role"}}))
}

func TestLockedModeAllowsOnlyDevelopers(t *testing.T) {
	d := newTestDispatcher(config.ModeUnlocked)
	help, _, _, _ := d.Resolve("-modhelp")

	d.SetMode(config.ModeLocked)
	assert.Equal(t, config.ModeLocked, d.Mode())
	assert.ErrorIs(t, d.Authorize(help, &Invocation{Perms: discordgo.PermissionAdministrator}), errLocked)
	assert.NoError(t, d.Authorize(help, &Invocation{Roles: []string{"other", "dev-role"}}))

	d.SetMode(config.ModeUnlocked)
	assert.NoError(t, d.Authorize(help, &Invocation{}))
}

func TestNoDevRoleConfigured(t *testing.T) {
	d := NewDispatcher("-", "", config.ModeLocked)
	d.Register(&Command{Name: "status", DevOnly: true, Run: noop})
	status, _, _, _ := d.Resolve("-status")

	assert.ErrorIs(t, d.Authorize(status, &Invocation{Roles: []string{""}}), errLocked)
}

func TestCommandsSorted(t *testing.T) {
	d := newTestDispatcher(config.ModeUnlocked)
	var names []string
	for _, cmd := range d.Commands() {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"lock", "modhelp", "warn"}, names)
}

func TestInvocationRest(t *testing.T) {
	inv := &Invocation{Text: "<@1> 10 being rude", Args: []string{"<@1>", "10", "being", "rude"}}
	assert.Equal(t, "being rude", inv.rest(2, "No reason provided"))
	assert.Equal(t, "No reason provided", inv.rest(4, "No reason provided"))
	assert.Equal(t, "10", inv.arg(1))
	assert.Equal(t, "", inv.arg(9))
}
