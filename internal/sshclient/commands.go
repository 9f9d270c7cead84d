package sshclient

import (
	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"
)

// RemoteCommand is a program and its arguments, kept as separate words until
// it has to be handed to a remote shell.
type RemoteCommand struct {
	Program string
	Args    []string
}

// Command builds a RemoteCommand from words.
func Command(words ...string) (RemoteCommand, error) {
	if len(words) == 0 || words[0] == "" {
		return RemoteCommand{}, errors.NotValidf("empty remote command")
	}
	return RemoteCommand{Program: words[0], Args: append([]string(nil), words[1:]...)}, nil
}

// Words returns the program followed by its arguments.
func (c RemoteCommand) Words() []string {
	return append([]string{c.Program}, c.Args...)
}

// String quotes every word so the remote shell sees them unchanged.
func (c RemoteCommand) String() string {
	return shellquote.Join(c.Words()...)
}

func CmdTrue() RemoteCommand { return RemoteCommand{Program: "true"} }
func CmdWall() RemoteCommand { return RemoteCommand{Program: "wall"} }
