package core

import (
	"fmt"

	"stepcore/protocol"
)

// CommandHandler runs a decoded command. args holds one value per
// parameter of the command's format; signed parameters are sign extended.
type CommandHandler func(args []uint32)

// HandlerFlags modify how a command is dispatched
type HandlerFlags uint8

const (
	// HF_IN_SHUTDOWN commands still run while the kernel is shut down
	HF_IN_SHUTDOWN HandlerFlags = 1 << 0
)

// Command is a registered command or response. Responses have no handler.
type Command struct {
	ID      uint16
	Format  *protocol.MessageFormat
	Flags   HandlerFlags
	Handler CommandHandler
}

func (c *Command) Name() string { return c.Format.Name }

// CommandRegistry assigns message ids in registration order. Commands
// and responses share one id space.
type CommandRegistry struct {
	byID   []*Command
	byName map[string]*Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]*Command)}
}

func (r *CommandRegistry) add(name, params string, flags HandlerFlags, handler CommandHandler) *Command {
	if c, exists := r.byName[name]; exists {
		return c
	}
	format := name
	if params != "" {
		format = name + " " + params
	}
	mf, err := protocol.ParseFormat(format)
	if err != nil {
		panic(err.Error())
	}
	c := &Command{
		ID:      uint16(len(r.byID)),
		Format:  mf,
		Flags:   flags,
		Handler: handler,
	}
	r.byID = append(r.byID, c)
	r.byName[name] = c
	return c
}

// Register adds a host to MCU command. Registering a name twice returns
// the existing id.
func (r *CommandRegistry) Register(name, params string, flags HandlerFlags, handler CommandHandler) uint16 {
	return r.add(name, params, flags, handler).ID
}

// RegisterResponse adds an MCU to host message
func (r *CommandRegistry) RegisterResponse(name, params string) uint16 {
	return r.add(name, params, 0, nil).ID
}

// Lookup finds a message by id
func (r *CommandRegistry) Lookup(id uint16) (*Command, bool) {
	if int(id) >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// ByName finds a message by name
func (r *CommandRegistry) ByName(name string) (*Command, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Count returns the number of registered messages
func (r *CommandRegistry) Count() int {
	return len(r.byID)
}

// Messages returns every registered message in id order
func (r *CommandRegistry) Messages() []*Command {
	return r.byID
}

// Decode parses one encoded message (id followed by arguments), as sent
// by either side
func (r *CommandRegistry) Decode(payload []byte) (*Command, []uint32, []byte, error) {
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, nil, nil, err
	}
	c, ok := r.Lookup(uint16(id))
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: id %d", protocol.ErrUnknownCommand, id)
	}
	vals, buf, err := c.Format.Decode(&payload, nil)
	return c, vals, buf, err
}

// Dispatch decodes and runs one command from the front of *data. It has
// the shape of protocol.CommandHandler. Decode failures are returned;
// fatal conditions inside the handler shut the kernel down instead.
func (k *Kernel) Dispatch(cmdID uint16, data *[]byte) error {
	c, ok := k.cmds.Lookup(cmdID)
	if !ok || c.Handler == nil {
		return fmt.Errorf("%w: id %d", protocol.ErrUnknownCommand, cmdID)
	}
	args, _, err := c.Format.Decode(data, k.argBuf[:0])
	if err != nil {
		return err
	}
	k.argBuf = args
	if k.IsShutdown() && c.Flags&HF_IN_SHUTDOWN == 0 {
		k.reportShutdown()
		return nil
	}
	k.supervise(func() { c.Handler(args) })
	return nil
}

// sendf encodes a registered response and hands it to the platform
func (k *Kernel) sendf(name string, args ...uint32) {
	k.sendBuffer(name, nil, args...)
}

func (k *Kernel) sendBuffer(name string, buf []byte, args ...uint32) {
	c, ok := k.cmds.ByName(name)
	if !ok {
		panic("response not registered: " + name)
	}
	payload, err := c.Format.Encode(k.respBuf[:0], c.ID, args, buf)
	if err != nil {
		panic(err.Error())
	}
	k.respBuf = payload
	k.plat.SendPayload(payload)
}
