package navigation

import (
	"fmt"
	"sort"
	"strings"
)

// Command is what a key press asks the controller to do.
type Command string

const (
	CmdNext      Command = "next"
	CmdPrevious  Command = "previous"
	CmdPrimary   Command = "primary"
	CmdSecondary Command = "secondary"
	CmdUndo      Command = "undo"
)

var commands = map[Command]bool{
	CmdNext: true, CmdPrevious: true, CmdPrimary: true, CmdSecondary: true, CmdUndo: true,
}

// Keymap maps key names, as reported by the terminal front end ("j",
// "down", "enter"), to commands.
type Keymap map[string]Command

// DefaultKeymap returns the standard bindings.
func DefaultKeymap() Keymap {
	return Keymap{
		"j": CmdNext, "down": CmdNext, "right": CmdNext,
		"k": CmdPrevious, "up": CmdPrevious, "left": CmdPrevious,
		"a": CmdPrimary, "enter": CmdPrimary,
		"d": CmdSecondary, "x": CmdSecondary,
		"u": CmdUndo,
	}
}

// ParseKeymap layers overrides of the form key -> command name on top of
// the default bindings. An empty command name unbinds the key.
func ParseKeymap(overrides map[string]string) (Keymap, error) {
	km := DefaultKeymap()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := strings.ToLower(strings.TrimSpace(overrides[k]))
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, fmt.Errorf("keymap: empty key for %q", name)
		}
		if name == "" {
			delete(km, key)
			continue
		}
		cmd := Command(name)
		if !commands[cmd] {
			return nil, fmt.Errorf("keymap: unknown command %q for key %q", name, key)
		}
		km[key] = cmd
	}
	return km, nil
}

// Keys lists the keys bound to cmd in sorted order.
func (km Keymap) Keys(cmd Command) []string {
	var out []string
	for k, c := range km {
		if c == cmd {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
