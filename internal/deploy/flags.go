// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package deploy

import (
	"errors"
	"fmt"
	"strings"
)

// Flag is a single deploy option.
type Flag uint8

// Available flags.
const (
	Build      Flag = 1 << iota // b: build the project
	Run                         // r: run the project
	Controller                  // c: deploy controller sources
	KBM                         // k: deploy keyboard/mouse sources
)

// HelpOption is the only multi-character option recognized.
const HelpOption = "--help"

// options maps every recognized option character to its flag. Characters
// not in this table are invalid.
var options = map[rune]Flag{
	'b': Build,
	'r': Run,
	'c': Controller,
	'k': KBM,
}

func flagFor(ch rune) (f Flag, ok bool) {
	f, ok = options[ch]
	return f, ok
}

// Flags is a set of flags requested for one invocation.
type Flags uint8

// Has reports whether f is in the set.
func (fs Flags) Has(f Flag) bool { return fs&Flags(f) != 0 }

// With returns the set with f added.
func (fs Flags) With(f Flag) Flags { return fs | Flags(f) }

func (fs Flags) String() string {
	var sb strings.Builder
	for _, f := range []struct {
		flag Flag
		ch   byte
	}{{Build, 'b'}, {Run, 'r'}, {Controller, 'c'}, {KBM, 'k'}} {
		if fs.Has(f.flag) {
			sb.WriteByte(f.ch)
		}
	}
	return sb.String()
}

// Possible errors, used in tests.
var (
	ErrHelp            = errors.New("help requested")
	ErrNoOptions       = errors.New("no options provided")
	ErrAmbiguousSource = errors.New("cannot source both 'controller' and 'kbm'")
)

// InvalidOptionError is returned by [Parse] for an unrecognized option
// character.
type InvalidOptionError struct {
	Option rune
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid option (%c)", e.Option)
}

// Parse parses the command-line arguments (without the program name) into a
// set of flags. Arguments are concatenated, so "b", "rc" is the same as "brc".
//
// Parse returns [ErrHelp] if any argument is [HelpOption], [ErrNoOptions] if
// there are no option characters at all, and an [*InvalidOptionError] for the
// first unrecognized character.
func Parse(args []string) (Flags, error) {
	for _, arg := range args {
		if arg == HelpOption {
			return 0, ErrHelp
		}
	}

	joined := strings.Join(args, "")
	if joined == "" {
		return 0, ErrNoOptions
	}

	var fs Flags
	for _, ch := range joined {
		f, ok := flagFor(ch)
		if !ok {
			return 0, &InvalidOptionError{Option: ch}
		}
		fs = fs.With(f)
	}
	return fs, nil
}

// Validate rejects flag combinations that can't be executed.
func (fs Flags) Validate() error {
	if fs.Has(Controller) && fs.Has(KBM) {
		return ErrAmbiguousSource
	}
	return nil
}

// Source returns the name of the source tree selected by the flags, or an
// empty string if no source replacement was requested. Flags must be
// validated first.
func (fs Flags) Source() string {
	switch {
	case fs.Has(Controller):
		return ControllerSource
	case fs.Has(KBM):
		return KBMSource
	}
	return ""
}

// Names of source trees inside the base directory.
const (
	ControllerSource = "controller"
	KBMSource        = "kbm"
)
