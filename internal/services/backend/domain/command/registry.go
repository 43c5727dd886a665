package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/matchwarden/internal/services/backend/domain/playerstate"
)

var (
	// ErrTypeRequired indicates a missing command type.
	ErrTypeRequired = errors.New("command type is required")
	// ErrTypeUnknown indicates an unregistered command type.
	ErrTypeUnknown = errors.New("command type is not registered")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
	// ErrDecoderRequired indicates a definition without a decoder.
	ErrDecoderRequired = errors.New("command decoder is required")
)

// Type identifies the command type string.
type Type string

// Access identifies the caller privilege a command requires.
type Access string

const (
	// AccessPlayer commands may be issued by the owning player.
	AccessPlayer Access = "player"
	// AccessService commands require the shared service secret.
	AccessService Access = "service"
)

// Mode identifies whether ordering and version checks apply.
type Mode string

const (
	// ModeNormal commands must carry a fresh timestamp and a supported client version.
	ModeNormal Mode = "normal"
	// ModeSimulationOriginated commands skip ordering and version checks.
	ModeSimulationOriginated Mode = "simulation_originated"
)

// ExecContext is what a command sees while it runs under the player lock.
type ExecContext struct {
	PlayerID       string
	IdempotencyKey string
	State          *playerstate.View
	Now            func() time.Time
}

// Command is a decoded, executable command. Execute mutates only exec.State and
// returns the result fields sent back to the caller.
type Command interface {
	Execute(ctx context.Context, exec ExecContext) (json.RawMessage, error)
}

// Decoder builds a Command from its raw fields.
type Decoder func(json.RawMessage) (Command, error)

// Definition registers metadata for a command type.
type Definition struct {
	Type   Type
	Access Access
	Mode   Mode
	Decode Decoder
}

// Registry stores command definitions and decodes commands.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new command type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	switch def.Access {
	case AccessPlayer, AccessService:
		// allowed
	default:
		return fmt.Errorf("access must be player or service")
	}
	if def.Mode == "" {
		def.Mode = ModeNormal
	}
	switch def.Mode {
	case ModeNormal, ModeSimulationOriginated:
		// allowed
	default:
		return fmt.Errorf("mode must be normal or simulation_originated")
	}
	if def.Mode == ModeSimulationOriginated && def.Access != AccessService {
		return fmt.Errorf("simulation-originated command %s must require service access", def.Type)
	}
	if def.Decode == nil {
		return ErrDecoderRequired
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("command type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// Decode looks up cmdType and builds its command from raw fields.
func (r *Registry) Decode(cmdType Type, raw json.RawMessage) (Command, Definition, error) {
	cmdType = Type(strings.TrimSpace(string(cmdType)))
	if cmdType == "" {
		return nil, Definition{}, ErrTypeRequired
	}
	def, ok := r.Definition(cmdType)
	if !ok {
		return nil, Definition{}, fmt.Errorf("%w: %s", ErrTypeUnknown, cmdType)
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if !json.Valid(raw) {
		return nil, Definition{}, ErrPayloadInvalid
	}
	cmd, err := def.Decode(raw)
	if err != nil {
		return nil, Definition{}, fmt.Errorf("decode %s: %w", cmdType, err)
	}
	return cmd, def, nil
}

// Definition returns the command definition for a given type.
func (r *Registry) Definition(cmdType Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	cmdType = Type(strings.TrimSpace(string(cmdType)))
	if cmdType == "" {
		return Definition{}, false
	}
	def, ok := r.definitions[cmdType]
	return def, ok
}

// ListDefinitions returns a stable, sorted snapshot of registered definitions.
func (r *Registry) ListDefinitions() []Definition {
	if r == nil || len(r.definitions) == 0 {
		return nil
	}
	definitions := make([]Definition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		definitions = append(definitions, definition)
	}
	sort.Slice(definitions, func(i, j int) bool {
		return string(definitions[i].Type) < string(definitions[j].Type)
	})
	return definitions
}

// DecodeJSON returns a Decoder that unmarshals fields into a fresh T, rejecting
// unknown fields, then runs validate when T implements it.
func DecodeJSON[T any, PT interface {
	*T
	Command
}]() Decoder {
	return func(raw json.RawMessage) (Command, error) {
		var cmd T
		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cmd); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
		}
		ptr := PT(&cmd)
		if v, ok := any(ptr).(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}
		return ptr, nil
	}
}
