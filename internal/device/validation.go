package device

import (
	"fmt"
	"strings"
)

// Validation constants.
const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
	maxFieldLength       = 100

	// Limits on nested command data.
	maxCommands          = 50
	maxParameters        = 20
	maxCommandTextLength = 1024
)

// ValidateRequest checks a create or update payload. An empty status is
// accepted and treated as OFF by the service.
func ValidateRequest(req *Request) error {
	if err := ValidateName(req.Name); err != nil {
		return err
	}
	if len(req.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidDevice, maxDescriptionLength)
	}
	if len(req.IndustryType) > maxFieldLength {
		return fmt.Errorf("%w: industry type exceeds %d characters", ErrInvalidDevice, maxFieldLength)
	}
	if len(req.Manufacturer) > maxFieldLength {
		return fmt.Errorf("%w: manufacturer exceeds %d characters", ErrInvalidDevice, maxFieldLength)
	}
	if req.Status != "" && !req.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(req.Status))
	}
	return ValidateCommands(req.Commands)
}

// ValidateName checks a device name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateCommands checks the command descriptions of a device.
func ValidateCommands(commands []CommandDescription) error {
	if len(commands) > maxCommands {
		return fmt.Errorf("%w: at most %d commands", ErrInvalidCommand, maxCommands)
	}

	seen := make(map[string]struct{}, len(commands))
	for i, c := range commands {
		op := strings.TrimSpace(c.Operation)
		if op == "" {
			return fmt.Errorf("%w: command %d has no operation", ErrInvalidCommand, i)
		}
		if _, dup := seen[op]; dup {
			return fmt.Errorf("%w: duplicate operation %q", ErrInvalidCommand, op)
		}
		seen[op] = struct{}{}

		if len(c.Command.Command) > maxCommandTextLength {
			return fmt.Errorf("%w: command %q is too long", ErrInvalidCommand, op)
		}
		if len(c.Command.Parameters) > maxParameters {
			return fmt.Errorf("%w: command %q has more than %d parameters", ErrInvalidCommand, op, maxParameters)
		}
		for _, p := range c.Command.Parameters {
			if strings.TrimSpace(p.Name) == "" {
				return fmt.Errorf("%w: command %q has an unnamed parameter", ErrInvalidCommand, op)
			}
		}
	}
	return nil
}
