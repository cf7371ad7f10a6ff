package chain

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/mpetrun5/drover/pkg/models"
)

// CommandValidator validates a completed phase by running a shell command in
// the project root with DROVER_PHASE set to the phase name. A non-zero exit
// is a validation miss.
type CommandValidator struct {
	Command string
	Dir     string
}

// Validate implements Validator.
func (v *CommandValidator) Validate(ctx context.Context, phase *models.Phase) error {
	if v.Command == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", v.Command)
	cmd.Dir = v.Dir
	cmd.Env = append(cmd.Environ(), "DROVER_PHASE="+phase.Name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("validation command %q: %w: %s", v.Command, err, string(out))
	}
	return nil
}
