package termui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/ehr/fieldtriage/internal/domain/assessment"
)

// ErrAborted is returned when the operator dismisses the prompt.
var ErrAborted = errors.New("arbitration aborted")

// Arbiter asks the operator to settle a conflicted decision.
type Arbiter interface {
	Choose(d assessment.Decision) (assessment.Resolution, error)
}

// ArbiterFunc adapts a function to Arbiter.
type ArbiterFunc func(d assessment.Decision) (assessment.Resolution, error)

func (f ArbiterFunc) Choose(d assessment.Decision) (assessment.Resolution, error) { return f(d) }

// HuhArbiter prompts on the terminal with the suggested choice preselected.
type HuhArbiter struct {
	Accessible bool
}

func (a HuhArbiter) Choose(d assessment.Decision) (assessment.Resolution, error) {
	choice := d.Hint
	sel := huh.NewSelect[assessment.Resolution]().
		Title(fmt.Sprintf("Resolve %s (%d field(s) differ)", d.Incoming.PatientID, len(d.Changes))).
		Description("Suggested: " + hintText(d.Hint)).
		Options(
			huh.NewOption("Adopt incoming record", assessment.AdoptIncoming),
			huh.NewOption("Keep local record", assessment.KeepLocal),
		).
		Value(&choice)

	form := huh.NewForm(huh.NewGroup(sel)).WithAccessible(a.Accessible)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("arbitration prompt: %w", err)
	}
	return choice, nil
}

// Settle resolves d through arb when it is conflicted and returns it
// unchanged otherwise.
func Settle(d assessment.Decision, arb Arbiter) (assessment.Decision, error) {
	if d.Kind != assessment.DecisionConflicted {
		return d, nil
	}
	choice, err := arb.Choose(d)
	if err != nil {
		return d, err
	}
	return d.Resolve(choice)
}
