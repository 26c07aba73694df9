package product

import (
	"io"
	"testing"

	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/registrar"
)

func NewRegister() *cobra.Command {
	return newRegister()
}

func RegistrationFromFlags(cmd *cobra.Command) (registrar.Registration, error) {
	return registrationFromFlags(cmd)
}

// SetTerminal makes stdin look interactive or not for the duration of t.
func SetTerminal(t *testing.T, interactive bool) {
	t.Helper()

	previous := isTerminal
	isTerminal = func(io.Reader) bool { return interactive }
	t.Cleanup(func() { isTerminal = previous })
}
