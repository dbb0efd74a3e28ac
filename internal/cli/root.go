// Package cli implements the mehelper command line: local triage
// assessments with an on-disk history.
package cli

import (
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mehelper/internal/scan"
	"mehelper/internal/triage"
)

// LocalPatientID identifies the single user of a local history.
var LocalPatientID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("mehelper.local"))

// App carries what the commands need. Open completes d with a repository and
// any optional clients, and is called once per command that touches the
// history.
type App struct {
	Tables triage.Tables
	Open   func(d scan.Dependencies) (scan.Service, io.Closer, error)
}

// NewRootCommand builds the command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "mehelper",
		Short: "Symptom triage and first-aid guidance",
		Long: `mehelper classifies self-reported symptoms into a risk level and prints
first-aid guidance, danger signs and a vital-signs check. It is not a
medical diagnosis.`,
		SilenceUsage: true,
	}

	root.AddCommand(newAssessCommand(app))
	root.AddCommand(newVitalsCommand())
	root.AddCommand(newHistoryCommand(app))
	root.AddCommand(newTablesCommand(app))
	return root
}

func (a *App) open() (scan.Service, io.Closer, error) {
	return a.openWith(nil)
}

// openWith opens the service with c as the local classifier; nil keeps the
// default.
func (a *App) openWith(c triage.Classifier) (scan.Service, io.Closer, error) {
	return a.Open(scan.Dependencies{Tables: a.Tables, Classifier: c})
}
