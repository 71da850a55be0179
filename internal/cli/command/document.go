package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/docguard/internal/cli/output"
	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/core/integrity"
	"github.com/yndnr/docguard/internal/storage"
)

// DocumentSummary describes the stored document.
type DocumentSummary struct {
	Version    int       `json:"version" yaml:"version"`
	Clients    int       `json:"clients" yaml:"clients"`
	Projects   int       `json:"projects" yaml:"projects"`
	Tasks      int       `json:"tasks" yaml:"tasks"`
	LastSync   time.Time `json:"last_sync" yaml:"last_sync"`
	LastBackup time.Time `json:"last_backup" yaml:"last_backup"`
	Checksum   string    `json:"checksum" yaml:"checksum"`
	Backend    string    `json:"backend" yaml:"backend"`
}

func summarize(doc *domain.Document, backend string) DocumentSummary {
	return DocumentSummary{
		Version:    doc.Version,
		Clients:    len(doc.Clients),
		Projects:   len(doc.Projects),
		Tasks:      len(doc.Tasks),
		LastSync:   doc.Metadata.LastSync,
		LastBackup: doc.Metadata.LastBackup,
		Checksum:   doc.Metadata.Checksum,
		Backend:    backend,
	}
}

// ShowCommand loads the document (recovering if needed) and prints a summary.
func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Load the document and show a summary",
		Action: func(c *cli.Context) error {
			return withStore(c, func(e *env, s *storage.Store) error {
				doc, err := s.Load(c.Context)
				if errors.Is(err, domain.ErrNoDocument) {
					fmt.Fprintln(c.App.Writer, "no document stored")
					return nil
				}
				if err != nil {
					return err
				}
				return render(c, e, summarize(doc, s.BackendName()))
			})
		},
	}
}

// ImportCommand saves a JSON document from a file (or "-" for stdin).
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Validate a JSON document and store it",
		ArgsUsage: "FILE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("import requires exactly one FILE argument")
			}
			raw, err := readInput(c, c.Args().First())
			if err != nil {
				return err
			}
			doc, err := integrity.ValidateBytes(raw)
			if err != nil {
				return err
			}

			return withStore(c, func(e *env, s *storage.Store) error {
				if err := s.Save(doc); err != nil {
					return err
				}
				if err := s.Flush(c.Context); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "imported %d records\n", doc.RecordCount())
				return nil
			})
		},
	}
}

func readInput(c *cli.Context, path string) ([]byte, error) {
	if path == "-" {
		if c.App.Reader == nil {
			return io.ReadAll(os.Stdin)
		}
		return io.ReadAll(c.App.Reader)
	}
	return os.ReadFile(path)
}

// ExportCommand writes the document as indented JSON to FILE or stdout.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write the stored document as JSON",
		ArgsUsage: "[FILE]",
		Action: func(c *cli.Context) error {
			return withStore(c, func(e *env, s *storage.Store) error {
				doc, err := s.Load(c.Context)
				if err != nil {
					return err
				}
				data, err := output.MarshalJSON(doc)
				if err != nil {
					return err
				}

				if c.NArg() == 0 || c.Args().First() == "-" {
					_, err = c.App.Writer.Write(data)
					return err
				}
				return os.WriteFile(c.Args().First(), data, 0600)
			})
		},
	}
}

// VerifyCommand checks the live document without modifying it, unless
// --repair is given.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check the stored document's structure and checksum",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "repair",
				Usage: "Recover from the newest valid backup if the check fails",
			},
		},
		Action: func(c *cli.Context) error {
			return withStore(c, func(e *env, s *storage.Store) error {
				err := s.Verify(c.Context)
				switch {
				case err == nil:
					fmt.Fprintln(c.App.Writer, "ok")
					return nil
				case errors.Is(err, domain.ErrNoDocument):
					fmt.Fprintln(c.App.Writer, "no document stored")
					return nil
				case !c.Bool("repair"):
					return err
				}

				e.logger.Warn("verification failed, repairing", "error", err)
				if _, lerr := s.Load(c.Context); lerr != nil {
					return errors.Join(err, lerr)
				}
				if verr := s.Verify(c.Context); verr != nil {
					return errors.Join(err, verr)
				}
				fmt.Fprintln(c.App.Writer, "repaired")
				return nil
			})
		},
	}
}

// SizeReport is the output of the size command.
type SizeReport struct {
	Bytes   int64  `json:"bytes" yaml:"bytes"`
	Human   string `json:"human" yaml:"human"`
	Backups int    `json:"backups" yaml:"backups"`
}

// SizeCommand reports the bytes used by the document and its backups.
func SizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "size",
		Usage: "Show storage used by the document and backups",
		Action: func(c *cli.Context) error {
			return withStore(c, func(e *env, s *storage.Store) error {
				n, err := s.Size(c.Context)
				if err != nil {
					return err
				}
				infos, err := s.ListBackups(c.Context)
				if err != nil {
					return err
				}
				return render(c, e, SizeReport{Bytes: n, Human: output.FormatBytes(n), Backups: len(infos)})
			})
		},
	}
}

// ClearCommand removes the document and all backups.
func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete the document and every backup",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm deletion",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return errors.New("refusing to clear without --yes")
			}
			return withStore(c, func(e *env, s *storage.Store) error {
				if err := s.Clear(c.Context); err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, "cleared")
				return nil
			})
		},
	}
}
