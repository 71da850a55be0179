package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/docguard/internal/storage"
)

// BackupRow is one line of backup list output.
type BackupRow struct {
	ID       string    `json:"id" yaml:"id"`
	Kind     string    `json:"kind" yaml:"kind"`
	Created  time.Time `json:"created" yaml:"created"`
	Size     int64     `json:"size" yaml:"size"`
	Checksum string    `json:"checksum" yaml:"checksum"`
}

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Create, list and restore backups",
		Subcommands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Snapshot the stored document as a manual backup",
				Action: backupCreate,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List backups, oldest first",
				Action:  backupList,
			},
			{
				Name:      "restore",
				Usage:     "Replace the stored document with a backup",
				ArgsUsage: "BACKUP_ID",
				Action:    backupRestore,
			},
		},
	}
}

func backupCreate(c *cli.Context) error {
	return withStore(c, func(e *env, s *storage.Store) error {
		id, err := s.CreateBackup(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, id)
		return nil
	})
}

func backupList(c *cli.Context) error {
	return withStore(c, func(e *env, s *storage.Store) error {
		infos, err := s.ListBackups(c.Context)
		if err != nil {
			return err
		}
		rows := make([]BackupRow, 0, len(infos))
		for _, info := range infos {
			rows = append(rows, BackupRow{
				ID:       info.ID,
				Kind:     string(info.Kind),
				Created:  info.Timestamp,
				Size:     info.Size,
				Checksum: info.Checksum,
			})
		}
		return render(c, e, rows)
	})
}

func backupRestore(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("restore requires exactly one BACKUP_ID argument")
	}
	id := c.Args().First()
	return withStore(c, func(e *env, s *storage.Store) error {
		if err := s.RestoreBackup(c.Context, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "restored %s\n", id)
		return nil
	})
}
