package main

import (
	"errors"

	"github.com/spf13/cobra"

	"clinic/backend/internal/config"
	"clinic/backend/internal/store/postgres"
	"clinic/backend/migrations"
)

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.StorageDriver != config.StoragePostgres {
				return errors.New("migrate requires storage.driver=postgres")
			}
			db, err := openDB(c.cfg, c.log)
			if err != nil {
				return err
			}
			defer postgres.Close(db)
			return migrations.Up(cmd.Context(), db, c.log)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.StorageDriver != config.StoragePostgres {
				return errors.New("migrate requires storage.driver=postgres")
			}
			db, err := openDB(c.cfg, c.log)
			if err != nil {
				return err
			}
			defer postgres.Close(db)
			return migrations.Down(cmd.Context(), db, c.log)
		},
	})
	return cmd
}
