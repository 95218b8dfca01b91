package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/corporatepranks/storefront-backend/internal/bootstrap"
	"github.com/corporatepranks/storefront-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// files-only commands never open the database.
var fileCommands = map[string]func(options) error{
	"create": func(o options) error {
		path, err := migrate.CreateSQLMigration(o.fileDir(), o.name)
		if err == nil {
			fmt.Println(path)
		}
		return err
	},
	"validate": func(o options) error {
		if o.dir == "" {
			return migrate.Validate(migrate.Embedded())
		}
		return migrate.ValidateDir(o.dir)
	},
}

var dbCommands = map[string]func(context.Context, *migrate.Migrator, options) error{
	"up":     func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Up(ctx) },
	"down":   func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Down(ctx) },
	"status": func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Status(ctx) },
	"version": func(ctx context.Context, m *migrate.Migrator, o options) error {
		if o.version == "" {
			return errors.New("-version is required")
		}
		return m.To(ctx, o.version)
	},
}

func (o options) fileDir() string {
	if o.dir == "" {
		return migrate.DefaultDir
	}
	return o.dir
}

// migrate manages the goose schema. Without -dir the migrations embedded in
// the binary are used.
func main() {
	var o options
	flag.StringVar(&o.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&o.dir, "dir", "", "migrations directory (default: embedded, or "+migrate.DefaultDir+" for create)")
	flag.StringVar(&o.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&o.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if run, ok := fileCommands[o.cmd]; ok {
		if err := run(o); err != nil {
			fmt.Fprintf(os.Stderr, "migrate %s: %v\n", o.cmd, err)
			os.Exit(1)
		}
		return
	}
	run, ok := dbCommands[o.cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "migrate: unknown -cmd %q\n", o.cmd)
		os.Exit(2)
	}

	boot := context.Background()
	rt, err := bootstrap.Start(boot, "migrate", bootstrap.DB|bootstrap.NoAutoMigrate)
	if err != nil {
		bootstrap.Exit(boot, nil, "migrate cannot start", err)
	}
	ctx := rt.Logger.WithFields(boot, map[string]any{"env": rt.Config.App.Env, "cmd": o.cmd})

	sqlDB, err := rt.DB.DB().DB()
	if err == nil {
		var m *migrate.Migrator
		if m, err = migrate.New(sqlDB, o.dir, rt.Logger); err == nil {
			err = run(ctx, m, o)
		}
	}
	rt.Close()
	if err != nil {
		bootstrap.Exit(ctx, rt.Logger, "migrate "+o.cmd+" failed", err)
	}
	rt.Logger.Info(ctx, "migrate.done")
}
