package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v2"
	"github.com/zeromicro/go-zero/core/conf"

	// database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xcono/docstore/catalog"
	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/migrate"
	"github.com/xcono/docstore/schema"
)

var configFile = flag.String("f", "config.yaml", "the config file")

func main() {

	flag.Parse()

	var c schema.Config
	conf.MustLoad(*configFile, &c)

	app := &cli.App{
		Name:  "docstore",
		Usage: "schema-driven document store",
		Commands: []*cli.Command{
			{
				Name:  "inspect",
				Usage: "Print a service's live catalog as JSON",
				Args:  true,
				Action: func(cmd *cli.Context) error {
					svc, err := service(c, cmd.Args().Get(0))
					if err != nil {
						return err
					}

					db, err := database.OpenDB(svc.DSN)
					if err != nil {
						return err
					}
					defer db.Close()

					cat, err := catalog.For(svc.DSN, db)
					if err != nil {
						return err
					}
					tables, err := cat.Tables()
					if err != nil {
						return err
					}

					jsonData, err := json.MarshalIndent(tables, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(jsonData))

					return nil
				},
			},
			{
				Name:  "sync",
				Usage: "Reconcile a service's declared doctypes with its database",
				Args:  true,
				Action: func(cmd *cli.Context) error {
					svc, err := service(c, cmd.Args().Get(0))
					if err != nil {
						return err
					}

					schemas, err := schema.Load(svc.Doctypes)
					if err != nil {
						return err
					}

					db, err := database.OpenDB(svc.DSN)
					if err != nil {
						return err
					}
					defer db.Close()

					cat, err := catalog.For(svc.DSN, db)
					if err != nil {
						return err
					}

					m := migrate.New(db, cat, schemas)
					m.Destructive = svc.Destructive
					m.EmitNotNull = svc.EmitNotNull
					return m.Sync(context.Background())
				},
			},
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		panic(err)
	}
}

func service(c schema.Config, name string) (schema.Service, error) {
	svc, ok := c.Services[name]
	if !ok {
		return schema.Service{}, fmt.Errorf("unknown service %q", name)
	}
	return svc, nil
}
