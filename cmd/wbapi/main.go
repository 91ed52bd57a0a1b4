// wbapi - World Bank API data extraction tool
//
// Usage:
//   wbapi countries [--out countries.csv]
//   wbapi indicators [--codes SI.POV.DDAY,NY.GDP.PCAP.PP.KD] [--search poverty] [--out meta.csv]
//   wbapi data --indicators SI.POV.DDAY --countries BRA,IND --date 2000:2023 [--long] [--out data.csv]
//   wbapi batch --config config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jpazvd/wb-api-repo/internal/batch"
	"github.com/jpazvd/wb-api-repo/internal/output"
	"github.com/jpazvd/wb-api-repo/pkg/client"
	"github.com/jpazvd/wb-api-repo/pkg/logging"
	"github.com/jpazvd/wb-api-repo/pkg/query"
	"github.com/jpazvd/wb-api-repo/pkg/ratelimit"
	"github.com/jpazvd/wb-api-repo/pkg/reshape"
	"github.com/jpazvd/wb-api-repo/pkg/wb"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "wbapi",
		Usage:   "Fetch World Bank country, indicator and observation data into tabular files",
		Version: version,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-url",
				Value:   client.DefaultBaseURL,
				Usage:   "API base URL",
				EnvVars: []string{"WB_BASE_URL"},
			},
			&cli.IntFlag{
				Name:    "per-page",
				Value:   client.DefaultPerPage,
				Usage:   "Rows requested per page",
				EnvVars: []string{"WB_PER_PAGE"},
			},
			&cli.IntFlag{
				Name:    "rate-limit",
				Value:   0,
				Usage:   "Max requests per second (0 = unlimited)",
				EnvVars: []string{"WB_RATE_LIMIT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"WB_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Human-readable console logging",
			},
		},

		Before: func(c *cli.Context) error {
			logging.Setup(logging.Config{
				Level:  logging.LogLevel(c.String("log-level")),
				Pretty: c.Bool("pretty"),
				Output: os.Stderr,
			})
			return nil
		},

		Commands: []*cli.Command{
			countriesCommand(),
			indicatorsCommand(),
			dataCommand(),
			batchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func countriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "countries",
		Usage: "Fetch country metadata",
		Flags: []cli.Flag{
			outFlag(),
		},
		Action: func(c *cli.Context) error {
			service, err := newService(c)
			if err != nil {
				return err
			}
			table, err := service.Countries(c.Context)
			if err != nil {
				return err
			}
			return writeOut(c.String("out"), table)
		},
	}
}

func indicatorsCommand() *cli.Command {
	return &cli.Command{
		Name:  "indicators",
		Usage: "Fetch indicator metadata",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "codes",
				Usage: "Comma-separated indicator codes",
			},
			&cli.StringFlag{
				Name:  "search",
				Usage: "Filter by substring in code or name (client-side)",
			},
			outFlag(),
		},
		Action: func(c *cli.Context) error {
			service, err := newService(c)
			if err != nil {
				return err
			}
			table, err := service.Indicators(c.Context, wb.IndicatorFilter{
				Codes:  query.SplitList(c.String("codes")),
				Search: c.String("search"),
			})
			if err != nil {
				return err
			}
			return writeOut(c.String("out"), table)
		},
	}
}

func dataCommand() *cli.Command {
	return &cli.Command{
		Name:  "data",
		Usage: "Fetch indicator observations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "indicators",
				Usage:    "Comma-separated indicator codes",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "countries",
				Value: "all",
				Usage: `"all" or comma-separated ISO3 codes (e.g. BRA,IND)`,
			},
			&cli.StringFlag{
				Name:  "date",
				Usage: `Year or range "YYYY:YYYY", open-ended "YYYY:"`,
			},
			&cli.BoolFlag{
				Name:  "long",
				Usage: "Long/stacked format instead of wide",
			},
			outFlag(),
		},
		Action: func(c *cli.Context) error {
			service, err := newService(c)
			if err != nil {
				return err
			}
			table, err := service.DataTable(c.Context, query.DataFilter{
				Indicators: query.SplitList(c.String("indicators")),
				Countries:  query.SplitList(c.String("countries")),
				Date:       c.String("date"),
			}, !c.Bool("long"))
			if err != nil {
				return err
			}
			return writeOut(c.String("out"), table)
		},
	}
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Run data pulls from a YAML job list",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "Batch config file",
				EnvVars: []string{"WB_BATCH_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := batch.Load(c.String("config"))
			if err != nil {
				return err
			}
			service, err := newService(c)
			if err != nil {
				return err
			}
			return batch.NewRunner(service).Run(c.Context, cfg)
		},
	}
}

func outFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "out",
		Usage: "Output file (.csv, .yaml); omit to print a preview",
	}
}

func newService(c *cli.Context) (*wb.Service, error) {
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.String("base-url")
	cfg.PerPage = c.Int("per-page")
	cfg.Limiter = ratelimit.New(c.Int("rate-limit"), c.Int("rate-limit"))

	apiClient, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	return wb.New(apiClient), nil
}

func writeOut(out string, table reshape.Table) error {
	if out == "" {
		return output.Preview(os.Stdout, table, 20)
	}
	if err := output.Write(out, table); err != nil {
		return err
	}
	fmt.Printf("Wrote: %s (rows=%d, cols=%d)\n", out, len(table.Rows), len(table.Columns))
	return nil
}
