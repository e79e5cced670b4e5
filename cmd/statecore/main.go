package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/wcstack/statecore/pkg/ctxlog"
	"github.com/wcstack/statecore/pkg/declare"
	"github.com/wcstack/statecore/pkg/report"
	"github.com/wcstack/statecore/pkg/state"
)

const (
	fileKey      = "file"
	stateKey     = "state"
	pathKey      = "path"
	indexKey     = "index"
	valueKey     = "value"
	maxDepthKey  = "max-depth"
	logLevelKey  = "log-level"
	logFormatKey = "log-format"
)

func main() {
	cmd := &cli.Command{
		Name:  "statecore",
		Usage: "Resolve, walk and write state declared in HCL or YAML files",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     fileKey,
				Aliases:  []string{"f"},
				Usage:    "Declaration file (.hcl, .yaml, .yml); may be repeated",
				Required: true,
			},
			&cli.IntFlag{
				Name:  maxDepthKey,
				Usage: "Maximum dependency walk depth; 0 keeps the file or engine default",
			},
			&cli.StringFlag{
				Name:  logLevelKey,
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  logFormatKey,
				Usage: "Log format (text, json)",
				Value: "text",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "resolve",
				Usage:  "Print the value at an address",
				Flags:  addressFlags(),
				Action: resolve,
			},
			{
				Name:   "walk",
				Usage:  "List every address a change at an address would reach",
				Flags:  addressFlags(),
				Action: walk,
			},
			{
				Name:  "set",
				Usage: "Write a value and print the resulting flush",
				Flags: append(addressFlags(), &cli.StringFlag{
					Name:     valueKey,
					Usage:    "Value to write, parsed as YAML",
					Required: true,
				}),
				Action: set,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func addressFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     stateKey,
			Aliases:  []string{"s"},
			Usage:    "State instance name",
			Required: true,
		},
		&cli.StringFlag{
			Name:     pathKey,
			Aliases:  []string{"p"},
			Usage:    "Dotted path, with * for list elements",
			Required: true,
		},
		&cli.IntSliceFlag{
			Name:    indexKey,
			Aliases: []string{"i"},
			Usage:   "Index for each wildcard, outermost first; may be repeated",
		},
	}
}

func open(ctx context.Context, cmd *cli.Command, opts ...state.Option) (*state.Engine, error) {
	logger := ctxlog.New(cmd.String(logLevelKey), cmd.String(logFormatKey), os.Stderr)
	ctx = ctxlog.WithLogger(ctx, logger)

	opts = append(opts, state.WithLogger(logger))
	if depth := int(cmd.Int(maxDepthKey)); depth > 0 {
		opts = append(opts, state.WithMaxDepth(depth))
	}
	return declare.Open(ctx, cmd.StringSlice(fileKey), opts...)
}

func indexes(cmd *cli.Command) []int {
	raw := cmd.IntSlice(indexKey)
	out := make([]int, 0, len(raw))
	for _, i := range raw {
		out = append(out, int(i))
	}
	return out
}

func resolve(ctx context.Context, cmd *cli.Command) error {
	e, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	value, err := e.Get(cmd.String(stateKey), cmd.String(pathKey), indexes(cmd)...)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(value)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func walk(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	e, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	if err := e.Prime(); err != nil {
		return err
	}
	addr, err := e.AddressOf(cmd.String(stateKey), cmd.String(pathKey), indexes(cmd)...)
	if err != nil {
		return err
	}
	affected, err := e.Affected(addr)
	if err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetTitle("Affected by " + addr.String())
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"#", "state", "path", "indexes"})
	for i, a := range affected {
		idx := ""
		if li := a.ListIndex(); li != nil {
			idx = fmt.Sprint(li.Indexes())
		}
		tbl.AppendRow(table.Row{i + 1, a.StateName(), a.PathInfo().Path, idx})
	}
	tbl.AppendFooter(table.Row{"", "", "total", len(affected)})
	tbl.Render()

	log.Printf("Walked %d addresses in %v", len(affected), time.Since(start))
	return nil
}

func set(ctx context.Context, cmd *cli.Command) error {
	var value any
	if err := yaml.Unmarshal([]byte(cmd.String(valueKey)), &value); err != nil {
		return fmt.Errorf("invalid --%s: %w", valueKey, err)
	}

	e, err := open(ctx, cmd, state.WithSink(report.NewWriterSink(os.Stdout)))
	if err != nil {
		return err
	}
	if err := e.Prime(); err != nil {
		return err
	}
	addr, err := e.AddressOf(cmd.String(stateKey), cmd.String(pathKey), indexes(cmd)...)
	if err != nil {
		return err
	}
	affected, err := e.Affected(addr)
	if err != nil {
		return err
	}
	for _, a := range append(affected, addr) {
		if err := e.Bind(state.NewBinding(a.Address().String(), a)); err != nil {
			return err
		}
	}

	var (
		changed bool
		setErr  error
	)
	e.Loop().Run(func() {
		changed, setErr = e.Write(addr, value)
	})
	if setErr != nil {
		return setErr
	}
	if !changed {
		log.Printf("%s unchanged", addr)
	}
	return nil
}
