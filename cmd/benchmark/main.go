package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/wcstack/statecore/pkg/state"
)

var cpuProfile = flag.String("cpuprofile", "", "write a CPU profile to this file")

func main() {
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	log.Printf("warming up")
	benchmarkPropagation(false)
	benchmarkPropagation(true)
}

var (
	ww    = []int{1, 10, 100, 1_000}
	hh    = []int{1, 10, 100}
	iters = 100
)

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// chain declares a list of w rows where rows.*.v{j} is a getter over
// rows.*.v{j-1}, h levels deep.
func chain(w, h int) *state.Definition {
	rows := make([]any, w)
	for i := range rows {
		rows[i] = map[string]any{"v0": 0}
	}
	def := &state.Definition{
		Name:    "bench",
		Data:    map[string]any{"rows": rows},
		Lists:   []string{"rows"},
		Getters: map[string]state.Getter{},
	}
	for j := 1; j <= h; j++ {
		prev := "rows.*.v" + strconv.Itoa(j-1)
		def.Getters["rows.*.v"+strconv.Itoa(j)] = state.Getter{Func: func(r state.Reader) (any, error) {
			v, err := r.Get(prev)
			if err != nil {
				return nil, err
			}
			return toInt(v) + 1, nil
		}}
	}
	return def
}

func benchmarkPropagation(shouldRender bool) {
	tbl := table.NewWriter()
	tbl.SetTitle("statecore write propagation")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			reg, err := state.NewRegistry(chain(w, h))
			if err != nil {
				log.Fatal(err)
			}
			e, err := state.New(reg, state.WithMaxDepth(h+10))
			if err != nil {
				log.Fatal(err)
			}
			if err := e.Prime(); err != nil {
				log.Fatal(err)
			}
			leaves, err := e.Addresses("bench", "rows.*.v"+strconv.Itoa(h))
			if err != nil {
				log.Fatal(err)
			}
			for _, leaf := range leaves {
				if err := e.Bind(state.NewBinding(leaf.String(), leaf)); err != nil {
					log.Fatal(err)
				}
			}

			for i := 0; i < iters; i++ {
				row := i % w
				start := time.Now()
				e.Loop().Run(func() {
					if _, err := e.Set("bench", "rows.*.v0", i+1, row); err != nil {
						log.Panic(err)
					}
				})
				tach.AddTime(time.Since(start))
			}

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{
				{
					fmt.Sprintf("propagate: %d * %d", w, h),
					calc.Time.Avg,
					calc.Time.Min,
					calc.Time.P75,
					calc.Time.P99,
					calc.Time.Max,
				},
			})
		}
	}

	if shouldRender {
		tbl.Render()
	}
}
