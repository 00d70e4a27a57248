// Command run evolves tensor network ground states for a grid of
// transverse field Ising configurations, logging energy histories to
// sqlite and writing per configuration statistics under the run
// directory. Finished configurations are skipped on restart.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"qtebd/exact"
	"qtebd/runlog"
	"qtebd/tebd"
	"qtebd/tn"
)

const (
	fnameDone       = "done.txt"
	fnameStatistics = "statistics.txt"
	fnameLog        = "runlog.db"
)

var (
	runDir     = flag.String("d", filepath.Join("runs", "qtebd"), "run directory")
	configPath = flag.String("c", "", "YAML config file, empty for the built in grid")
)

type Config struct {
	Lx     int     `yaml:"lx"`
	Ly     int     `yaml:"ly"`
	H      float64 `yaml:"h"`
	BondD  int     `yaml:"bond_dim"`
	Tau    float64 `yaml:"tau"`
	Steps  int     `yaml:"steps"`
	Tol    float64 `yaml:"tol"`
	Seed   int64   `yaml:"seed"`
	Second bool    `yaml:"second_order"`
}

func newConfigs() []Config {
	configs := make([]Config, 0)
	for _, h := range []float64{0.5, 1, 2, 3.5} {
		for _, bondD := range []int{2, 4} {
			configs = append(configs, Config{
				Lx: 3, Ly: 3,
				H:      h,
				BondD:  bondD,
				Tau:    0.1,
				Steps:  200,
				Tol:    1e-6,
				Second: true,
			})
		}
	}
	return configs
}

func readConfigs(path string) ([]Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	var configs []Config
	if err := yaml.Unmarshal(b, &configs); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return configs, nil
}

type Statistics struct {
	Config       Config  `json:"config"`
	Energy       float64 `json:"energy"`
	EnergyPer    float64 `json:"energy_per_site"`
	ExactEnergy  float64 `json:"exact_energy"`
	ExactPerSite float64 `json:"exact_energy_per_site"`
	Sweeps       int     `json:"sweeps"`
}

func (c Config) dir() string {
	return filepath.Join(fmt.Sprintf("%dx%d", c.Lx, c.Ly), fmt.Sprintf("%f", c.H), fmt.Sprintf("%d", c.BondD))
}

func solve(ctx context.Context, lg *runlog.Log, cfg Config) (Statistics, error) {
	edges := tebd.EdgesSquareLattice(cfg.Lx, cfg.Ly, false)
	ham, err := tebd.HamIsing(edges, 1, cfg.H)
	if err != nil {
		return Statistics{}, errors.Wrap(err, "")
	}
	state := tn.RandVector(edges, cfg.BondD, 2, rand.New(rand.NewSource(cfg.Seed)))

	su, err := tebd.NewSimpleUpdate(state, ham, tebd.SimpleUpdateOpts{
		Opts: tebd.Opts{
			Imag:        true,
			MaxBond:     cfg.BondD,
			Cutoff:      1e-10,
			SecondOrder: cfg.Second,
			KeepBest:    true,
			Seed:        cfg.Seed,
			Progress:    true,
		},
		EquilibrateSweeps: 10,
	})
	if err != nil {
		return Statistics{}, errors.Wrap(err, "")
	}

	cfgBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return Statistics{}, errors.Wrap(err, "")
	}
	run, err := lg.NewRun(cfg.dir(), string(cfgBytes))
	if err != nil {
		return Statistics{}, errors.Wrap(err, "")
	}
	logged := 0
	callback := func(t *tebd.TEBD) bool {
		energies, times := t.Energies(), t.Times()
		diffs := su.GaugeDiffs()
		for ; logged < len(energies); logged++ {
			rec := runlog.Record{
				Sweep:  t.NumSweeps(),
				Tau:    cfg.Tau,
				Time:   times[logged],
				Energy: energies[logged],
			}
			if len(diffs) > 0 {
				rec.GaugeDiff = diffs[len(diffs)-1]
			}
			if err := lg.Append(run, rec); err != nil {
				log.Printf("%+v", err)
			}
		}
		return false
	}

	err = su.Evolve(ctx, tebd.EvolveOpts{
		Steps:              cfg.Steps,
		Tau:                cfg.Tau,
		ComputeEnergyEvery: 5,
		Tol:                cfg.Tol,
		Callback:           callback,
	})
	if err != nil {
		return Statistics{}, errors.Wrap(err, "")
	}

	energy, err := su.Energy()
	if err != nil {
		return Statistics{}, errors.Wrap(err, "")
	}
	if best, _, ok := su.Best(); ok && best < energy {
		energy = best
	}
	stats := Statistics{
		Config:    cfg,
		Energy:    energy,
		EnergyPer: energy / float64(ham.NumSites()),
		Sweeps:    su.NumSweeps(),
	}
	// Reference from dense diagonalization on small lattices.
	if cfg.Lx*cfg.Ly <= 12 {
		e0, err := exact.GroundEnergy(ham)
		if err != nil {
			return Statistics{}, errors.Wrap(err, "")
		}
		stats.ExactEnergy = e0
		stats.ExactPerSite = e0 / float64(ham.NumSites())
	}
	return stats, nil
}

func solveDir(ctx context.Context, lg *runlog.Log, cfg Config) error {
	dir := filepath.Join(*runDir, cfg.dir())
	donePath := filepath.Join(dir, fnameDone)
	if _, err := os.Stat(donePath); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	stats, err := solve(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(filepath.Join(dir, fnameStatistics), b, 0644); err != nil {
		return errors.Wrap(err, "")
	}

	if ctx.Err() != nil {
		// Interrupted runs are saved but not marked done, so a restart
		// redoes them.
		return nil
	}
	if err := os.WriteFile(donePath, nil, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configs := newConfigs()
	if *configPath != "" {
		var err error
		configs, err = readConfigs(*configPath)
		if err != nil {
			return errors.Wrap(err, "")
		}
	}

	lg, err := runlog.Open(filepath.Join(*runDir, fnameLog))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer lg.Close()

	for _, cfg := range configs {
		if ctx.Err() != nil {
			break
		}
		if err := solveDir(ctx, lg, cfg); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%#v", cfg))
		}
		log.Printf("done %s", cfg.dir())
	}
	return nil
}
