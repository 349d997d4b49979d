// Command wasmlite validates and runs WebAssembly 1.0 modules using the
// wasmlite runtime. It is a thin driver: all interpreter behavior lives
// in the wasm and runtime packages.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wasmlite/wasmlite/runtime"
)

var (
	hostPageCeiling uint32
	meteredTicks    int64
	maxCallDepth    int
	entryFunc       string
	entryArgs       string
	verbose         bool
)

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func readModuleFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func parseArgs(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	args := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q: %w", p, err)
		}
		args[i] = v
	}
	return args, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <module.wasm>",
		Short: "Parse and statically validate a module without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			b, err := readModuleFile(args[0])
			if err != nil {
				return err
			}
			rt := runtime.NewRuntime()
			rt.Log = log
			if _, err := rt.LoadModule(b); err != nil {
				return err
			}
			log.Info("module is valid")
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <module.wasm>",
		Short: "Instantiate a module and invoke an exported function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			b, err := readModuleFile(args[0])
			if err != nil {
				return err
			}

			rt := runtime.NewRuntime()
			rt.Log = log
			if hostPageCeiling > 0 {
				rt.HostPageCeiling = hostPageCeiling
			}
			if maxCallDepth > 0 {
				rt.MaxCallDepth = maxCallDepth
			}
			rt.MeteredTicks = meteredTicks

			m, err := rt.LoadModule(b)
			if err != nil {
				return err
			}

			inst, err := rt.Instantiate(m, envResolver{log: log})
			if err != nil {
				return err
			}

			if entryFunc == "" {
				log.Info("instantiated module; no entry function requested")
				return nil
			}

			invokeArgs, err := parseArgs(entryArgs)
			if err != nil {
				return err
			}

			results, trap, err := rt.Call(inst, entryFunc, invokeArgs...)
			if err != nil {
				return err
			}
			if trap != nil {
				return fmt.Errorf("trap: %s", trap.Error())
			}
			fmt.Println(results)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&hostPageCeiling, "max-pages", 0, "maximum linear memory pages the host allows (0 = runtime default)")
	cmd.Flags().Int64Var(&meteredTicks, "ticks", 0, "execution tick budget (0 = unmetered)")
	cmd.Flags().IntVar(&maxCallDepth, "max-call-depth", 0, "call-stack recursion limit (0 = runtime default)")
	cmd.Flags().StringVar(&entryFunc, "entry", "", "exported function to invoke after instantiation")
	cmd.Flags().StringVar(&entryArgs, "args", "", "comma-separated uint64 arguments for --entry")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:   "wasmlite",
		Short: "An embeddable WebAssembly 1.0 interpreter",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newValidateCmd(), newRunCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
