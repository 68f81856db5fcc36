package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sajidur78/xedbg/internal/config"
	"github.com/sajidur78/xedbg/internal/logging"
	"github.com/sajidur78/xedbg/internal/memory"
	"github.com/sajidur78/xedbg/internal/modules"
	"github.com/sajidur78/xedbg/internal/observability"
	"github.com/sajidur78/xedbg/internal/protocol/session"
)

type rootOptions struct {
	configPath string
	hosts      []string
	timeout    time.Duration
	stats      bool

	cfg     config.Config
	metrics *observability.Metrics
}

// target is one connected host with the layers built on it.
type target struct {
	session *session.Session
	modules *modules.Directory
	memory  *memory.Client
}

func (t *target) Close() {
	if err := t.session.Disconnect(context.Background()); err != nil {
		log.Debug().Err(err).Msg("disconnect")
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{cfg: config.Default()}

	rootCmd := &cobra.Command{
		Use:   "xedbg",
		Short: "Talks to a console debug monitor over its text protocol",
		Long: `xedbg connects to a debug monitor on port 730 and reads, writes and scans
target memory through getmem/setmem.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.ConfigureRuntime()
			if opts.configPath != "" {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				opts.cfg = cfg
			}
			if len(opts.hosts) > 0 {
				opts.cfg.Hosts = opts.hosts
			}
			if opts.stats {
				opts.metrics = observability.NewMetrics()
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.metrics == nil {
				return nil
			}
			return opts.metrics.WriteSummary(cmd.ErrOrStderr())
		},
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a TOML client config")
	flags.StringSliceVarP(&opts.hosts, "host", "H", nil, "Target host, IP or host:port (repeatable)")
	flags.DurationVarP(&opts.timeout, "timeout", "t", 30*time.Second, "Overall command timeout")
	flags.BoolVar(&opts.stats, "stats", false, "Print command and transfer counters to stderr when done")

	rootCmd.AddCommand(
		newPingCmd(opts),
		newPeekCmd(opts),
		newPokeCmd(opts),
		newDumpCmd(opts),
		newScanCmd(opts),
		newModulesCmd(opts),
		newConfigCmd(),
	)
	return rootCmd
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// connect opens a session to the first configured host.
func (o *rootOptions) connect(ctx context.Context) (*target, error) {
	if len(o.cfg.Hosts) == 0 {
		return nil, fmt.Errorf("no host given; use --host or a config file")
	}
	host := o.cfg.Hosts[0]
	s := o.newSession(host)
	if err := s.Connect(ctx, host, true); err != nil {
		return nil, err
	}
	var cmd memory.Commander = s
	if o.metrics != nil {
		cmd = o.metrics.Instrument(s)
	}
	dir := modules.NewDirectory(cmd)
	memLog := hostLogger("memory", host)
	return &target{
		session: s,
		modules: dir,
		memory: memory.New(cmd, memory.Options{
			Order:   o.cfg.MemoryOrder,
			Modules: dir,
			Logger:  &memLog,
		}),
	}, nil
}

func (o *rootOptions) newSession(host string) *session.Session {
	var obs session.Observer = observability.ProgressLogger{Logger: hostLogger("transfer", host)}
	if o.metrics != nil {
		obs = observability.Tee(obs, o.metrics)
	}
	return session.New(o.cfg.Session,
		session.WithObserver(obs),
		session.WithLogger(hostLogger("session", host)),
	)
}

// hostLogger tags a component logger with the target host.
func hostLogger(component, host string) zerolog.Logger {
	return logging.Component(log.Logger, component).With().Str("host", host).Logger()
}

// parseAddress accepts decimal or 0x-prefixed hexadecimal.
func parseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return uint32(v), nil
}
