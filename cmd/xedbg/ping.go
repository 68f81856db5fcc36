package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type pingResult struct {
	host string
	ok   bool
	err  error
}

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping [host...]",
		Short: "Checks that each host's debug monitor answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts := args
			if len(hosts) == 0 {
				hosts = opts.cfg.Hosts
			}
			if len(hosts) == 0 {
				return fmt.Errorf("no host given")
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			results := pingHosts(ctx, opts, hosts)
			failed := 0
			for _, r := range results {
				switch {
				case r.err != nil:
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: unreachable (%v)\n", r.host, r.err)
				case !r.ok:
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: no answer\n", r.host)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", r.host)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d hosts did not answer", failed, len(hosts))
			}
			return nil
		},
	}
}

// pingHosts connects to every host concurrently, one session each, and
// pings it. Results keep the order of hosts.
func pingHosts(ctx context.Context, opts *rootOptions, hosts []string) []pingResult {
	results := make([]pingResult, len(hosts))
	var g errgroup.Group
	g.SetLimit(8)
	for i, host := range hosts {
		g.Go(func() error {
			results[i] = pingHost(ctx, opts, host)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func pingHost(ctx context.Context, opts *rootOptions, host string) pingResult {
	s := opts.newSession(host)
	defer s.Close()
	if err := s.Connect(ctx, host, false); err != nil {
		return pingResult{host: host, err: err}
	}
	ok := s.Ping(ctx, s.Config().PingTimeout)
	log.Debug().Str("host", host).Bool("ok", ok).Msg("ping")
	if opts.metrics != nil {
		opts.metrics.RecordPing(ok)
	}
	if ok {
		_ = s.Disconnect(ctx)
	}
	return pingResult{host: host, ok: ok}
}
