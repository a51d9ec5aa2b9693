package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/wait"
)

// lookup is the part of a lookup command that differs per command.
type lookup func(ctx context.Context, s *session, loc browser.Locator, policy wait.Policy, res *result) error

func (c *cli) runFindCommand(args []string) error {
	fs := flag.NewFlagSet("find", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	opts := bindCommonFlags(fs, true)
	visible := fs.Bool("visible", false, "Also require the element to be displayed")
	optional := fs.Bool("optional", false, "Succeed with found=false when nothing matches in time")
	if err := opts.parse(fs, args); err != nil {
		return err
	}

	return c.runLookup(fs, opts, func(ctx context.Context, s *session, loc browser.Locator, policy wait.Policy, res *result) error {
		switch {
		case *optional:
			find := s.finder.FindOptional
			if *visible {
				find = s.finder.FindOptionalVisible
			}
			el, ok, err := find(ctx, nil, loc, policy)
			if err != nil {
				return err
			}
			if ok {
				res.add(el)
			}
			return nil
		case *visible:
			el, err := s.finder.FindVisible(ctx, nil, loc, policy)
			if err != nil {
				return err
			}
			res.add(el)
			return nil
		default:
			el, err := s.finder.FindSingle(ctx, nil, loc, policy)
			if err != nil {
				return err
			}
			res.add(el)
			return nil
		}
	})
}

func (c *cli) runFindAllCommand(args []string) error {
	fs := flag.NewFlagSet("find-all", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	opts := bindCommonFlags(fs, true)
	visible := fs.Bool("visible", false, "Only count displayed elements")
	if err := opts.parse(fs, args); err != nil {
		return err
	}

	return c.runLookup(fs, opts, func(ctx context.Context, s *session, loc browser.Locator, policy wait.Policy, res *result) error {
		var (
			found []browser.Element
			err   error
		)
		if *visible {
			found, err = s.finder.FindVisibleSet(ctx, nil, loc, policy)
		} else {
			found, err = s.finder.FindStableSet(ctx, nil, loc, policy)
		}
		for _, el := range found {
			res.add(el)
		}
		return err
	})
}

func (c *cli) runAwaitAbsentCommand(args []string) error {
	fs := flag.NewFlagSet("await-absent", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	opts := bindCommonFlags(fs, true)
	if err := opts.parse(fs, args); err != nil {
		return err
	}

	return c.runLookup(fs, opts, func(ctx context.Context, s *session, loc browser.Locator, policy wait.Policy, res *result) error {
		if err := s.finder.AwaitAbsence(ctx, nil, loc, policy); err != nil {
			return err
		}
		res.Absent = true
		return nil
	})
}

func (c *cli) runDescribeCommand(args []string) error {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	opts := bindCommonFlags(fs, false)
	if err := opts.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usageError(fmt.Errorf("describe takes no arguments"))
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	policy, err := opts.policy(cfg)
	if err != nil {
		return err
	}
	s, err := c.newSession(c.ctx, cfg, false, opts)
	if err != nil {
		return err
	}
	defer s.close()

	eff := policy.Scaled(s.site)
	desc := policyDescription{
		Policy:            s.finder.Describe(policy),
		Site:              s.site.String(),
		TimeoutMS:         eff.Timeout.Milliseconds(),
		IntervalMS:        eff.Interval.Milliseconds(),
		MinStableMS:       eff.MinStable.Milliseconds(),
		LatencyFactor:     eff.Latency,
		StableIntervalCnt: policy.EffectiveStableIntervalCount(s.site),
	}
	return c.render(opts, desc, desc.text)
}

// runLookup runs the shared part of find, find-all and await-absent: config,
// session, telemetry server and result output.
func (c *cli) runLookup(fs *flag.FlagSet, opts *commonOptions, fn lookup) error {
	loc, err := opts.locator(fs)
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	policy, err := opts.policy(cfg)
	if err != nil {
		return err
	}

	s, err := c.newSession(c.ctx, cfg, true, opts)
	if err != nil {
		return err
	}
	defer s.close()

	res := &result{
		Command:   fs.Name(),
		Locator:   loc.String(),
		Policy:    s.finder.Describe(policy),
		SessionID: s.site.SessionID(),
	}
	runErr := s.run(c.ctx, func(ctx context.Context) error {
		return fn(ctx, s, loc, policy, res)
	})
	res.finish(s.metrics.Snapshot(), runErr)

	if err := c.render(opts, res, res.text); err != nil {
		return err
	}
	if runErr != nil {
		return reported{withExitCode(runErr, exitFailure)}
	}
	return nil
}
