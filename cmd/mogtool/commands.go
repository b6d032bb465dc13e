package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/client"
)

var errUsage = errors.New("bad usage, see -h")

type command struct {
	c      *client.Client
	domain string
	class  string
	after  string
	limit  int

	stdin  io.Reader
	stdout io.Writer
}

func (cmd *command) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, args := args[0], args[1:]
	if name != "noop" && cmd.domain == "" {
		return errors.New("-domain is required")
	}

	switch name {
	case "noop":
		if err := want(args, 0); err != nil {
			return err
		}
		if err := cmd.c.Noop(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.stdout, "ok %s\n", cmd.c.PeerAddr())
		return nil

	case "create-domain":
		if err := want(args, 0); err != nil {
			return err
		}
		r, err := cmd.c.CreateDomain(ctx, cmd.domain)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.stdout, r.Domain)
		return nil

	case "create-class":
		if len(args) < 1 || len(args) > 2 {
			return errUsage
		}
		req := &mogilefs.CreateClass{Domain: cmd.domain, Class: args[0]}
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("mindevcount: %w", err)
			}
			req.MinDevCount = n
		}
		r, err := cmd.c.CreateClass(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.stdout, "%s %s mindevcount=%d\n", r.Domain, r.Class, r.MinDevCount)
		return nil

	case "store":
		if err := want(args, 2); err != nil {
			return err
		}
		key, src := args[0], args[1]
		if src == "-" {
			return cmd.c.StoreData(ctx, cmd.domain, cmd.class, key, cmd.stdin)
		}
		return cmd.c.StoreFile(ctx, cmd.domain, cmd.class, key, src)

	case "paths":
		if err := want(args, 1); err != nil {
			return err
		}
		r, err := cmd.c.GetPaths(ctx, cmd.domain, args[0])
		if err != nil {
			return err
		}
		for _, p := range r.Paths {
			fmt.Fprintln(cmd.stdout, p)
		}
		return nil

	case "info":
		if err := want(args, 1); err != nil {
			return err
		}
		r, err := cmd.c.FileInfo(ctx, cmd.domain, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.stdout, "domain=%s key=%s class=%s fid=%d length=%d devcount=%d\n",
			r.Domain, r.Key, r.Class, r.Fid, r.Length, r.DevCount)
		return nil

	case "rename":
		if err := want(args, 2); err != nil {
			return err
		}
		return cmd.c.Rename(ctx, cmd.domain, args[0], args[1])

	case "delete":
		if err := want(args, 1); err != nil {
			return err
		}
		return cmd.c.Delete(ctx, cmd.domain, args[0])

	case "updateclass":
		if err := want(args, 2); err != nil {
			return err
		}
		return cmd.c.UpdateClass(ctx, cmd.domain, args[0], args[1])

	case "list":
		if len(args) > 1 {
			return errUsage
		}
		var prefix string
		if len(args) == 1 {
			prefix = args[0]
		}
		return cmd.list(ctx, prefix)

	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

// list pages until the tracker returns a short page.
func (cmd *command) list(ctx context.Context, prefix string) error {
	req := &mogilefs.ListKeys{Domain: cmd.domain, Prefix: prefix, After: cmd.after, Limit: cmd.limit}
	for {
		page, err := cmd.c.ListKeys(ctx, req)
		if err != nil {
			return err
		}
		for _, k := range page.Keys {
			fmt.Fprintln(cmd.stdout, k)
		}
		if len(page.Keys) < req.PageLimit() {
			return nil
		}
		req.After = page.NextAfter()
	}
}

func want(args []string, n int) error {
	if len(args) != n {
		return errUsage
	}
	return nil
}
