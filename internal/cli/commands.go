package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sri0013/vnf-project/internal/api/middleware"
	"github.com/sri0013/vnf-project/internal/domain"
)

// get fetches path and prints the decoded body.
func (o *options) get(cmd *cobra.Command, path string, query url.Values) error {
	ctx, cancel := o.context(cmd)
	defer cancel()
	var out interface{}
	if err := o.client().Do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return err
	}
	return o.print(out)
}

// send issues a mutating call and prints the decoded body, if any.
func (o *options) send(cmd *cobra.Command, method, path string, body interface{}) error {
	ctx, cancel := o.context(cmd)
	defer cancel()
	var out interface{}
	if err := o.client().Do(ctx, method, path, nil, body, &out); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return o.print(out)
}

func newTokenCommand(opts *options) *cobra.Command {
	var (
		subject string
		scopes  []string
		key     string
		issuer  string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the server's key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				return fmt.Errorf("--signing-key or SFCCTL_SIGNING_KEY is required")
			}
			token, expiresAt, err := middleware.GenerateToken(middleware.JWTConfig{
				SigningKey: []byte(key),
				Issuer:     issuer,
				ExpiresIn:  ttl,
			}, subject, scopes)
			if err != nil {
				return err
			}
			return opts.print(map[string]interface{}{
				"token":      token,
				"expires_at": expiresAt,
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "sfcctl", "token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{middleware.ScopeSFCWrite}, "granted scopes (repeatable)")
	cmd.Flags().StringVar(&key, "signing-key", envOr("SFCCTL_SIGNING_KEY", ""), "HS256 signing key")
	cmd.Flags().StringVar(&issuer, "issuer", "vnf-orchestrator", "token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newSFCCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sfc",
		Short: "Allocate, inspect and release service chains",
	}

	var (
		meta     domain.RequestMetadata
		dir      string
		duration time.Duration
	)
	create := &cobra.Command{
		Use:   "create [request-type]",
		Short: "Allocate a chain; without a request type it is classified from the flags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta.Direction = domain.Direction(dir)
			meta.ServiceDurationSeconds = int64(duration / time.Second)
			body := map[string]interface{}{"metadata": meta}
			if len(args) == 1 {
				body["request_type"] = args[0]
			}
			return opts.send(cmd, http.MethodPost, "/sfc", body)
		},
	}
	f := create.Flags()
	f.StringVar(&dir, "direction", "", "inbound, outbound or bidirectional")
	f.StringVar(&meta.EmailType, "email-type", "", "free-form email class")
	f.BoolVar(&meta.HasAttachments, "attachments", false, "the mail carries attachments")
	f.BoolVar(&meta.ComplianceRequired, "compliance", false, "compliance handling is required")
	f.BoolVar(&meta.SaaSAccess, "saas", false, "branch to cloud SaaS traffic")
	f.IntVar(&meta.Priority, "priority", 0, "priority 1..10, 0 for the server default")
	f.DurationVar(&duration, "duration", 0, "lease length, 0 for the server default")
	f.StringToStringVar(&meta.Labels, "label", nil, "labels as key=value")

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List chains, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			return opts.get(cmd, "/sfc", q)
		},
	}
	list.Flags().StringVar(&status, "status", "", "ALLOCATING, ACTIVE, COMPLETED or FAILED")
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of chains")

	cmd.AddCommand(
		create,
		list,
		&cobra.Command{
			Use:   "get ID",
			Short: "Show one chain",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.get(cmd, "/sfc/"+url.PathEscape(args[0]), nil)
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Release a chain",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodDelete, "/sfc/"+url.PathEscape(args[0]), nil)
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show chain counters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.get(cmd, "/sfc/stats", nil)
			},
		},
	)
	return cmd
}

func newFlowsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Inspect and edit the flow table",
	}

	var vnfType, sfcID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List flow rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if vnfType != "" {
				q.Set("vnf_type", vnfType)
			}
			if sfcID != "" {
				q.Set("sfc_id", sfcID)
			}
			return opts.get(cmd, "/flows", q)
		},
	}
	list.Flags().StringVar(&vnfType, "vnf-type", "", "only rules of this type")
	list.Flags().StringVar(&sfcID, "sfc-id", "", "only rules installed for this chain")

	var priority int
	add := &cobra.Command{
		Use:   "add TYPE INSTANCE",
		Short: "Add a rule steering TYPE traffic to an ACTIVE instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"vnf_type": args[0], "instance_id": args[1]}
			if cmd.Flags().Changed("priority") {
				body["priority"] = priority
			}
			return opts.send(cmd, http.MethodPost, "/flows", body)
		},
	}
	add.Flags().IntVar(&priority, "priority", domain.DefaultFlowPriority, "rule priority")

	cmd.AddCommand(list, add, &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.send(cmd, http.MethodDelete, "/flows/"+url.PathEscape(args[0]), nil)
		},
	})
	return cmd
}

func newInstancesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instances",
		Aliases: []string{"vnf"},
		Short:   "Inspect and manage VNF instances",
	}

	var id string
	register := &cobra.Command{
		Use:   "register TYPE ADDRESS",
		Short: "Register an externally managed instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"address": args[1]}
			if id != "" {
				body["id"] = id
			}
			return opts.send(cmd, http.MethodPost, instancesPath(args[0]), body)
		},
	}
	register.Flags().StringVar(&id, "id", "", "instance id, generated when empty")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list TYPE",
			Short: "List the instances of a type",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.get(cmd, instancesPath(args[0]), nil)
			},
		},
		register,
		&cobra.Command{
			Use:   "remove TYPE ID",
			Short: "Drain and remove an instance",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodDelete, instancesPath(args[0])+"/"+url.PathEscape(args[1]), nil)
			},
		},
		&cobra.Command{
			Use:   "next TYPE",
			Short: "Ask the load balancer for the next instance",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.get(cmd, "/load-balance/"+url.PathEscape(args[0]), nil)
			},
		},
		&cobra.Command{
			Use:   "metrics TYPE",
			Short: "Show the latest samples and history of a type",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.get(cmd, "/vnf/"+url.PathEscape(args[0])+"/metrics", nil)
			},
		},
	)
	return cmd
}

func instancesPath(vnfType string) string {
	return "/vnf/" + url.PathEscape(vnfType) + "/instances"
}

func newScaleCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "scale TYPE out|in",
		Short:     "Scale a type by one instance through the autoscaler",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"out", "in"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var action string
			switch args[1] {
			case "out":
				action = "scale_out"
			case "in":
				action = "scale_in"
			default:
				return fmt.Errorf("direction must be out or in, got %q", args[1])
			}
			return opts.send(cmd, http.MethodPost, "/vnf/"+url.PathEscape(args[0])+"/scale",
				map[string]string{"action": action})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the autoscaler state of every type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.get(cmd, "/autoscaler/status", nil)
		},
	}
}

func newHealthCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show control plane health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.get(cmd, "/health", nil)
		},
	}
}
