package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

type options struct {
	server  string
	token   string
	output  string
	timeout time.Duration
	out     io.Writer
}

func (o *options) client() *Client {
	return NewClient(o.server, o.token, o.timeout)
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// print renders v in the selected output format.
func (o *options) print(v interface{}) error {
	switch o.output {
	case OutputYAML:
		// Round-trip through JSON so field names follow the API.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(o.out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	case OutputJSON, "":
		enc := json.NewEncoder(o.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}
}

// NewRootCommand builds the sfcctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{out: out}

	root := &cobra.Command{
		Use:           "sfcctl",
		Short:         "Manage service function chains and VNF instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("SFCCTL_SERVER", "http://localhost:8080"), "control plane base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("SFCCTL_TOKEN"), "bearer token for mutating calls")
	flags.StringVarP(&opts.output, "output", "o", OutputJSON, "output format: json or yaml")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(
		newTokenCommand(opts),
		newSFCCommand(opts),
		newFlowsCommand(opts),
		newInstancesCommand(opts),
		newScaleCommand(opts),
		newStatusCommand(opts),
		newHealthCommand(opts),
	)
	return root
}

// Execute runs sfcctl with the process arguments.
func Execute() {
	if err := NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
