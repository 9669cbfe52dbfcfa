package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiancaiamao/acp/pkg/acp"
	"github.com/tiancaiamao/acp/pkg/client"
	"github.com/tiancaiamao/acp/pkg/config"
	"github.com/tiancaiamao/acp/pkg/diff"
	"github.com/tiancaiamao/acp/pkg/logger"
	"github.com/tiancaiamao/acp/pkg/transport"
	"github.com/tiancaiamao/acp/pkg/workspace"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "acp",
		Short: "Talk to an ACP coding agent from the terminal",
		Long: `acp spawns an Agent Client Protocol agent as a subprocess and drives a
conversation with it: prompts go in, streamed output and proposed file
edits come back.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("acp %s (protocol v%d)\n", version, acp.ProtocolVersion)
		},
	}
}

type runFlags struct {
	configPath string
	agentCmd   string
	cwd        string
	sessionID  string
	autoYes    bool
	verbose    bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Start an agent and converse with it",
		Long: `Spawns the configured agent, performs the handshake, opens a session
and enters a prompt loop. With a prompt argument it sends that single
prompt and exits when the turn completes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "config file path (default ~/.acp/config.json)")
	cmd.Flags().StringVar(&flags.agentCmd, "agent", "", "agent command line, overrides config")
	cmd.Flags().StringVar(&flags.cwd, "cwd", "", "session working directory (default current directory)")
	cmd.Flags().StringVar(&flags.sessionID, "session", "", "resume an existing session by id")
	cmd.Flags().BoolVarP(&flags.autoYes, "yes", "y", false, "auto-approve permission requests")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "show agent thoughts and tool detail")

	return cmd
}

func runAgent(flags runFlags, args []string) error {
	cfgPath := flags.configPath
	if cfgPath == "" {
		p, err := config.GetDefaultConfigPath()
		if err != nil {
			return err
		}
		cfgPath = p
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if flags.agentCmd != "" {
		parts := strings.Fields(flags.agentCmd)
		cfg.Agent.Command = parts[0]
		cfg.Agent.Args = parts[1:]
	}
	if cfg.Agent.Command == "" {
		return fmt.Errorf("no agent configured: set agent.command in %s or pass --agent", cfgPath)
	}
	if flags.verbose && cfg.Log != nil {
		cfg.Log.Level = "debug"
	}

	log, err := cfg.Log.CreateLogger()
	if err != nil {
		return err
	}
	defer log.Close()

	cwd := flags.cwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	fs := workspace.NewOverlay(workspace.NewDiskFS())
	wire := transport.New(cfg.TransportConfig(), log)
	cli := client.New(wire, fs, log, cfg.ClientOptions(version))
	rec := diff.NewReconciler(fs, log)

	ui := &console{
		out:     os.Stdout,
		in:      bufio.NewScanner(os.Stdin),
		rec:     rec,
		log:     log,
		autoYes: flags.autoYes,
		verbose: flags.verbose,
	}
	cli.SetUpdateHandler(ui.onUpdate)
	cli.SetPermissionHandler(ui.onPermission)
	cli.SetStateHandler(func(old, new client.ConnState) {
		if new == client.StateDisconnected || new == client.StateErrored {
			fmt.Fprintf(os.Stderr, "! connection %s\n", new)
		}
	})

	if err := cli.Connect(); err != nil {
		return err
	}
	defer cli.Stop()
	if err := cli.Initialize(); err != nil {
		return err
	}

	sessionID := flags.sessionID
	if sessionID != "" {
		if err := cli.LoadSession(sessionID, cwd, nil); err != nil {
			return err
		}
	} else {
		sessionID, err = cli.NewSession(cwd, nil)
		if err != nil {
			return err
		}
	}

	if len(args) == 1 {
		return ui.turn(cli, sessionID, args[0])
	}

	fmt.Println("connected, type a prompt (ctrl-d to quit)")
	for {
		fmt.Print("> ")
		if !ui.in.Scan() {
			return nil
		}
		text := strings.TrimSpace(ui.in.Text())
		if text == "" {
			continue
		}
		if err := ui.turn(cli, sessionID, text); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// console renders streamed session updates and answers permission
// requests at the terminal.
type console struct {
	out     *os.File
	in      *bufio.Scanner
	rec     *diff.Reconciler
	log     *logger.Logger
	autoYes bool
	verbose bool

	// tool calls seen this turn, so updates can be merged
	calls map[string]*acp.ToolCall
}

func (c *console) turn(cli *client.Client, sessionID, text string) error {
	c.calls = make(map[string]*acp.ToolCall)
	stop, err := cli.Prompt(sessionID, []acp.ContentBlock{acp.TextBlock(text)})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\n[%s]\n", stop)
	return nil
}

func (c *console) onUpdate(n acp.SessionNotification) {
	u := n.Update
	switch u.Kind {
	case acp.UpdateAgentMessageChunk:
		if u.Content != nil {
			fmt.Fprint(c.out, u.Content.Text)
		}
	case acp.UpdateAgentThoughtChunk:
		if c.verbose && u.Content != nil {
			fmt.Fprintf(c.out, "\x1b[2m%s\x1b[0m", u.Content.Text)
		}
	case acp.UpdateUserMessageChunk:
		// Echo of our own prompt during session/load replay.
		if u.Content != nil {
			fmt.Fprintf(c.out, "\x1b[1m%s\x1b[0m\n", u.Content.Text)
		}
	case acp.UpdatePlan:
		c.renderPlan(u.Plan)
	case acp.UpdateToolCall:
		if u.ToolCall == nil {
			return
		}
		tc := *u.ToolCall
		tc.Normalize()
		if c.calls == nil {
			c.calls = make(map[string]*acp.ToolCall)
		}
		c.calls[tc.ToolCallID] = &tc
		fmt.Fprintf(c.out, "\n* %s [%s] %s\n", tc.Kind, tc.Status, tc.Title)
		c.renderDiffs(&tc)
	case acp.UpdateToolCallUpdate:
		if u.ToolCallUpdate == nil {
			return
		}
		tc, ok := c.calls[u.ToolCallUpdate.ToolCallID]
		if !ok {
			// Update for a call announced before we joined; synthesize.
			tc = &acp.ToolCall{ToolCallID: u.ToolCallUpdate.ToolCallID}
			tc.Normalize()
			if c.calls == nil {
				c.calls = make(map[string]*acp.ToolCall)
			}
			c.calls[tc.ToolCallID] = tc
		}
		tc.ApplyUpdate(u.ToolCallUpdate)
		if tc.Status.Terminal() || c.verbose {
			fmt.Fprintf(c.out, "* %s [%s] %s\n", tc.Kind, tc.Status, tc.Title)
		}
		c.renderDiffs(tc)
	}
}

func (c *console) renderPlan(p *acp.Plan) {
	if p == nil {
		return
	}
	fmt.Fprintln(c.out, "\nplan:")
	for _, e := range p.Entries {
		mark := " "
		switch e.Status {
		case "in_progress":
			mark = ">"
		case "completed":
			mark = "x"
		}
		fmt.Fprintf(c.out, "  [%s] %s\n", mark, e.Content)
	}
}

func (c *console) renderDiffs(tc *acp.ToolCall) {
	for _, e := range diff.EditsFromToolCall(tc) {
		fd, err := c.rec.Reconcile(e)
		if err != nil {
			c.log.Warn("reconcile %s: %v", e.Path, err)
			continue
		}
		fmt.Fprintf(c.out, "  %s\n", fd.Path)
		for _, b := range fd.Blocks {
			if b.Unanchored {
				fmt.Fprintf(c.out, "  @@ unanchored @@\n")
			} else {
				fmt.Fprintf(c.out, "  @@ %d,%d @@\n", b.StartLine, b.EndLine)
			}
			for _, line := range b.OldLines {
				fmt.Fprintf(c.out, "  - %s\n", line)
			}
			for _, line := range b.NewLines {
				fmt.Fprintf(c.out, "  + %s\n", line)
			}
		}
	}
}

func (c *console) onPermission(req acp.RequestPermissionRequest, resolve func(acp.RequestPermissionResponse)) {
	if c.autoYes {
		for _, opt := range req.Options {
			if opt.Kind.Allows() {
				c.log.Info("auto-approved %q", opt.Name)
				resolve(acp.RequestPermissionResponse{Outcome: acp.SelectedOutcome(opt.OptionID)})
				return
			}
		}
		resolve(acp.RequestPermissionResponse{Outcome: acp.CancelledOutcome()})
		return
	}

	fmt.Fprintln(c.out, "\npermission requested:")
	if req.ToolCall != nil && req.ToolCall.Title != "" {
		fmt.Fprintf(c.out, "  %s\n", req.ToolCall.Title)
	}
	for i, opt := range req.Options {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, opt.Name)
	}
	fmt.Fprint(c.out, "choose: ")
	if !c.in.Scan() {
		resolve(acp.RequestPermissionResponse{Outcome: acp.CancelledOutcome()})
		return
	}
	idx, err := strconv.Atoi(strings.TrimSpace(c.in.Text()))
	if err != nil || idx < 1 || idx > len(req.Options) {
		resolve(acp.RequestPermissionResponse{Outcome: acp.CancelledOutcome()})
		return
	}
	resolve(acp.RequestPermissionResponse{Outcome: acp.SelectedOutcome(req.Options[idx-1].OptionID)})
}
