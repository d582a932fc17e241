package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/websock/ws"
	"github.com/websock/ws/wsutil"
)

var (
	serverAddr  string
	agentName   string
	configPath  string
	casesFilter []int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run fuzzing server cases",
	Long: `Connects to the Autobahn fuzzing server, runs every test case by echoing
received messages back, and asks the server to update its reports.`,
	Example: `  # Run all cases against local fuzzing server
  wsautobahn run --server ws://localhost:9001

  # Run selected cases with client options from file
  wsautobahn run --cases 1,2,3 --config client.yaml --log-level debug`,
	RunE: runCases,
}

func init() {
	runCmd.Flags().StringVar(&serverAddr, "server", "ws://localhost:9001", "Fuzzing server url")
	runCmd.Flags().StringVar(&agentName, "agent", "websock", "Agent name reported to the server")
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML file with client options")
	runCmd.Flags().IntSliceVar(&casesFilter, "cases", nil, "Case numbers to run (all if empty)")
}

func runCases(cmd *cobra.Command, _ []string) error {
	log, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts := &wsutil.Options{}
	if configPath != "" {
		if opts, err = wsutil.LoadOptions(configPath); err != nil {
			return err
		}
	}
	opts.Logger = log.Named("conn")

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	a := autobahn{
		base:  serverAddr,
		agent: agentName,
		opts:  opts,
		log:   log,
	}
	cases := casesFilter
	if len(cases) == 0 {
		n, err := a.caseCount(ctx)
		if err != nil {
			return err
		}
		log.Info("fuzzing server cases", zap.Int("count", n))
		for i := 1; i <= n; i++ {
			cases = append(cases, i)
		}
	}
	for _, i := range cases {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.runCase(ctx, i)
	}
	return a.updateReports(ctx)
}

type autobahn struct {
	base  string
	agent string
	opts  *wsutil.Options
	log   *zap.Logger
}

func (a autobahn) url(path string, query url.Values) string {
	u := a.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (a autobahn) caseCount(ctx context.Context) (int, error) {
	conn, err := wsutil.Dial(ctx, a.url("/getCaseCount", nil), a.opts)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	msg, err := conn.Recv()
	if err != nil {
		return 0, fmt.Errorf("receive case count: %w", err)
	}
	n, err := strconv.Atoi(msg.Text())
	if err != nil {
		return 0, fmt.Errorf("malformed case count %q: %w", msg.Text(), err)
	}
	return n, nil
}

// runCase echoes every data message back until the server closes the
// connection. Failures are logged only: the server judges the behavior.
func (a autobahn) runCase(ctx context.Context, i int) {
	log := a.log.With(zap.Int("case", i))
	conn, err := wsutil.Dial(ctx, a.url("/runCase", url.Values{
		"case":  {strconv.Itoa(i)},
		"agent": {a.agent},
	}), a.opts)
	if err != nil {
		log.Error("dial case", zap.Error(err))
		return
	}
	for {
		msg, err := conn.Recv()
		if err != nil {
			if !errors.Is(err, ws.ErrConnectionClosed) {
				log.Info("case failed", zap.Error(err))
			}
			return
		}
		if msg.OpCode == ws.OpClose {
			log.Debug("case done",
				zap.Uint16("code", uint16(msg.Code)),
				zap.String("reason", msg.Reason),
			)
			return
		}
		if _, err := conn.Send(msg.Payload, msg.OpCode, true); err != nil {
			log.Info("echo failed", zap.Error(err))
			return
		}
	}
}

func (a autobahn) updateReports(ctx context.Context) error {
	conn, err := wsutil.Dial(ctx, a.url("/updateReports", url.Values{
		"agent": {a.agent},
	}), a.opts)
	if err != nil {
		return err
	}
	// Server closes the connection as soon as reports are written.
	for {
		msg, err := conn.Recv()
		if err != nil {
			if errors.Is(err, ws.ErrConnectionClosed) {
				return nil
			}
			return err
		}
		if msg.OpCode == ws.OpClose {
			a.log.Info("reports updated", zap.String("agent", a.agent))
			return nil
		}
	}
}
