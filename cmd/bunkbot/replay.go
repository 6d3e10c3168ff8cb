package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/dispatch"
	"github.com/andrewgari/starbunk-js-sub002/internal/ingest"
	"github.com/andrewgari/starbunk-js-sub002/internal/logutil"
	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const maxReplayLineBytes = 1 << 20

func newReplayCmd() *cobra.Command {
	var (
		dryRun    bool
		summaries bool
	)
	cmd := &cobra.Command{
		Use:   "replay <file.jsonl>",
		Short: "Feed recorded messages (one JSON object per line) through the dispatcher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			viper.Set("plugins.path", flagOrViperString(cmd, "plugins", "plugins.path"))

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			opts := runtimeOptions{Logger: logger}
			if dryRun {
				opts.Transport = &printTransport{out: cmd.OutOrStdout()}
			}
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			if err := rt.loadPlugins(cmd.Context()); err != nil {
				return err
			}

			var sumOut io.Writer
			if summaries {
				sumOut = cmd.OutOrStdout()
			}
			n, err := replayMessages(cmd.Context(), rt.processor, f, sumOut)
			if err != nil {
				return err
			}
			logger.Info("replay_done", "messages", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print replies to stdout instead of sending them.")
	cmd.Flags().BoolVar(&summaries, "summaries", false, "Print one JSON dispatch summary per message.")
	cmd.Flags().String("plugins", "plugins", "Plugin file or directory (overrides plugins.path).")
	return cmd
}

// replayMessages processes every message in r in order. Blank lines and lines
// starting with # are skipped. When out is non-nil each summary is written to
// it as a JSON line.
func replayMessages(ctx context.Context, proc ingest.Processor, r io.Reader, out io.Writer) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxReplayLineBytes)
	var enc *json.Encoder
	if out != nil {
		enc = json.NewEncoder(out)
	}
	n := 0
	for line := 1; sc.Scan(); line++ {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var msg replybot.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if msg.SentAt.IsZero() {
			msg.SentAt = time.Now().UTC()
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		sum := proc.Process(ctx, msg)
		n++
		if enc != nil {
			if err := enc.Encode(replayRecord{Line: line, MessageID: msg.ID, Summary: sum}); err != nil {
				return n, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return n, err
	}
	return n, nil
}

type replayRecord struct {
	Line      int    `json:"line"`
	MessageID string `json:"message_id,omitempty"`
	dispatch.Summary
}

// printTransport writes replies to out instead of a chat service.
type printTransport struct {
	mu  sync.Mutex
	out io.Writer
}

func (t *printTransport) SendAsIdentity(_ context.Context, channelID string, id replybot.Identity, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.out, "[%s] %s: %s\n", channelID, id.DisplayName, text)
	return err
}

func (t *printTransport) Send(_ context.Context, channelID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.out, "[%s] (bot): %s\n", channelID, text)
	return err
}
