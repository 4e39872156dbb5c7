package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nadzzz/aryad/internal/audio"
	"github.com/nadzzz/aryad/internal/audio/mic"
	"github.com/nadzzz/aryad/internal/message"
	"github.com/nadzzz/aryad/internal/observe"
)

const chatHelp = `commands:
  /mode chat                 converse with the assistant
  /mode interpreter <lang>   translate everything into <lang>
  /reset                     forget the conversation
  /record                    speak a message, Enter stops the recording
  /quit                      leave`

// chatService is the part of the assistant the REPL drives.
type chatService interface {
	Handle(ctx context.Context, msg *message.Message) (*message.Result, error)
	SetMode(ctx context.Context, source, mode, targetLanguage string) error
	Reset(ctx context.Context, source string) error
}

// repl is the interactive chat loop. record and play may be nil when no
// audio device is available.
type repl struct {
	svc    chatService
	source string
	in     *bufio.Scanner
	out    io.Writer
	record func(ctx context.Context) ([]byte, error)
	play   func(ctx context.Context, wav []byte) error
}

func newChatCmd(flags *rootFlags) *cobra.Command {
	var (
		source  string
		noAudio bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := newPipeline(ctx, cfg, nil, observe.Default())
			if err != nil {
				return err
			}
			defer p.Close()

			r := &repl{
				svc:    p,
				source: source,
				in:     bufio.NewScanner(cmd.InOrStdin()),
				out:    cmd.OutOrStdout(),
			}
			if !noAudio {
				if err := mic.Init(); err != nil {
					slog.Warn("audio devices unavailable, /record disabled", "error", err)
				} else {
					defer mic.Terminate()
					r.record = func(ctx context.Context) ([]byte, error) {
						rec, err := mic.Capture(ctx, audio.NewRecorder(cfg.Recorder.SampleRate, cfg.Recorder.Channels))
						if err != nil {
							return nil, err
						}
						return rec.WAV()
					}
					r.play = mic.Play
				}
			}
			return r.run(ctx)
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "session name")
	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "do not open microphone or speakers")
	return cmd
}

// run reads lines until /quit, end of input or ctx is cancelled.
func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, "aryad chat, /help lists commands")
	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			r.send(ctx, message.New(r.source, line))
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(r.out, chatHelp)
		case "/reset":
			if err := r.svc.Reset(ctx, r.source); err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(r.out, "conversation cleared")
		case "/mode":
			r.setMode(ctx, fields[1:])
		case "/record":
			r.recordTurn(ctx)
		default:
			fmt.Fprintf(r.out, "unknown command %s\n%s\n", fields[0], chatHelp)
		}
	}
}

func (r *repl) setMode(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(r.out, "usage: /mode chat | /mode interpreter <lang>")
		return
	}
	target := ""
	if len(args) > 1 {
		target = strings.Join(args[1:], " ")
	}
	if err := r.svc.SetMode(ctx, r.source, args[0], target); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if target != "" {
		fmt.Fprintf(r.out, "mode: %s (%s)\n", args[0], target)
		return
	}
	fmt.Fprintf(r.out, "mode: %s\n", args[0])
}

func (r *repl) recordTurn(ctx context.Context) {
	if r.record == nil {
		fmt.Fprintln(r.out, "recording is not available")
		return
	}
	fmt.Fprintln(r.out, "recording... press Enter to stop")

	rctx, cancel := context.WithCancel(ctx)
	type captured struct {
		wav []byte
		err error
	}
	done := make(chan captured, 1)
	go func() {
		wav, err := r.record(rctx)
		done <- captured{wav, err}
	}()
	r.in.Scan()
	cancel()

	c := <-done
	if c.err != nil {
		fmt.Fprintf(r.out, "error: %v\n", c.err)
		return
	}
	msg := &message.Message{Audio: c.wav, ContentType: "audio/wav"}
	msg.Normalize(r.source)
	r.send(ctx, msg)
}

func (r *repl) send(ctx context.Context, msg *message.Message) {
	res, err := r.svc.Handle(ctx, msg)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if res.Transcript != "" {
		if res.Language != "" {
			fmt.Fprintf(r.out, "you [%s]: %s\n", res.Language, res.Transcript)
		} else {
			fmt.Fprintf(r.out, "you: %s\n", res.Transcript)
		}
	}
	if res.Error != "" {
		fmt.Fprintf(r.out, "aryad: %s\n", res.Error)
		return
	}
	if res.ResponseText != "" {
		fmt.Fprintf(r.out, "aryad: %s\n", res.ResponseText)
	}
	if r.play == nil || res.ResponseAudio == "" {
		return
	}
	wav, err := res.ResponseAudioBytes()
	if err == nil {
		err = r.play(ctx, wav)
	}
	if err != nil {
		slog.Warn("playing reply failed", "error", err)
	}
}
