// Command inbound-agent runs the voice agent that answers inbound calls
// for the mobile golf club repair service.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/livekit/protocol/auth"
	"github.com/spf13/cobra"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/agent"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/internal/worker"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/job"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/plugins/openai"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/prompt"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/room"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/voice"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:          "inbound-agent",
	Short:        "Voice agent for inbound golf club repair calls",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; the environment may be set directly.
		_ = godotenv.Load()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inbound-agent %s (%s)\n", Version, GitCommit)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Production mode: register with the dispatch server and serve calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFromFlags(cmd)
		if err != nil {
			return err
		}

		logger := setupLogger()
		logger.Info("Starting inbound agent",
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("dispatch_url", opts.dispatchURL))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runWorker(ctx, opts, logger)
	},
}

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Development mode: debug logging and prompt hot reload",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFromFlags(cmd)
		if err != nil {
			return err
		}

		os.Setenv("LOG_LEVEL", "debug")
		logger := setupLogger()
		logger.Info("Starting inbound agent in dev mode",
			slog.String("dispatch_url", opts.dispatchURL),
			slog.String("prompt", opts.promptPath))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runDev(ctx, opts, logger)
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Local text console: type caller utterances, read agent replies",
	RunE: func(cmd *cobra.Command, args []string) error {
		promptPath, _ := cmd.Flags().GetString("prompt")

		logger := setupLogger()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runConsole(ctx, promptPath, logger)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a room join token",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey, _ := cmd.Flags().GetString("api-key")
		apiSecret, _ := cmd.Flags().GetString("api-secret")
		roomName, _ := cmd.Flags().GetString("room")
		identity, _ := cmd.Flags().GetString("identity")
		validFor, _ := cmd.Flags().GetDuration("valid-for")

		if apiKey == "" {
			apiKey = os.Getenv("LIVEKIT_API_KEY")
		}
		if apiSecret == "" {
			apiSecret = os.Getenv("LIVEKIT_API_SECRET")
		}
		if apiKey == "" || apiSecret == "" {
			return fmt.Errorf("--api-key and --api-secret (or LIVEKIT_API_KEY/LIVEKIT_API_SECRET) are required")
		}
		if roomName == "" {
			return fmt.Errorf("--room is required")
		}

		at := auth.NewAccessToken(apiKey, apiSecret)
		grant := &auth.VideoGrant{
			RoomJoin: true,
			Room:     roomName,
		}
		at.AddGrant(grant).SetIdentity(identity).SetValidFor(validFor)

		jwt, err := at.ToJWT()
		if err != nil {
			return fmt.Errorf("failed to mint token: %w", err)
		}
		fmt.Println(jwt)
		return nil
	},
}

// options carries the flags shared by start and dev.
type options struct {
	dispatchURL string
	token       string
	agentName   string
	serverURL   string
	promptPath  string
}

func optionsFromFlags(cmd *cobra.Command) (options, error) {
	opts := options{}
	opts.dispatchURL, _ = cmd.Flags().GetString("url")
	opts.token, _ = cmd.Flags().GetString("token")
	opts.agentName, _ = cmd.Flags().GetString("agent-name")
	opts.serverURL, _ = cmd.Flags().GetString("server-url")
	opts.promptPath, _ = cmd.Flags().GetString("prompt")

	if opts.dispatchURL == "" {
		opts.dispatchURL = os.Getenv("DISPATCH_URL")
	}
	if opts.token == "" {
		opts.token = os.Getenv("DISPATCH_TOKEN")
	}
	if opts.serverURL == "" {
		opts.serverURL = os.Getenv("LIVEKIT_URL")
	}

	if opts.dispatchURL == "" {
		return opts, fmt.Errorf("--url or DISPATCH_URL is required")
	}
	if opts.token == "" {
		return opts, fmt.Errorf("--token or DISPATCH_TOKEN is required")
	}
	if opts.serverURL == "" {
		return opts, fmt.Errorf("--server-url or LIVEKIT_URL is required")
	}
	return opts, nil
}

// setupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
// Unknown levels fall back to info. Timestamps render as UTC ISO-8601.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "unknown LOG_LEVEL %q, using info\n", os.Getenv("LOG_LEVEL"))
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "console" {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// runWorker registers with the dispatch server and serves assigned calls
// until ctx is cancelled.
func runWorker(ctx context.Context, opts options, logger *slog.Logger) error {
	instructions, err := loadInstructions(opts.promptPath, logger)
	if err != nil {
		return err
	}

	w := worker.New(worker.Config{
		URL:       opts.dispatchURL,
		Token:     opts.token,
		AgentName: opts.agentName,
		Handler: func(callCtx context.Context, d worker.Dispatch) error {
			return serveCall(callCtx, d, opts, instructions, logger)
		},
	}, logger)

	return w.Run(ctx)
}

// runDev runs the worker and restarts it whenever the prompt file
// changes.
func runDev(ctx context.Context, opts options, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchDir := "."
	if opts.promptPath != "" {
		watchDir = filepath.Dir(opts.promptPath)
	}
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", watchDir, err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- runWorker(runCtx, opts, logger) }()

	for {
		select {
		case event := <-watcher.Events:
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			logger.Info("File modified, restarting agent", slog.String("file", event.Name))
			cancelRun()
			<-done
			runCtx, cancelRun = context.WithCancel(ctx)
			go func() { done <- runWorker(runCtx, opts, logger) }()

		case werr := <-watcher.Errors:
			logger.Error("File watcher error", slog.String("error", werr.Error()))

		case <-ctx.Done():
			cancelRun()
			return <-done

		case err := <-done:
			if err != nil {
				logger.Error("Worker stopped, restarting", slog.String("error", err.Error()))
				time.Sleep(2 * time.Second)
				runCtx, cancelRun = context.WithCancel(ctx)
				go func() { done <- runWorker(runCtx, opts, logger) }()
				continue
			}
			cancelRun()
			return nil
		}
	}
}

// serveCall handles one dispatched call end to end.
func serveCall(ctx context.Context, d worker.Dispatch, opts options, instructions string, logger *slog.Logger) error {
	callJob, err := job.New(ctx, job.Config{
		ID:             d.CallID,
		RoomName:       d.RoomName,
		CallerIdentity: d.CallerIdentity,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create call job: %w", err)
	}
	defer callJob.Shutdown("call handler finished")

	callLogger := logger.With(slog.String("job_id", callJob.ID), slog.String("room", d.RoomName))

	conn, err := room.NewConn(callJob.Context.Ctx, room.Config{
		URL:      opts.serverURL,
		Token:    d.RoomToken,
		RoomName: d.RoomName,
		Logger:   callLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to prepare room connection: %w", err)
	}
	if err := conn.Connect(room.Config{URL: opts.serverURL, Token: d.RoomToken, RoomName: d.RoomName}); err != nil {
		return fmt.Errorf("failed to join call room: %w", err)
	}

	services, err := openai.NewServicesFromEnv()
	if err != nil {
		conn.Disconnect(ctx)
		return fmt.Errorf("failed to build speech services: %w", err)
	}

	session := voice.NewSession(voice.Config{
		Instructions: instructions,
		LLM:          services.LLM,
		TTS:          services.TTS,
		Sink:         conn,
		Logger:       callLogger,
	})

	a := agent.New(agent.Config{
		TerminationPhrases: terminationPhrasesFromEnv(),
		Session:            session,
		Logger:             callLogger,
	})
	a.SetRoom(conn)

	callJob.Context.OnShutdown(func(reason string) {
		callLogger.Info("Call job shutting down", slog.String("reason", reason))
	})

	if err := a.OnEnter(callJob.Context.Ctx); err != nil {
		conn.Disconnect(ctx)
		return fmt.Errorf("call setup failed: %w", err)
	}

	for {
		select {
		case <-callJob.Context.Done():
			return a.TerminateCall(context.Background())

		case ev, ok := <-conn.Events:
			if !ok {
				return a.TerminateCall(context.Background())
			}
			switch ev.Type {
			case room.EventUtterance:
				handleUtterance(callJob.Context.Ctx, ev.Data, services, session, a, callLogger)
			case room.EventCallerLeft:
				if err := a.OnDisconnect(callJob.Context.Ctx); err != nil {
					callLogger.Error("Disconnect handling failed", slog.String("error", err.Error()))
				}
				callJob.Shutdown("caller left")
				return nil
			}
		}
	}
}

// handleUtterance transcribes one caller utterance and feeds the text to
// the agent.
func handleUtterance(ctx context.Context, data []byte, services *openai.Services, session *voice.Session, a *agent.InboundAgent, logger *slog.Logger) {
	frame := media.NewAudioFrame(data, media.FormatPCM16kHzMono)
	rec, err := services.STT.Recognize(ctx, frame)
	if err != nil {
		logger.Error("Transcription failed", slog.String("error", err.Error()))
		return
	}
	if strings.TrimSpace(rec.Text) == "" {
		return
	}

	session.AddUserTurn(rec.Text)
	a.OnUserInput(ctx, rec.Text)
}

// runConsole drives the agent from stdin for local testing: each line is
// treated as a recognized caller utterance.
func runConsole(ctx context.Context, promptPath string, logger *slog.Logger) error {
	instructions, err := loadInstructions(promptPath, logger)
	if err != nil {
		return err
	}

	services, err := openai.NewServicesFromEnv()
	if err != nil {
		return fmt.Errorf("failed to build speech services: %w", err)
	}

	// Text only; replies print instead of playing.
	session := voice.NewSession(voice.Config{
		Instructions: instructions,
		LLM:          services.LLM,
		Logger:       logger,
	})

	a := agent.New(agent.Config{
		TerminationPhrases: terminationPhrasesFromEnv(),
		Session:            session,
		Logger:             logger,
	})

	if err := a.OnEnter(ctx); err != nil {
		return err
	}
	printLastReply(session)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			session.AddUserTurn(line)
			a.OnUserInput(ctx, line)
			printLastReply(session)
		}
		if a.State() == agent.StateEnded || a.State() == agent.StateError {
			return nil
		}
		fmt.Print("> ")
	}
	return a.OnDisconnect(ctx)
}

func printLastReply(session *voice.Session) {
	history := session.History()
	if len(history) == 0 {
		return
	}
	last := history[len(history)-1]
	if last.Role == "assistant" {
		fmt.Printf("agent: %s\n", last.Content)
	}
}

// loadInstructions reads the agent prompt. A missing or unreadable file is
// logged and the agent runs with empty instructions rather than refusing to
// start.
func loadInstructions(path string, logger *slog.Logger) (string, error) {
	if path == "" {
		path = filepath.Join("prompts", "basic_prompt.md")
	}
	instructions, err := prompt.Load(path)
	if err != nil {
		logger.Error("Failed to load prompt, continuing without instructions",
			slog.String("path", path), slog.String("error", err.Error()))
		return "", nil
	}
	logger.Info("Loaded prompt", slog.String("path", path), slog.Int("length", len(instructions)))
	return instructions, nil
}

func terminationPhrasesFromEnv() []string {
	raw := os.Getenv("TERMINATION_PHRASES")
	if raw == "" {
		return nil
	}
	var phrases []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}

func init() {
	for _, cmd := range []*cobra.Command{startCmd, devCmd} {
		cmd.Flags().String("url", "", "Dispatch server WebSocket URL (or DISPATCH_URL)")
		cmd.Flags().String("token", "", "Dispatch server token (or DISPATCH_TOKEN)")
		cmd.Flags().String("server-url", "", "LiveKit server URL for call rooms (or LIVEKIT_URL)")
		cmd.Flags().String("agent-name", "inbound-agent", "Agent name announced to the dispatcher")
		cmd.Flags().String("prompt", "", "Prompt file (.md or .yaml); defaults to prompts/basic_prompt.md")
	}
	consoleCmd.Flags().String("prompt", "", "Prompt file (.md or .yaml); defaults to prompts/basic_prompt.md")

	tokenCmd.Flags().String("api-key", "", "LiveKit API key")
	tokenCmd.Flags().String("api-secret", "", "LiveKit API secret")
	tokenCmd.Flags().String("room", "", "Room name the token grants access to")
	tokenCmd.Flags().String("identity", "inbound-agent", "Participant identity")
	tokenCmd.Flags().Duration("valid-for", 6*time.Hour, "Token validity window")

	rootCmd.AddCommand(versionCmd, startCmd, devCmd, consoleCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
