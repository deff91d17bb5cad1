package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KafClaw/XmtpClaw/internal/agent"
	"github.com/KafClaw/XmtpClaw/internal/bus"
	"github.com/KafClaw/XmtpClaw/internal/channels"
	"github.com/KafClaw/XmtpClaw/internal/config"
	"github.com/KafClaw/XmtpClaw/internal/gateway"
	"github.com/KafClaw/XmtpClaw/internal/mirror"
	"github.com/KafClaw/XmtpClaw/internal/setup"
	"github.com/KafClaw/XmtpClaw/internal/store"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the XMTP adapter gateway",
	Run:   runGateway,
}

// unavailableGenerator stands in when no agent endpoint is configured.
type unavailableGenerator struct{}

func (unavailableGenerator) Reply(ctx context.Context, ic *bus.InboundContext) (string, error) {
	return "", agent.ErrAgentUnavailable
}

func runGateway(cmd *cobra.Command, args []string) {
	printHeader("🌐 XmtpClaw Gateway")
	fmt.Println("Starting XmtpClaw Gateway...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	svc, err := store.New(statePath(cfg))
	if err != nil {
		fmt.Printf("State store error: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	msgBus := bus.NewMessageBus()

	var generator agent.ReplyGenerator = unavailableGenerator{}
	if cfg.Agent.Endpoint != "" {
		generator = agent.NewHTTPGenerator(cfg.Agent.Endpoint, cfg.Agent.AuthToken, cfg.Agent.ReplyTimeout)
	} else {
		fmt.Println("⚠️ No agent endpoint configured; inbound messages will be dropped")
	}

	dispatcher := agent.NewDispatcher(msgBus, generator, svc, func(accountID string) int {
		if acct, ok := cfg.ResolveAccount(accountID); ok {
			return acct.ChunkSize
		}
		return 0
	})

	eventMirror := mirror.New(cfg.Mirror)
	if eventMirror != nil {
		fmt.Println("📡 Kafka event mirror enabled:", cfg.Mirror.Topic)
		defer eventMirror.Close()
		dispatcher.SetInboundObserver(eventMirror.Inbound)
		msgBus.Subscribe(channels.ChannelName, func(msg *bus.OutboundMessage) {
			eventMirror.Outbound(msg)
		})
	}

	bridgeClient := channels.NewBridgeClient(cfg.Bridge.URL, cfg.Bridge.Token)
	pairingSvc := channels.NewPairingService(svc)
	channel := channels.NewXMTPChannel(bridgeClient, cfg.ResolveAccount, pairingSvc, svc, msgBus, cfg.Agent.DefaultAgentID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := channel.Start(ctx); err != nil {
		fmt.Printf("Failed to start XMTP channel: %v\n", err)
		os.Exit(1)
	}
	defer channel.Stop()
	go dispatcher.Run(ctx)
	go msgBus.DispatchOutbound(ctx)

	setupProber := setup.LivenessProber{Dialer: channels.BridgeDialer{URL: cfg.Bridge.URL, Token: cfg.Bridge.Token}}
	setupCtrl := setup.NewController(setupProber, &setup.ConfigCommitter{Cfg: cfg})
	srv := gateway.NewServer(gateway.ControllerAdapter(setupCtrl, cfg.Paths.StateRoot, config.EnvProduction), version, cfg.Gateway.AuthToken)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", srv.Handler())
	mux.Handle("/api/v1/channels/xmtp/inbound", bridgeInboundHandler(bridgeClient, cfg.Bridge.Token))

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	runGatewayServer(ctx, addr, mux)
}

// bridgeInboundHandler accepts inbound events POSTed by the external
// node binding and injects them into the channel's event stream.
func bridgeInboundHandler(client *channels.BridgeClient, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodPost {
			writeBridgeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if token != "" {
			got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if got != token {
				writeBridgeError(w, http.StatusUnauthorized, "invalid bridge token")
				return
			}
		}
		var evt channels.InboundEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			writeBridgeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if strings.TrimSpace(evt.Sender) == "" || strings.TrimSpace(evt.ConversationID) == "" {
			writeBridgeError(w, http.StatusBadRequest, "sender and conversation_id required")
			return
		}
		if !client.Inject(evt) {
			writeBridgeError(w, http.StatusServiceUnavailable, "event stream unavailable")
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func writeBridgeError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func runGatewayServer(ctx context.Context, addr string, mux *http.ServeMux) {
	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		httpSrv.Shutdown(context.Background())
	}()

	fmt.Printf("📡 Gateway listening on http://%s\n", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Printf("Gateway server error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Gateway stopped")
}
