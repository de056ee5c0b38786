package embeddedmqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mikey-austin/tandem/internal/adapters/mqttserver"
	"github.com/mikey-austin/tandem/pkg/tandem"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the embedded MQTT broker.
type Config struct {
	Listen         string
	AllowAnonymous bool
	// Username and Password are the coordinator's own login, which may
	// read and write every account.
	Username  string
	Password  string
	TopicBase string
	// Accounts maps account names to device tokens. Devices log in with
	// the account as username and are confined to its topics.
	Accounts map[string]string
	TLSCA    string
	TLSCert  string
	TLSKey   string
}

// Module runs an embedded MQTT broker.
type Module struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
}

// NewModule creates a new embedded broker module.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:1883"
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = tandem.BaseTopic
	}

	server, err := newServer(log, cfg)
	if err != nil {
		return nil, err
	}
	return &Module{log: log, server: server, config: cfg}, nil
}

// Run starts the embedded broker.
func (m *Module) Run(ctx context.Context) error {
	listenerConfig := listeners.Config{ID: "tcp-embedded", Address: m.config.Listen}
	if m.config.TLSCert != "" || m.config.TLSKey != "" || m.config.TLSCA != "" {
		tlsConfig, err := mqttserver.TLSConfig(m.config.TLSCA, m.config.TLSCert, m.config.TLSKey)
		if err != nil {
			return err
		}
		listenerConfig.TLSConfig = tlsConfig
	}

	listener := listeners.NewTCP(listenerConfig)
	if err := m.server.AddListener(listener); err != nil {
		return err
	}

	go func() {
		_ = m.server.Serve()
	}()
	m.log.Info("embedded broker listening", zap.String("listen", m.config.Listen), zap.Int("accounts", len(m.config.Accounts)))

	<-ctx.Done()
	m.server.Close()
	return nil
}

func newServer(log *zap.Logger, cfg Config) (*mqtt.Server, error) {
	options := &mqtt.Options{InlineClient: true, Logger: newSlogLogger(log)}
	server := mqtt.New(options)

	if cfg.AllowAnonymous {
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, err
		}
		return server, nil
	}
	if cfg.Username == "" && len(cfg.Accounts) == 0 {
		return nil, errors.New("embedded mqtt requires allow_anonymous, username or accounts")
	}
	if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger(cfg)}); err != nil {
		return nil, err
	}
	return server, nil
}

// ledger grants the coordinator login everything and confines each
// account to its own topic tree.
func ledger(cfg Config) *auth.Ledger {
	topicBase := cfg.TopicBase
	if topicBase == "" {
		topicBase = tandem.BaseTopic
	}
	l := &auth.Ledger{}
	if cfg.Username != "" {
		l.Auth = append(l.Auth, auth.AuthRule{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true})
		l.ACL = append(l.ACL, auth.ACLRule{Username: auth.RString(cfg.Username), Filters: auth.Filters{auth.RString("#"): auth.ReadWrite}})
	}

	names := make([]string, 0, len(cfg.Accounts))
	for name := range cfg.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == cfg.Username {
			continue
		}
		l.Auth = append(l.Auth, auth.AuthRule{Username: auth.RString(name), Password: auth.RString(cfg.Accounts[name]), Allow: true})
		l.ACL = append(l.ACL, auth.ACLRule{
			Username: auth.RString(name),
			Filters: auth.Filters{
				auth.RString(tandem.TopicAccountFilter(topicBase, name)): auth.ReadWrite,
				auth.RString(topicBase + "/#"):                           auth.Deny,
			},
		})
	}
	return l
}

func newSlogLogger(logger *zap.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return slog.New(&zapSlogHandler{logger: logger})
}

// zapSlogHandler forwards the broker's slog records to zap.
type zapSlogHandler struct {
	logger *zap.Logger
	attrs  []slog.Attr
}

func (h *zapSlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.Core().Enabled(zapLevel(level))
}

func (h *zapSlogHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zap.Field, 0, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		fields = append(fields, slogAttrToField(attr))
	}
	closed := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "error" && isConnectionClose(attr.Value) {
			closed = true
		}
		fields = append(fields, slogAttrToField(attr))
		return true
	})
	// Routine device disconnects.
	if closed {
		h.logger.Debug("embedded mqtt connection closed", fields...)
		return nil
	}
	if ce := h.logger.Check(zapLevel(record.Level), record.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func isConnectionClose(value slog.Value) bool {
	msg := ""
	switch value.Kind() {
	case slog.KindString:
		msg = value.String()
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			msg = err.Error()
		}
	}
	return msg == "EOF" || strings.Contains(msg, "read connection: EOF")
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func (h *zapSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	next = append(next, attrs...)
	return &zapSlogHandler{logger: h.logger, attrs: next}
}

func (h *zapSlogHandler) WithGroup(name string) slog.Handler {
	return &zapSlogHandler{logger: h.logger.Named(name), attrs: h.attrs}
}

func slogAttrToField(attr slog.Attr) zap.Field {
	switch attr.Value.Kind() {
	case slog.KindString:
		return zap.String(attr.Key, attr.Value.String())
	case slog.KindInt64:
		return zap.Int64(attr.Key, attr.Value.Int64())
	case slog.KindUint64:
		return zap.Uint64(attr.Key, attr.Value.Uint64())
	case slog.KindFloat64:
		return zap.Float64(attr.Key, attr.Value.Float64())
	case slog.KindBool:
		return zap.Bool(attr.Key, attr.Value.Bool())
	case slog.KindDuration:
		return zap.Duration(attr.Key, attr.Value.Duration())
	default:
		return zap.Any(attr.Key, attr.Value.Any())
	}
}

// BrokerURL returns the broker URL for a listen address.
func BrokerURL(listen string, tlsEnabled bool) string {
	scheme := "mqtt"
	if tlsEnabled {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s", scheme, listen)
}
