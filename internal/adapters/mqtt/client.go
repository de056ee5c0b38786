package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/mikey-austin/tandem/internal/adapters/mqttserver"
	"github.com/mikey-austin/tandem/internal/adapters/transport"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

// Options configures a device's MQTT link. Username is the account and
// password its token; the client id is the device id.
type Options struct {
	BrokerURL   string
	Account     string
	Token       string
	DeviceID    string
	DeviceName  string
	DeviceClass string
	TLSCA       string
	TLSCert     string
	TLSKey      string
	TopicBase   string
	Timeout     time.Duration
	Logger      *zap.Logger
}

type pahoClient interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Dialer opens MQTT links. Paho's own reconnect is disabled; the
// transport channel redials on its fixed interval instead.
type Dialer struct {
	opts      Options
	newClient func(*paho.ClientOptions) pahoClient
}

// NewDialer validates opts and returns a dialer.
func NewDialer(opts Options) (*Dialer, error) {
	if strings.TrimSpace(opts.BrokerURL) == "" {
		return nil, errors.New("broker url required")
	}
	if strings.TrimSpace(opts.Account) == "" {
		return nil, errors.New("account required")
	}
	if strings.TrimSpace(opts.DeviceID) == "" {
		return nil, errors.New("device id required")
	}
	if opts.TopicBase == "" {
		opts.TopicBase = tandem.BaseTopic
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dialer{opts: opts, newClient: func(o *paho.ClientOptions) pahoClient { return paho.NewClient(o) }}, nil
}

func (d *Dialer) presenceTopic() string {
	return tandem.TopicPresence(d.opts.TopicBase, d.opts.Account, d.opts.DeviceID)
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	c := &conn{
		log:      d.opts.Logger,
		inbox:    make(chan tandem.Envelope, 64),
		lost:     make(chan error, 1),
		upTopic:  tandem.TopicUp(d.opts.TopicBase, d.opts.Account, d.opts.DeviceID),
		presence: d.presenceTopic(),
		timeout:  d.opts.Timeout,
	}

	clientOpts := paho.NewClientOptions().AddBroker(d.opts.BrokerURL)
	clientOpts.SetClientID(d.opts.DeviceID)
	clientOpts.SetConnectTimeout(d.opts.Timeout)
	clientOpts.SetAutoReconnect(false)
	clientOpts.SetConnectRetry(false)
	clientOpts.SetCleanSession(true)
	clientOpts.SetUsername(d.opts.Account)
	clientOpts.SetPassword(d.opts.Token)
	// An empty retained will clears presence when the device drops.
	clientOpts.SetBinaryWill(c.presence, []byte{}, 1, true)
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.fail(err)
	})

	tlsConfig, err := mqttserver.TLSConfig(d.opts.TLSCA, d.opts.TLSCert, d.opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	c.client = d.newClient(clientOpts)
	if err := wait(ctx, c.client.Connect(), d.opts.Timeout); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	downTopic := tandem.TopicDownDevice(d.opts.TopicBase, d.opts.Account, d.opts.DeviceID)
	if err := wait(ctx, c.client.Subscribe(downTopic, 1, c.handle), d.opts.Timeout); err != nil {
		c.client.Disconnect(250)
		return nil, fmt.Errorf("mqtt subscribe: %w", err)
	}

	presence := tandem.Presence{
		DeviceID: d.opts.DeviceID,
		Name:     d.opts.DeviceName,
		Class:    d.opts.DeviceClass,
		TS:       time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		c.client.Disconnect(250)
		return nil, err
	}
	if err := wait(ctx, c.client.Publish(c.presence, 1, true, payload), d.opts.Timeout); err != nil {
		c.client.Disconnect(250)
		return nil, fmt.Errorf("mqtt presence: %w", err)
	}
	return c, nil
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

type conn struct {
	client   pahoClient
	log      *zap.Logger
	inbox    chan tandem.Envelope
	lost     chan error
	upTopic  string
	presence string
	timeout  time.Duration
	once     sync.Once
}

func (c *conn) handle(_ paho.Client, msg paho.Message) {
	env, err := tandem.ParseEnvelope(msg.Payload())
	if err != nil {
		c.log.Warn("dropping invalid message", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	select {
	case c.inbox <- env:
	default:
		c.log.Warn("inbox full; dropping message", zap.String("type", env.Type))
	}
}

func (c *conn) fail(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	select {
	case c.lost <- err:
	default:
	}
}

func (c *conn) Receive(ctx context.Context) (tandem.Envelope, error) {
	select {
	case env := <-c.inbox:
		return env, nil
	case err := <-c.lost:
		c.fail(err)
		return tandem.Envelope{}, err
	case <-ctx.Done():
		return tandem.Envelope{}, ctx.Err()
	}
}

func (c *conn) Send(env tandem.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	token := c.client.Publish(c.upTopic, 1, false, payload)
	if !token.WaitTimeout(c.timeout) {
		return errors.New("publish timeout")
	}
	return token.Error()
}

func (c *conn) Close() error {
	c.once.Do(func() {
		token := c.client.Publish(c.presence, 1, true, []byte{})
		token.WaitTimeout(c.timeout)
		c.client.Disconnect(250)
		c.fail(errors.New("closed"))
	})
	return nil
}
