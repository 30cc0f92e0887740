package pusher

import (
	"github.com/pusher/pusher-http-go/v5"

	"pixtip/internal"
	"pixtip/internal/config"
	"pixtip/utility"
)

type Trigger interface {
	Trigger(channel string, eventName string, data interface{}) error
}

// MessagePusher forwards log messages and tip events to Pusher channels;
// implements MessageService and EventHandler
type MessagePusher struct {
	client Trigger
	logger internal.LogHandler
}

func NewPusher(conf *config.Config) (*MessagePusher, error) {
	if !conf.Pusher.Enabled {
		return nil, nil
	}
	if conf.Pusher.AppID == "" {
		return nil, utility.Err("missed AppID parameter in Pusher configuration")
	}
	if conf.Pusher.Key == "" {
		return nil, utility.Err("missed Key parameter in Pusher configuration")
	}
	if conf.Pusher.Secret == "" {
		return nil, utility.Err("missed Secret parameter in Pusher configuration")
	}
	client := &pusher.Client{
		AppID:   conf.Pusher.AppID,
		Key:     conf.Pusher.Key,
		Secret:  conf.Pusher.Secret,
		Cluster: conf.Pusher.Cluster,
		Secure:  true,
	}
	return newMessagePusher(client), nil
}

func newMessagePusher(client Trigger) *MessagePusher {
	return &MessagePusher{client: client}
}

func (p *MessagePusher) SetLogger(logger internal.LogHandler) {
	p.logger = logger
}

func (p *MessagePusher) Send(msg internal.Message) error {
	switch msg.MessageType() {
	case internal.FeatureLogMessageType:
		return p.client.Trigger(string(SystemLog), string(Call), msg)
	case internal.PaymentConfirmed, internal.PaymentRequested:
		event, ok := msg.(*internal.PaymentEvent)
		if !ok {
			return utility.Err("unexpected payment message %T", msg)
		}
		return p.client.Trigger(string(TipChannel(event.BeneficiaryId)), string(Tip), event)
	}
	return nil
}

func (p *MessagePusher) OnPaymentRequested(event *internal.PaymentEvent) {
	p.push(event)
}

func (p *MessagePusher) OnPaymentConfirmed(event *internal.PaymentEvent) {
	p.push(event)
}

// OnPaymentAlert is covered by the system log channel
func (p *MessagePusher) OnPaymentAlert(event *internal.PaymentEvent) {}

func (p *MessagePusher) push(event *internal.PaymentEvent) {
	if err := p.Send(event); err != nil && p.logger != nil {
		p.logger.Error("pusher: trigger tip event", err)
	}
}
