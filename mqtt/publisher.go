package mqtt

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/chzchzchz/rxdsp/store"
	"github.com/chzchzchz/rxdsp/wsjt"
)

const topicPrefix = "rxdsp"

// Publisher pushes decoded spots and station locations to an MQTT broker.
// It also satisfies the parser's map updater so reported locators reach
// whatever sits on the other side of the broker.
type Publisher struct {
	client paho.Client
}

func clientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "rxdsp_" + hex.EncodeToString(b)
}

func NewPublisher(broker, username, password string) (*Publisher, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID())
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info("connected to mqtt broker", "broker", broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("mqtt connection lost", "err", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return &Publisher{client: client}, nil
}

func (p *Publisher) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error("could not encode mqtt payload", "topic", topic, "err", err)
		return
	}
	token := p.client.Publish(topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Warn("mqtt publish failed", "topic", topic, "err", token.Error())
		}
	}()
}

func (p *Publisher) PublishSpot(s wsjt.Spot) {
	p.publish(topicPrefix+"/spots/"+strings.ToLower(s.Mode), s)
}

type locationPayload struct {
	Callsign string `json:"callsign"`
	Locator  string `json:"locator"`
	Mode     string `json:"mode"`
	Band     string `json:"band,omitempty"`
}

// UpdateLocation implements wsjt.MapUpdater.
func (p *Publisher) UpdateLocation(callsign, locator, mode string, band *store.Band) {
	msg := locationPayload{Callsign: callsign, Locator: locator, Mode: mode}
	if band != nil {
		msg.Band = band.Name
	}
	p.publish(topicPrefix+"/map", msg)
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
