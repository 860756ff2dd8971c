package publish

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eclipse/paho.golang/paho"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newSample(i int) sample.Sample {
	return sample.Sample{
		Timestamp:      baseTime.Add(time.Duration(i) * 2 * time.Second),
		TemperatureF:   70 + float64(i),
		HumidityPct:    40,
		PressureHPa:    1013.25,
		ECO2PPM:        400 + int64(i),
		TVOCPPB:        10,
		IlluminanceLux: 120.5,
		UVIndex:        sample.UVLow,
	}
}

func decode(t *testing.T, data string) sample.Sample {
	t.Helper()

	var s sample.Sample
	require.NoError(t, json.Unmarshal([]byte(data), &s))
	return s
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	p, err := NewRedisPublisher(ctx, &RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:", RecentSize: 3})
	require.NoError(t, err)
	defer p.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, p.Publish(ctx, newSample(i)))
	}

	latest, err := mr.Get("test:latest")
	require.NoError(t, err)
	require.Equal(t, newSample(5), decode(t, latest))

	recent, err := mr.List("test:recent")
	require.NoError(t, err)
	require.Len(t, recent, 3)
	for i, want := range []int{5, 4, 3} {
		require.Equal(t, newSample(want), decode(t, recent[i]))
	}
}

func TestRedisPublisher_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewRedisPublisher(ctx, &RedisConfig{Addr: addr})
	require.Error(t, err)
}

func TestRedisConfig_Validate(t *testing.T) {
	require.Error(t, (&RedisConfig{}).Validate())
	require.Error(t, (&RedisConfig{Addr: "localhost:6379", RecentSize: -1}).Validate())
	require.NoError(t, (&RedisConfig{Addr: "localhost:6379"}).Validate())
}

func freeAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// startBroker spins up an in-process MQTT broker
func startBroker(t *testing.T) string {
	t.Helper()

	addr := freeAddr(t)
	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { _ = broker.Close() })

	return addr
}

func subscribe(ctx context.Context, t *testing.T, addr, topic string) <-chan *paho.Publish {
	t.Helper()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	require.NoError(t, err)

	received := make(chan *paho.Publish, 10)
	client := paho.NewClient(paho.ClientConfig{
		ClientID: "subscriber",
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				received <- pr.Packet
				return true, nil
			},
		},
	})

	_, err = client.Connect(ctx, &paho.Connect{ClientID: "subscriber", KeepAlive: 5, CleanStart: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(&paho.Disconnect{}) })

	_, err = client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
	})
	require.NoError(t, err)

	return received
}

func TestMQTTPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addr := startBroker(t)
	received := subscribe(ctx, t, addr, "test/samples")

	p, err := NewMQTTPublisher(ctx, &MQTTConfig{Broker: addr, ClientID: "monitor", Topic: "test/samples", QoS: 1})
	require.NoError(t, err)
	defer p.Close()

	want := newSample(1)
	require.NoError(t, p.Publish(ctx, want))

	select {
	case msg := <-received:
		require.Equal(t, "test/samples", msg.Topic)
		require.Equal(t, want, decode(t, string(msg.Payload)))
	case <-ctx.Done():
		t.Fatal("sample was not delivered")
	}

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestMQTTConfig_Validate(t *testing.T) {
	require.Error(t, (&MQTTConfig{}).Validate())
	require.Error(t, (&MQTTConfig{Broker: "localhost:1883", QoS: 2}).Validate())
	require.NoError(t, (&MQTTConfig{Broker: "localhost:1883", QoS: 1}).Validate())
}
