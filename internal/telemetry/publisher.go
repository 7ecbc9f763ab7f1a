package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"beamview/internal/session"
)

// Config は MQTT 配信設定
type Config struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker"`       // host:port
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         byte          `yaml:"qos"`
	MinInterval time.Duration `yaml:"min_interval"` // カメラごとの最小送信間隔
	QueueSize   int           `yaml:"queue_size"`
}

// DefaultConfig はデフォルトの配信設定を返す
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Broker:      "localhost:1883",
		ClientID:    "beamview",
		TopicPrefix: "beamview",
		QoS:         0,
		MinInterval: time.Second,
		QueueSize:   64,
	}
}

// publishClient は配信に必要な MQTT クライアントの操作
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Stats は配信の統計情報
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
	Connected bool   `json:"connected"`
}

// Publisher はビーム統計を非同期に配信する
type Publisher struct {
	client publishClient
	config Config
	logger *zap.Logger

	queue chan session.Readout
	last  map[string]time.Time
	mu    sync.Mutex

	published atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64
	connected atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Connect はブローカーに接続して配信を開始する
func Connect(ctx context.Context, config Config, logger *zap.Logger) (*Publisher, error) {
	p := newPublisher(nil, config, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", config.Broker))
	opts.SetClientID(config.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		p.connected.Store(true)
		p.logger.Info("MQTTブローカーに接続しました", zap.String("broker", config.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.connected.Store(false)
		p.logger.Warn("MQTT接続が切断されました。自動再接続を待機します", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("MQTT接続がタイムアウトしました: %s", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT接続に失敗: %w", err)
	}

	p.client = client
	p.connected.Store(true)
	p.start()
	return p, nil
}

func newPublisher(client publishClient, config Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	return &Publisher{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "telemetry")),
		queue:  make(chan session.Readout, config.QueueSize),
		last:   make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}
}

func (p *Publisher) start() {
	p.wg.Add(1)
	go p.run()
}

// PublishStats は統計情報を配信キューに積む。ブロックしない
func (p *Publisher) PublishStats(r session.Readout) {
	key := r.Serial
	if key == "" {
		key = r.CameraID
	}

	p.mu.Lock()
	if last, ok := p.last[key]; ok && r.Timestamp.Sub(last) < p.config.MinInterval {
		p.mu.Unlock()
		return
	}
	p.last[key] = r.Timestamp
	p.mu.Unlock()

	select {
	case p.queue <- r:
	default:
		p.dropped.Add(1)
	}
}

// run は配信ゴルーチン
func (p *Publisher) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case r := <-p.queue:
			if err := p.send(r); err != nil {
				p.errors.Add(1)
				p.logger.Warn("統計情報の配信に失敗しました", zap.String("serial", r.Serial), zap.Error(err))
			}
		}
	}
}

// Topic はカメラの統計トピックを返す
func (p *Publisher) Topic(serial string) string {
	return fmt.Sprintf("%s/%s/stats", p.config.TopicPrefix, serial)
}

func (p *Publisher) send(r session.Readout) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("統計情報のシリアライズに失敗: %w", err)
	}

	token := p.client.Publish(p.Topic(r.Serial), p.config.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("配信がタイムアウトしました")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("配信に失敗: %w", err)
	}

	p.published.Add(1)
	return nil
}

// Stats は配信の統計情報を返す
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Errors:    p.errors.Load(),
		Connected: p.connected.Load(),
	}
}

// Close は配信を停止して切断する
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		if p.client != nil {
			p.client.Disconnect(250)
		}
		p.connected.Store(false)
	})
}
