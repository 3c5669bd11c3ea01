package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// Envelope 佇列訊息封裝格式，data 內容由 pattern 決定
type Envelope struct {
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data"`
}

// RabbitRepo definition rabbit repo
type RabbitRepo interface {
	DeclareQueue(name string) error
	PublishEvent(queueName, pattern string, payload interface{}) error
	Consume(ctx context.Context, queueName string, handler func(pattern string, data []byte) error) error
}

type rabbitRepo struct {
	channel *amqp.Channel
}

// NewRabbitRepository create a RabbitRepository
func NewRabbitRepository(db *amqp.Channel) RabbitRepo {
	return &rabbitRepo{channel: db}
}

// ConnectRabbitMQWithRetry 嘗試連線到 RabbitMQ，並使用指數回退進行重試。
func ConnectRabbitMQWithRetry(d Connection) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for attempt := 1; attempt <= d.RetryCount; attempt++ {
		conn, err = amqp.Dial(d.ConnectStr)
		if err == nil {
			log.Printf("RabbitMQ[%s] 連線成功 (嘗試 %d 次)", d.ConnectStr, attempt)
			return conn, nil
		}

		log.Printf("RabbitMQ[%s] 連線失敗 (嘗試 %d/%d): %v", d.ConnectStr, attempt, d.RetryCount, err)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("無法連線 RabbitMQ[%s]，經過 %d 次嘗試: %v", d.ConnectStr, d.RetryCount, err)
}

// GetRabbitMQChannelWithRetry 使用已有的 RabbitMQ 連線嘗試取得 Channel
func GetRabbitMQChannelWithRetry(conn *amqp.Connection, maxRetries int, baseDelay time.Duration) (*amqp.Channel, error) {
	var ch *amqp.Channel
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ch, err = conn.Channel()
		if err == nil {
			log.Printf("RabbitMQ Channel 建立成功 (嘗試 %d 次)", attempt)
			return ch, nil
		}

		log.Printf("建立 RabbitMQ Channel 失敗 (嘗試 %d/%d): %v", attempt, maxRetries, err)
		time.Sleep(baseDelay * time.Second)
	}

	return nil, fmt.Errorf("無法取得 RabbitMQ Channel，經過 %d 次嘗試: %v", maxRetries, err)
}

// ReconnectingRabbitRepo 斷線後會自動重撥的 RabbitRepo。
// amqp 的 channel 在連線斷掉之後不會復活，所以 channel 層級的操作
// 一旦失敗就重置內部連線，下一次操作重新 Dial。
// 消費迴圈因斷線結束時，supervisor 重啟拿到的才會是活的 channel。
type ReconnectingRabbitRepo struct {
	setting Connection

	mu   sync.Mutex
	conn *amqp.Connection
	repo RabbitRepo
}

// NewReconnectingRabbitRepo create ReconnectingRabbitRepo，第一次操作時才 Dial
func NewReconnectingRabbitRepo(setting Connection) *ReconnectingRabbitRepo {
	return &ReconnectingRabbitRepo{setting: setting}
}

// acquire 取得目前的 repo，連線不在或已關閉時重撥
func (r *ReconnectingRabbitRepo) acquire() (RabbitRepo, *amqp.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil && !r.conn.IsClosed() && r.repo != nil {
		return r.repo, r.conn, nil
	}
	r.closeLocked()

	conn, err := ConnectRabbitMQWithRetry(r.setting)
	if err != nil {
		return nil, nil, err
	}
	ch, err := GetRabbitMQChannelWithRetry(conn, r.setting.RetryCount, r.setting.RetryInterval)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	r.conn = conn
	r.repo = NewRabbitRepository(ch)
	return r.repo, r.conn, nil
}

// reset 丟棄出錯的連線，只在沒有其他操作已經重撥過時才動手
func (r *ReconnectingRabbitRepo) reset(conn *amqp.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == conn {
		r.closeLocked()
	}
}

func (r *ReconnectingRabbitRepo) closeLocked() {
	if r.conn != nil {
		r.conn.Close()
	}
	r.conn = nil
	r.repo = nil
}

// Close 關閉目前的連線
func (r *ReconnectingRabbitRepo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}

// DeclareQueue 宣告 durable queue，斷線時重撥
func (r *ReconnectingRabbitRepo) DeclareQueue(name string) error {
	repo, conn, err := r.acquire()
	if err != nil {
		return err
	}
	if err := repo.DeclareQueue(name); err != nil {
		r.reset(conn)
		return err
	}
	return nil
}

// PublishEvent 發布訊息，斷線時重撥
func (r *ReconnectingRabbitRepo) PublishEvent(queueName, pattern string, payload interface{}) error {
	repo, conn, err := r.acquire()
	if err != nil {
		return err
	}
	if err := repo.PublishEvent(queueName, pattern, payload); err != nil {
		r.reset(conn)
		return err
	}
	return nil
}

// Consume 消費指定 queue
// 消費迴圈因錯誤結束代表 channel 大概率已壞，重置連線再把錯誤
// 往上丟給 supervisor，下一輪重啟會重新 Dial
func (r *ReconnectingRabbitRepo) Consume(ctx context.Context, queueName string, handler func(pattern string, data []byte) error) error {
	repo, conn, err := r.acquire()
	if err != nil {
		return err
	}
	if err := repo.Consume(ctx, queueName, handler); err != nil {
		r.reset(conn)
		return err
	}
	return nil
}

// DeclareQueue 宣告 durable queue
func (r *rabbitRepo) DeclareQueue(name string) error {
	_, err := r.channel.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // arguments
	)
	return err
}

// PublishEvent 發布 {pattern, data} 訊息到指定 queue，persistent 模式
func (r *rabbitRepo) PublishEvent(queueName, pattern string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("訊息序列化失敗: %w", err)
	}
	body, err := json.Marshal(Envelope{Pattern: pattern, Data: data})
	if err != nil {
		return fmt.Errorf("envelope 序列化失敗: %w", err)
	}

	return r.channel.Publish(
		"",        // 預設 exchange
		queueName, // queue 名稱
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume 消費指定 queue，prefetch 固定為 1，手動確認。
// handler 回傳 nil 才 ack；解析失敗或 handler 失敗一律 Nack 且不重新排隊
// （poison message 直接丟棄，保住 pipeline 的流動性）。
// delivery channel 關閉時回傳錯誤，交由上層 supervisor 重啟整個消費迴圈。
func (r *rabbitRepo) Consume(ctx context.Context, queueName string, handler func(pattern string, data []byte) error) error {
	if err := r.DeclareQueue(queueName); err != nil {
		return fmt.Errorf("queue declare [%s] 失敗: %w", queueName, err)
	}

	// 一次只處理一則訊息
	if err := r.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("設定 prefetch 失敗: %w", err)
	}

	msgs, err := r.channel.Consume(
		queueName, // queue
		"",        // consumer tag，留空由系統分配
		false,     // autoAck 為 false，使用手動確認
		false,     // exclusive
		false,     // noLocal
		false,     // noWait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("無法開始消費 [%s]: %w", queueName, err)
	}

	log.Printf("Consumer 已啟動，等待 [%s] 訊息...", queueName)

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				return errors.New("RabbitMQ 消費 channel 已關閉")
			}

			var env Envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				log.Printf("解析訊息失敗，丟棄: %v", err)
				if err := d.Nack(false, false); err != nil {
					log.Printf("Nack 訊息失敗: %v", err)
				}
				continue
			}

			if err := handler(env.Pattern, env.Data); err != nil {
				log.Printf("處理訊息失敗，丟棄: %v", err)
				if err := d.Nack(false, false); err != nil {
					log.Printf("Nack 訊息失敗: %v", err)
				}
				continue
			}

			if err := d.Ack(false); err != nil {
				log.Printf("確認訊息失敗: %v", err)
			}
		case <-ctx.Done():
			log.Printf("Consumer [%s] 收到停止訊號", queueName)
			return nil
		}
	}
}
