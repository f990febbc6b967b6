package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Hub はトピック単位で SSE の購読者を管理します。
// topics は Run ゴルーチンだけが触るため、ロックは不要です。
type Hub struct {
	topics map[string]map[chan []byte]struct{}

	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan topicMessage
	stopped     chan struct{}
}

type subscription struct {
	ch    chan []byte
	topic string
	done  chan struct{}
}

type topicMessage struct {
	topic string
	msg   []byte
}

// NewHub は Hub を生成します。Run を別ゴルーチンで起動してから使ってください。
func NewHub() *Hub {
	return &Hub{
		topics:      make(map[string]map[chan []byte]struct{}),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan topicMessage, 100),
		stopped:     make(chan struct{}),
	}
}

// Run は ctx が終わるまで購読と配信を処理します。終了後の Publish や購読操作は何もしません。
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.subscribe:
			subs, ok := h.topics[s.topic]
			if !ok {
				subs = make(map[chan []byte]struct{})
				h.topics[s.topic] = subs
			}
			subs[s.ch] = struct{}{}
			close(s.done)
		case s := <-h.unsubscribe:
			if subs, ok := h.topics[s.topic]; ok {
				delete(subs, s.ch)
				if len(subs) == 0 {
					delete(h.topics, s.topic)
				}
			}
			close(s.done)
		case tm := <-h.publish:
			for ch := range h.topics[tm.topic] {
				select {
				case ch <- tm.msg:
				default:
					// 読まれていないクライアントには配信しない
				}
			}
		}
	}
}

// Publish は msg をトピックの全購読者に配信します。
func (h *Hub) Publish(topic string, msg []byte) {
	select {
	case h.publish <- topicMessage{topic: topic, msg: msg}:
	case <-h.stopped:
	}
}

// PublishJSON は v を JSON にして配信します。
func (h *Hub) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(topic, data)
	return nil
}

// Subscribe は ch をトピックの購読者として登録し、登録完了まで待ちます。
// ch はバッファ付きで用意し、不要になったら Unsubscribe してください。Hub は ch を閉じません。
func (h *Hub) Subscribe(ch chan []byte, topic string) {
	done := make(chan struct{})
	h.send(h.subscribe, subscription{ch: ch, topic: topic, done: done})
}

// Unsubscribe はトピックの購読を解除します。
func (h *Hub) Unsubscribe(ch chan []byte, topic string) {
	done := make(chan struct{})
	h.send(h.unsubscribe, subscription{ch: ch, topic: topic, done: done})
}

func (h *Hub) send(ch chan subscription, s subscription) {
	select {
	case ch <- s:
		<-s.done
	case <-h.stopped:
	}
}

// ServeSSE は ?topic= で指定したトピックのイベントを text/event-stream で送り続けます。
func (h *Hub) ServeSSE(c *gin.Context) {
	topic := c.Query("topic")
	if topic == "" {
		c.String(http.StatusBadRequest, "missing topic")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	msgCh := make(chan []byte, 16)
	h.Subscribe(msgCh, topic)
	defer h.Unsubscribe(msgCh, topic)

	ctx := c.Request.Context()
	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopped:
			return
		case msg := <-msgCh:
			fmt.Fprintf(c.Writer, "data: %s\n\n", msg)
			flusher.Flush()
			slog.DebugContext(ctx, "SSEイベントを送信しました", "topic", topic)
		}
	}
}
