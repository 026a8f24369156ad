package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/qiminjie89/danmu/internal/danmu"
	"github.com/qiminjie89/danmu/pkg/kafka"
	"github.com/qiminjie89/danmu/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Set(zap.NewNop())
	os.Exit(m.Run())
}

func danmakuEvent(user, text string) danmu.Event {
	raw := `{"cmd":"DANMU_MSG","info":[[0,1],"` + text + `",[1001,"` + user + `"]]}`
	return danmu.Event{
		Kind:       danmu.KindDanmaku,
		Command:    "DANMU_MSG",
		Raw:        json.RawMessage(raw),
		RoomID:     12345,
		SessionID:  "s1",
		ReceivedAt: time.UnixMilli(1700000000000),
	}
}

func TestSummary(t *testing.T) {
	testCases := []struct {
		name string
		ev   danmu.Event
		want string
	}{
		{"danmaku", danmakuEvent("alice", "hello"), "alice: hello"},
		{
			"gift",
			danmu.Event{Kind: danmu.KindGift, Raw: json.RawMessage(`{"data":{"uname":"bob","giftName":"辣条","num":3,"action":"投喂"}}`)},
			"bob 投喂 辣条 x3",
		},
		{
			"enter",
			danmu.Event{Kind: danmu.KindEnter, Raw: json.RawMessage(`{"data":{"uname":"carol"}}`)},
			"carol 进入直播间",
		},
		{
			"super chat",
			danmu.Event{Kind: danmu.KindSuperChat, Raw: json.RawMessage(`{"data":{"message":"hi","price":30,"user_info":{"uname":"dave"}}}`)},
			"[SC ¥30] dave: hi",
		},
		{"popularity", danmu.Event{Kind: danmu.KindPopularity, Popularity: 42}, "人气 42"},
		{"unknown", danmu.Event{Kind: danmu.KindOther, Command: "ROOM_RANK"}, "ROOM_RANK"},
		{"malformed danmaku", danmu.Event{Kind: danmu.KindDanmaku, Command: "DANMU_MSG", Raw: json.RawMessage(`{}`)}, "DANMU_MSG"},
		{
			"retrying status",
			danmu.Event{Kind: danmu.KindStatus, Err: errors.New("eof"), Status: &danmu.Status{State: danmu.StateFailed, WillRetry: true, Attempt: 2, Delay: time.Second}},
			"failed (eof), retry #2 in 1s",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Summary(tc.ev); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, false)

	s.OnEvent(danmakuEvent("alice", "hello"))
	s.OnEvent(danmu.Event{Kind: danmu.KindOther, Command: "ROOM_RANK"})

	out := buf.String()
	if !strings.Contains(out, "alice: hello") {
		t.Errorf("output missing danmaku: %q", out)
	}
	if strings.Contains(out, "ROOM_RANK") {
		t.Errorf("unrecognized command printed without verbose: %q", out)
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewLogSink(zap.New(core))

	s.OnEvent(danmakuEvent("alice", "hello"))
	s.OnEvent(danmu.Event{Kind: danmu.KindDecodeError, Err: errors.New("bad frame")})
	s.OnEvent(danmu.Event{Kind: danmu.KindStatus, Status: &danmu.Status{State: danmu.StateLive}})

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Message != "message" || entries[0].ContextMap()["cmd"] != "DANMU_MSG" {
		t.Errorf("message entry = %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("decode error level = %s", entries[1].Level)
	}
	if entries[2].ContextMap()["state"] != "live" {
		t.Errorf("status entry = %+v", entries[2].ContextMap())
	}
}

type panicSink struct{}

func (panicSink) OnEvent(danmu.Event) { panic("boom") }

func TestMultiIsolatesPanics(t *testing.T) {
	var got []danmu.Kind
	record := danmu.SinkFunc(func(ev danmu.Event) { got = append(got, ev.Kind) })

	m := Multi{record, panicSink{}, record}
	m.OnEvent(danmu.Event{Kind: danmu.KindGift})

	if len(got) != 2 {
		t.Fatalf("delivered %d times, want 2", len(got))
	}
}

// fakeWriter 记录写入的消息，block 非空时第一次写入等待 block 关闭
type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafkago.Message
	err     error
	closed  bool
	calls   int

	block   chan struct{}
	started chan struct{} // 每次 WriteMessages 开始时通知
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{started: make(chan struct{}, 64)}
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	w.calls++
	first := w.calls == 1
	err := w.err
	w.mu.Unlock()

	w.started <- struct{}{}
	if first && w.block != nil {
		<-w.block
	}
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, msgs)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafkago.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	var all []kafkago.Message
	for _, b := range w.batches {
		all = append(all, b...)
	}
	return all
}

func (w *fakeWriter) waitWrite(t *testing.T) {
	t.Helper()
	select {
	case <-w.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for kafka write")
	}
}

func newTestKafkaSink(w *fakeWriter, batchSize int, flushInterval time.Duration, opts ...KafkaOption) *KafkaSink {
	producer := kafka.NewProducerWithWriter(&kafka.ProducerConfig{Topic: "danmu-events"}, w)
	return NewKafkaSink(producer, batchSize, flushInterval, opts...)
}

func recordText(t *testing.T, msg kafkago.Message) string {
	t.Helper()
	var rec struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		t.Fatal(err)
	}
	user, text, ok := parseDanmaku(rec.Data)
	if !ok {
		t.Fatalf("not a danmaku record: %s", msg.Value)
	}
	return user + ":" + text
}

func TestKafkaSinkBatches(t *testing.T) {
	w := newFakeWriter()
	s := newTestKafkaSink(w, 2, time.Hour)

	s.OnEvent(danmakuEvent("alice", "one"))
	s.OnEvent(danmu.Event{Kind: danmu.KindStatus, Status: &danmu.Status{State: danmu.StateLive}})
	s.OnEvent(danmakuEvent("bob", "two"))

	// 批次满后由 flushLoop 写出
	w.waitWrite(t)
	s.Close()

	msgs := w.messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if string(msgs[0].Key) != "12345" {
		t.Errorf("key = %s", msgs[0].Key)
	}

	var rec struct {
		Kind       string          `json:"kind"`
		Cmd        string          `json:"cmd"`
		RoomID     int64           `json:"room_id"`
		Data       json.RawMessage `json:"data"`
		ReceivedAt int64           `json:"received_at"`
	}
	if err := json.Unmarshal(msgs[1].Value, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Kind != "danmaku" || rec.Cmd != "DANMU_MSG" || rec.RoomID != 12345 {
		t.Errorf("record = %+v", rec)
	}
	if !strings.Contains(string(rec.Data), "two") {
		t.Errorf("data = %s", rec.Data)
	}
	if rec.ReceivedAt != 1700000000000 {
		t.Errorf("received_at = %d", rec.ReceivedAt)
	}
}

func TestKafkaSinkKeepsOrderBehindSlowWrite(t *testing.T) {
	w := newFakeWriter()
	w.block = make(chan struct{})
	s := newTestKafkaSink(w, 2, 20*time.Millisecond)

	// e1 由定时 flush 取走，写入被阻塞
	s.OnEvent(danmakuEvent("u", "e1"))
	w.waitWrite(t)

	// e2 e3 凑满一批，OnEvent 不能阻塞，也不能抢在 e1 前写出
	start := time.Now()
	s.OnEvent(danmakuEvent("u", "e2"))
	s.OnEvent(danmakuEvent("u", "e3"))
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("OnEvent blocked for %v behind a slow write", elapsed)
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(w.messages()); n != 0 {
		t.Fatalf("%d messages written while the first write was blocked", n)
	}

	close(w.block)
	s.Close()

	var got []string
	for _, m := range w.messages() {
		got = append(got, recordText(t, m))
	}
	want := []string{"u:e1", "u:e2", "u:e3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("write order = %v, want %v", got, want)
	}
}

func TestKafkaSinkCloseFlushes(t *testing.T) {
	w := newFakeWriter()
	s := newTestKafkaSink(w, 100, time.Hour, WithKinds(danmu.KindStatus))

	s.OnEvent(danmakuEvent("alice", "skipped"))
	s.OnEvent(danmu.Event{Kind: danmu.KindStatus, RoomID: 1, Status: &danmu.Status{State: danmu.StateLive}})
	s.Close()

	msgs := w.messages()
	if len(msgs) != 1 || !strings.Contains(string(msgs[0].Value), `"state":"live"`) {
		t.Fatalf("messages = %v", msgs)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestKafkaSinkWriteFailureDropsBatch(t *testing.T) {
	w := newFakeWriter()
	w.err = errors.New("broker down")
	s := newTestKafkaSink(w, 1, time.Hour)

	s.OnEvent(danmakuEvent("alice", "lost"))
	w.waitWrite(t)

	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()

	s.OnEvent(danmakuEvent("alice", "kept"))
	s.Close()

	msgs := w.messages()
	if len(msgs) != 1 || !strings.Contains(string(msgs[0].Value), "kept") {
		t.Fatalf("messages = %d", len(msgs))
	}
}

func TestKafkaSinkMsgpack(t *testing.T) {
	w := newFakeWriter()
	s := newTestKafkaSink(w, 1, time.Hour, WithEncoding(EncodingMsgpack))

	s.OnEvent(danmakuEvent("alice", "packed"))
	s.Close()

	msgs := w.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	var rec struct {
		Kind   string `msgpack:"kind"`
		RoomID int64  `msgpack:"room_id"`
		Data   []byte `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(msgs[0].Value, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Kind != "danmaku" || rec.RoomID != 12345 || !strings.Contains(string(rec.Data), "packed") {
		t.Errorf("record = %+v", rec)
	}
}
