package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kafka-relay/src/broker"
	"kafka-relay/src/contracts"
	"kafka-relay/src/producer"
)

type stubPayments struct {
	err  error
	sent []contracts.Payment
}

func (s *stubPayments) SendPaymentJSON(ctx context.Context, body []byte) (broker.PublishResult, error) {
	if s.err != nil {
		return broker.PublishResult{}, s.err
	}
	p, err := contracts.DecodePayment(body)
	if err != nil {
		return broker.PublishResult{}, err
	}
	s.sent = append(s.sent, p)
	return broker.PublishResult{Topic: contracts.TopicPayments, Partition: 0, Offset: int64(len(s.sent) - 1)}, nil
}

func newTestServer(t *testing.T, cfg Config) (*Server, *stubPayments, *producer.StringService, *broker.InMemoryBroker) {
	t.Helper()
	brk := broker.NewInMemoryBroker()
	t.Cleanup(func() { brk.Close() })

	messages, err := producer.NewStringService(brk, producer.DefaultConfig(""), nil)
	require.NoError(t, err)

	payments := &stubPayments{}
	return New(cfg, payments, messages, nil), payments, messages, brk
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_StatusMapping(t *testing.T) {
	s, _, _, _ := newTestServer(t, Config{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "payment created", method: http.MethodPost, path: "/payment", body: `{"id":"p1","amount":10}`, want: http.StatusCreated},
		{name: "payment malformed", method: http.MethodPost, path: "/payment", body: `{"id":`, want: http.StatusBadRequest},
		{name: "payment without id", method: http.MethodPost, path: "/payment", body: `{"amount":10}`, want: http.StatusBadRequest},
		{name: "payment unknown field", method: http.MethodPost, path: "/payment", body: `{"id":"p1","idUser":"u1"}`, want: http.StatusBadRequest},
		{name: "payment wrong method", method: http.MethodGet, path: "/payment", want: http.StatusMethodNotAllowed},
		{name: "string created", method: http.MethodPost, path: "/producer", body: "hello", want: http.StatusCreated},
		{name: "string empty", method: http.MethodPost, path: "/producer", body: "", want: http.StatusBadRequest},
		{name: "string wrong method", method: http.MethodPut, path: "/producer", body: "x", want: http.StatusMethodNotAllowed},
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_ProducerPublishesToStringTopic(t *testing.T) {
	s, _, _, brk := newTestServer(t, Config{})

	rec := do(t, s, http.MethodPost, "/producer", "hello")
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, contracts.TopicStrings, body["topic"])
	assert.Equal(t, float64(0), body["offset"])

	msgs := brk.Messages(contracts.TopicStrings, 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", string(msgs[0].Value))
}

func TestServer_PaymentDecoded(t *testing.T) {
	s, payments, _, _ := newTestServer(t, Config{})

	rec := do(t, s, http.MethodPost, "/payment",
		`{"id":"p1","id_user":"u","id_product":"b","card_number":"4111","amount":9.5,"description":"d"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, payments.sent, 1)
	assert.Equal(t, contracts.Payment{ID: "p1", IDUser: "u", IDProduct: "b", CardNumber: "4111", Amount: 9.5, Description: "d"}, payments.sent[0])
}

func TestServer_PaymentBodyPublishedUnchanged(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()

	payments, err := producer.NewPaymentService(brk, producer.DefaultConfig(""), nil)
	require.NoError(t, err)
	s := New(Config{}, payments, nil, nil)

	body := `{"id":"p1", "id_user":"u1","amount":10}`
	rec := do(t, s, http.MethodPost, "/payment", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	msgs := brk.Messages(contracts.TopicPayments, 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, body, string(msgs[0].Value))

	// Field spellings the payment type does not know are refused, not dropped.
	rec = do(t, s, http.MethodPost, "/payment", `{"id":"p2","idUser":"u1","idProduct":"x9","cardNumber":"4111","amount":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, brk.Messages(contracts.TopicPayments, 0), 1)
}

func TestServer_OversizedPayloadIsBadRequest(t *testing.T) {
	brk := broker.NewInMemoryBroker(broker.WithMaxMessageBytes(8))
	defer brk.Close()

	payments, err := producer.NewPaymentService(brk, producer.DefaultConfig(""), nil)
	require.NoError(t, err)
	s := New(Config{}, payments, nil, nil)

	// The broker rejects the payload itself; resending it cannot help.
	rec := do(t, s, http.MethodPost, "/payment", `{"id":"p1","description":"far too long"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestServer_UpstreamUnavailable(t *testing.T) {
	s, payments, _, brk := newTestServer(t, Config{})
	payments.err = &producer.ProducerError{Kind: producer.UpstreamUnavailable, Err: errors.New("down")}

	rec := do(t, s, http.MethodPost, "/payment", `{"id":"p1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, brk.Close())
	rec = do(t, s, http.MethodPost, "/producer", "hello")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RateLimit(t *testing.T) {
	s, _, _, _ := newTestServer(t, Config{RateLimit: 1, Burst: 2})

	assert.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/producer", "a").Code)
	assert.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/producer", "b").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodPost, "/producer", "c").Code)

	// Health checks are not limited.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
}

func TestServer_UnregisteredRoute(t *testing.T) {
	s := New(Config{}, nil, &stubMessages{}, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/payment", `{"id":"p"}`).Code)
}

type stubMessages struct{}

func (stubMessages) SendMessage(ctx context.Context, message string) (broker.PublishResult, error) {
	return broker.PublishResult{}, nil
}

func TestServer_ListenAndShutdown(t *testing.T) {
	s, _, _, _ := newTestServer(t, Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Listen(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
