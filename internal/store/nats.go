package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/threadline-ai/conversation-api/internal/model"
	"github.com/threadline-ai/conversation-api/pkg/logger"
)

const (
	// streamName is the JetStream stream holding all messages.
	streamName = "MESSAGES"

	// subjectPrefix is the prefix for all message subjects.
	subjectPrefix = "conv"

	// kvBucket is the key-value bucket holding conversation records.
	kvBucket = "conversations"

	fetchBatchSize = 256
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// NATSStore is a Store backed by NATS JetStream: messages are published to
// a stream keyed by conversation, conversation records live in a JetStream
// key-value bucket.
type NATSStore struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	logger *logger.Logger
}

// ConnectNATS establishes a connection and ensures the stream and bucket
// exist.
func ConnectNATS(ctx context.Context, cfg NATSConfig, log *logger.Logger) (*NATSStore, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s := &NATSStore{conn: nc, js: js, logger: log}
	if err := s.ensureResources(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

func (s *NATSStore) ensureResources(ctx context.Context) error {
	if _, err := s.js.Stream(ctx, streamName); err != nil {
		_, err = s.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        streamName,
			Subjects:    []string{fmt.Sprintf("%s.>", subjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      365 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			Description: "All conversation messages",
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	kv, err := s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      kvBucket,
		Description: "Conversation records",
	})
	if err != nil {
		return fmt.Errorf("failed to create KV bucket: %w", err)
	}
	s.kv = kv
	return nil
}

// Close closes the NATS connection.
func (s *NATSStore) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

// Ping reports whether the NATS connection is alive.
func (s *NATSStore) Ping(ctx context.Context) error {
	if s.conn == nil || !s.conn.IsConnected() {
		return errors.New("NATS not connected")
	}
	return nil
}

func messageSubject(conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.msg.%s", subjectPrefix, conversationID, role)
}

func conversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.%s.msg.>", subjectPrefix, conversationID)
}

// CreateConversation stores a new conversation record.
func (s *NATSStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	return s.putConversation(ctx, conv)
}

func (s *NATSStore) putConversation(ctx context.Context, conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if _, err := s.kv.Put(ctx, conv.ID, data); err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	return nil
}

func (s *NATSStore) getConversation(ctx context.Context, id string) (*model.Conversation, error) {
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal(entry.Value(), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *NATSStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.getConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Deleted {
		return nil, ErrNotFound
	}
	return conv, nil
}

// ListConversations lists a user's conversations, most recently updated
// first.
func (s *NATSStore) ListConversations(ctx context.Context, userID string, page, perPage int) ([]model.Conversation, int, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	var convs []model.Conversation
	for _, k := range keys {
		conv, err := s.getConversation(ctx, k)
		if err != nil {
			continue
		}
		if conv.UserID == userID && !conv.Deleted {
			convs = append(convs, *conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	total := len(convs)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return convs[start:end], total, nil
}

// UpdateConversation applies the non-nil fields of req.
func (s *NATSStore) UpdateConversation(ctx context.Context, id string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.Model != nil {
		conv.Model = *req.Model
	}
	if req.SystemPrompt != nil {
		conv.SystemPrompt = *req.SystemPrompt
	}
	conv.UpdatedAt = time.Now()

	if err := s.putConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// DeleteConversation soft deletes a conversation record. Its messages
// remain in the stream.
func (s *NATSStore) DeleteConversation(ctx context.Context, id string) error {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.Deleted = true
	conv.UpdatedAt = time.Now()
	return s.putConversation(ctx, conv)
}

// UpdateTitle overwrites the conversation title.
func (s *NATSStore) UpdateTitle(ctx context.Context, id, title string) error {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.Title = title
	conv.UpdatedAt = time.Now()
	return s.putConversation(ctx, conv)
}

// SaveMessage publishes a message to the stream.
func (s *NATSStore) SaveMessage(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := s.js.Publish(ctx, messageSubject(msg.ConversationID, msg.Role), data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// fetchAll reads every message of a conversation through an ephemeral
// consumer.
func (s *NATSStore) fetchAll(ctx context.Context, conversationID string) ([]model.Message, error) {
	consumer, err := s.js.CreateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: conversationFilter(conversationID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var messages []model.Message
	for {
		batch, err := consumer.Fetch(fetchBatchSize, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}

		n := 0
		for raw := range batch.Messages() {
			var msg model.Message
			if err := json.Unmarshal(raw.Data(), &msg); err != nil {
				continue
			}
			messages = append(messages, msg)
			n++
		}
		if batch.Error() != nil && !errors.Is(batch.Error(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("batch error: %w", batch.Error())
		}
		if n < fetchBatchSize {
			break
		}
	}

	return messages, nil
}

// History returns all messages of a conversation in publish order.
func (s *NATSStore) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	return s.fetchAll(ctx, conversationID)
}

// ListMessages returns one page of a conversation's messages.
func (s *NATSStore) ListMessages(ctx context.Context, conversationID string, page, perPage int) ([]model.Message, int, error) {
	msgs, err := s.fetchAll(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}

	total := len(msgs)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return msgs[start:end], total, nil
}

// CountMessages returns the number of messages in a conversation.
func (s *NATSStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	msgs, err := s.fetchAll(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
