//go:build integration

package retention_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"auditpipe/internal/platform/kafka/producer"
	id "auditpipe/pkg/domain"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/audit/archive"
	"auditpipe/pkg/platform/audit/retention"
	"auditpipe/pkg/platform/audit/store/postgres"
	"auditpipe/pkg/testutil/containers"
)

// SweeperSuite runs the retention sweep against real Postgres, Redis and
// Redpanda.
type SweeperSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redis    *containers.RedisContainer
	kafka    *containers.KafkaContainer
	store    *postgres.Store
	producer *producer.Producer
	topic    string
}

func TestSweeperSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redis = mgr.GetRedis(s.T())
	s.kafka = mgr.GetKafka(s.T())
	s.store = postgres.New(s.postgres.DB)

	p, err := producer.New(producer.Config{Brokers: s.kafka.Brokers, Acks: "all", DeliveryTimeout: 10 * time.Second}, slog.Default())
	s.Require().NoError(err)
	s.producer = p
}

func (s *SweeperSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

func (s *SweeperSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.Reset(ctx))
	s.Require().NoError(s.redis.FlushAll(ctx))
	s.topic = "audit.archive." + uuid.NewString()
	s.Require().NoError(s.producer.EnsureTopic(ctx, s.topic, 1, 1))
}

func (s *SweeperSuite) seed(age time.Duration) audit.Event {
	e, err := audit.NewEvent().
		Actor(id.UserID(uuid.New()), "Quinn", "203.0.113.5").
		Action(audit.ActionUpdated).
		Resource(audit.ResourceProject, "p-"+uuid.NewString(), "roadmap").
		Build()
	s.Require().NoError(err)
	e.Timestamp = time.Now().UTC().Add(-age)
	s.Require().NoError(s.store.Insert(context.Background(), e))
	return e
}

func (s *SweeperSuite) sweeper() *retention.Sweeper {
	return retention.New(s.store,
		retention.WithHorizon(24*time.Hour),
		retention.WithBatchSize(2),
		retention.WithLocker(retention.NewRedisLocker(s.redis.Client)),
		retention.WithArchiver(archive.NewKafkaArchiver(s.producer, s.topic)),
	)
}

func (s *SweeperSuite) TestArchivesThenDeletesExpired() {
	ctx := context.Background()
	expired := map[string]bool{}
	for range 5 {
		expired[s.seed(48*time.Hour).ID.String()] = true
	}
	kept := s.seed(time.Hour)

	deleted, err := s.sweeper().SweepOnce(ctx)
	s.Require().NoError(err)
	s.Equal(int64(5), deleted)

	n, err := s.store.Count(ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	_, err = s.store.Get(ctx, kept.ID)
	s.Require().NoError(err)

	consumer, err := s.kafka.NewConsumer("sweeper-"+uuid.NewString(), s.topic)
	s.Require().NoError(err)
	defer consumer.Close()

	records := s.kafka.Collect(ctx, consumer, 5, 30*time.Second)
	s.Require().Len(records, 5)
	for _, r := range records {
		var rec archive.Record
		s.Require().NoError(json.Unmarshal(r.Value, &rec))
		s.True(expired[rec.ID], "archived an unexpired event")
		s.Equal(rec.ID, string(r.Key))
	}
}

func (s *SweeperSuite) TestSkipsWhileAnotherReplicaHoldsLock() {
	ctx := context.Background()
	s.seed(48 * time.Hour)

	release, err := retention.NewRedisLocker(s.redis.Client).Acquire(ctx, "auditpipe:retention:sweep", time.Minute)
	s.Require().NoError(err)
	defer func() { _ = release(ctx) }()

	deleted, err := s.sweeper().SweepOnce(ctx)
	s.Require().NoError(err)
	s.Zero(deleted)
}
