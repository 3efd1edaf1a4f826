//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/adapter/ledger"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/adapter/order"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/resource"
	parkingEvents "github.com/Kilat-Pet-Delivery/service-parking/internal/events"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/lock"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/clock"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/database"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/kafka"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/repository"
)

const (
	bookingTopic  = "parking.booking.events"
	approvalTopic = "parking.approval.events"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	Redis        *redis.Client
	KafkaBrokers []string
	Cleanup      func()
}

// parkingStack holds wired-up parking service components.
type parkingStack struct {
	Lifecycle *application.LifecycleService
	Triggers  *application.TimeTrigger
	Consumer  *parkingEvents.ApprovalConsumer
	Ledger    *ledger.GormLedger
	Orders    *order.SandboxAdapter
	Resources *repository.GormResourceRepository
	Bookings  *repository.GormBookingRepository
	Clock     *clock.MockClock
	Cleanup   func()
}

// setupContainers starts PostgreSQL, Redis and Kafka testcontainers and applies the SQL migrations.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_parking",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbConfig := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_parking",
		SSLMode:  "disable",
	}

	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = database.Connect(dbConfig, log)
		return err == nil
	}, 30*time.Second, time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(dbConfig.DatabaseURL(), "migrations", log))

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")

	redisEndpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: redisEndpoint})

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, bookingTopic, approvalTopic)

	cleanup := func() {
		_ = redisClient.Close()
		for name, c := range map[string]testcontainers.Container{
			"Kafka":      kafkaContainer,
			"Redis":      redisContainer,
			"PostgreSQL": pgContainer,
		} {
			if err := c.Terminate(ctx); err != nil {
				t.Logf("failed to terminate %s container: %v", name, err)
			}
		}
	}

	return &testInfra{
		DB:           db,
		Redis:        redisClient,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupParkingStack wires the service the way cmd/server does, with the sandbox order
// adapter and a settable clock.
func setupParkingStack(t *testing.T, infra *testInfra, now time.Time) *parkingStack {
	t.Helper()
	log, _ := zap.NewDevelopment()

	clk := clock.NewMockClock(now)
	bookingRepo := repository.NewGormBookingRepository(infra.DB)
	resourceRepo := repository.NewGormResourceRepository(infra.DB)
	orders := order.NewSandboxAdapter(log)
	gormLedger := ledger.NewGormLedger(infra.DB, log)
	producer := kafka.NewProducer(infra.KafkaBrokers, log)

	engine, err := application.NewSettlementEngine(
		repository.NewGormSettlementRunRepository(infra.DB),
		orders,
		gormLedger,
		1500,
		clk,
		log,
	)
	require.NoError(t, err)

	lifecycle, err := application.NewLifecycleService(
		bookingRepo,
		resourceRepo,
		orders,
		engine,
		lock.NewRedisLocker(infra.Redis, 5*time.Second, log),
		parkingEvents.NewKafkaPublisher(producer, bookingTopic),
		clk,
		60*time.Minute,
		log,
	)
	require.NoError(t, err)

	groupID := fmt.Sprintf("test-parking-%s", uuid.New().String()[:8])
	consumer := parkingEvents.NewApprovalConsumer(infra.KafkaBrokers, groupID, approvalTopic, lifecycle, log)

	return &parkingStack{
		Lifecycle: lifecycle,
		Triggers:  application.NewTimeTrigger(bookingRepo, lifecycle, log),
		Consumer:  consumer,
		Ledger:    gormLedger,
		Orders:    orders,
		Resources: resourceRepo,
		Bookings:  bookingRepo,
		Clock:     clk,
		Cleanup: func() {
			_ = consumer.Close()
			_ = producer.Close()
		},
	}
}

// seedResource inserts an active parking space owned by ownerID.
func seedResource(t *testing.T, repo *repository.GormResourceRepository, ownerID uuid.UUID, hourlyRateCents int64) *resource.Resource {
	t.Helper()
	now := time.Now().UTC()
	res := resource.ReconstructResource(uuid.New(), ownerID, "Bay "+uuid.NewString()[:4], hourlyRateCents, "MYR", true, now, now)
	require.NoError(t, repo.Upsert(context.Background(), res), "failed to seed resource")
	return res
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data interface{}) {
	t.Helper()
	producer := kafka.NewProducer(brokers, zap.NewNop())
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	require.NoError(t, producer.PublishEvent(context.Background(), topic, ce), "failed to publish event")
}

// waitForBookingStatus polls the bookings table until the status matches.
func waitForBookingStatus(t *testing.T, db *gorm.DB, bookingID uuid.UUID, expectedStatus string, timeout time.Duration) repository.BookingModel {
	t.Helper()
	var result repository.BookingModel
	require.Eventually(t, func() bool {
		var model repository.BookingModel
		if err := db.Where("id = ?", bookingID).First(&model).Error; err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "booking did not transition to %s", expectedStatus)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type for subject.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType, subject string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     fmt.Sprintf("test-assert-%s", uuid.New().String()[:8]),
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType && ce.Subject == subject {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	require.NoError(t, controllerConn.CreateTopics(topicConfigs...), "failed to create Kafka topics")

	time.Sleep(1 * time.Second)
}
