package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/auracast/auracast/internal/observation"
)

// Sink receives the aligned master rows after each alignment.
type Sink interface {
	Publish(ctx context.Context, rows []observation.Aligned) error
	Close() error
}

// AlignedMessage is the JSON body published for each aligned row.
type AlignedMessage struct {
	Datetime           *time.Time `json:"datetime"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	Density            *float64   `json:"pollutant_density"`
	Temperature        *float64   `json:"current_temp_C"`
	WindSpeed          *float64   `json:"current_wind_speed_m_s"`
	WindDirection      *float64   `json:"current_wind_direction_deg"`
	NearestGroundValue *float64   `json:"nearest_ground_value"`
	DistanceKm         *float64   `json:"distance_km_to_ground"`
}

// KafkaSink publishes aligned rows to a Kafka topic.
type KafkaSink struct {
	writer *kafkago.Writer
	batch  int
}

// KafkaSinkConfig configures a KafkaSink.
type KafkaSinkConfig struct {
	Brokers   []string
	Topic     string
	BatchSize int
}

// NewKafkaSink creates a producer for the configured topic.
func NewKafkaSink(cfg KafkaSinkConfig) *KafkaSink {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &KafkaSink{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
			BatchSize:    batch,
		},
		batch: batch,
	}
}

// Publish writes rows in chunks of the configured batch size.
func (s *KafkaSink) Publish(ctx context.Context, rows []observation.Aligned) error {
	for start := 0; start < len(rows); start += s.batch {
		end := min(start+s.batch, len(rows))
		msgs := make([]kafkago.Message, 0, end-start)
		for _, r := range rows[start:end] {
			msg, err := toMessage(r)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish aligned rows: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the producer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// toMessage keys each row by its coordinates so a grid cell always lands on
// the same partition.
func toMessage(r observation.Aligned) (kafkago.Message, error) {
	data, err := json.Marshal(AlignedMessage{
		Datetime:           r.Datetime,
		Latitude:           r.Lat,
		Longitude:          r.Lon,
		Density:            r.Density,
		Temperature:        r.Temperature,
		WindSpeed:          r.WindSpeed,
		WindDirection:      r.WindDirection,
		NearestGroundValue: r.NearestGroundValue,
		DistanceKm:         r.DistanceKm,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize aligned row: %w", err)
	}

	key := strconv.FormatFloat(r.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(r.Lon, 'f', -1, 64)
	complete := "false"
	if _, ok := r.Features(); ok && r.NearestGroundValue != nil {
		complete = "true"
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "schema", Value: []byte("aligned-observation/v1")},
			{Key: "trainable", Value: []byte(complete)},
		},
	}, nil
}
