package consumer

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BufferSize is tuple_buffer_max_size (spec §6): a positive integer that
// must tolerate both 32- and 64-bit integer representations in a config
// file, the way the teacher's LogLevel tolerates both a string and an
// integer form.
type BufferSize int

func (b *BufferSize) UnmarshalYAML(value *yaml.Node) error {
	var i64 int64
	if err := value.Decode(&i64); err != nil {
		var i32 int32
		if err32 := value.Decode(&i32); err32 != nil {
			return fmt.Errorf("tuple_buffer_max_size must be an integer: %w", err)
		}
		i64 = int64(i32)
	}
	if i64 <= 0 {
		return fmt.Errorf("tuple_buffer_max_size must be positive, got %d", i64)
	}
	*b = BufferSize(i64)
	return nil
}

func (b *BufferSize) UnmarshalJSON(data []byte) error {
	var i64 int64
	if err := json.Unmarshal(data, &i64); err != nil {
		var i32 int32
		if err32 := json.Unmarshal(data, &i32); err32 != nil {
			return fmt.Errorf("tuple_buffer_max_size must be an integer: %w", err)
		}
		i64 = int64(i32)
	}
	if i64 <= 0 {
		return fmt.Errorf("tuple_buffer_max_size must be positive, got %d", i64)
	}
	*b = BufferSize(i64)
	return nil
}

// Config holds the recognized options from spec §6. Defaults mirror the
// teacher's ConsumerConfig in naming and in the flag+YAML/JSON loading
// shape, adapted to this core's own option set.
type Config struct {
	BrokerHosts []string `yaml:"broker_hosts" json:"broker_hosts"`
	ConsumerID  string   `yaml:"consumer_id" json:"consumer_id"`
	Topic       string   `yaml:"topic" json:"topic"`

	NumberOfConsumers int `yaml:"number_of_consumers" json:"number_of_consumers"`
	IndexOfConsumer   int `yaml:"index_of_consumer" json:"index_of_consumer"`

	AutoCommit         bool          `yaml:"consumer_state_auto_commit" json:"consumer_state_auto_commit"`
	AutoCommitInterval time.Duration `yaml:"-" json:"-"`
	AutoCommitMS       int           `yaml:"consumer_state_auto_commit_interval_ms" json:"consumer_state_auto_commit_interval_ms"`

	TupleBufferMaxSize BufferSize `yaml:"tuple_buffer_max_size" json:"tuple_buffer_max_size"`
}

// LoadConfig parses flags, then overlays a YAML or JSON config file when
// present, then fills in defaults for anything still unset — the same
// three-stage shape the teacher's LoadConfig uses.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	flag.Func("broker-hosts", "Comma-separated broker host:port list", func(val string) error {
		cfg.BrokerHosts = strings.Split(val, ",")
		for i, addr := range cfg.BrokerHosts {
			cfg.BrokerHosts[i] = strings.TrimSpace(addr)
		}
		return nil
	})
	flag.StringVar(&cfg.ConsumerID, "consumer-id", "", "Consumer identity key for persistence")
	flag.StringVar(&cfg.Topic, "topic", "", "Source topic")
	flag.IntVar(&cfg.NumberOfConsumers, "number-of-consumers", 1, "Shard count across this consumer group")
	flag.IntVar(&cfg.IndexOfConsumer, "index-of-consumer", 0, "This consumer's shard index")
	flag.BoolVar(&cfg.AutoCommit, "consumer-state-auto-commit", false, "Enable time-triggered state flush")
	flag.IntVar(&cfg.AutoCommitMS, "consumer-state-auto-commit-interval-ms", 15_000, "Auto-commit interval in milliseconds")
	bufSize := flag.Int("tuple-buffer-max-size", 1000, "Staging FIFO capacity")

	configPath := flag.String("config", "", "Path to YAML/JSON config file")
	flag.Parse()

	cfg.TupleBufferMaxSize = BufferSize(*bufSize)

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file %s not found", *configPath)
			}
			return nil, fmt.Errorf("read config file %s: %w", *configPath, err)
		}
		if strings.HasSuffix(*configPath, ".json") {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaultsAndValidate() error {
	if len(cfg.BrokerHosts) == 0 {
		return fmt.Errorf("broker_hosts is required")
	}
	if cfg.ConsumerID == "" {
		return fmt.Errorf("consumer_id is required")
	}
	if cfg.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if cfg.NumberOfConsumers <= 0 {
		cfg.NumberOfConsumers = 1
	}
	if cfg.IndexOfConsumer < 0 || cfg.IndexOfConsumer >= cfg.NumberOfConsumers {
		return fmt.Errorf("index_of_consumer %d out of range [0,%d)", cfg.IndexOfConsumer, cfg.NumberOfConsumers)
	}
	if cfg.AutoCommitMS <= 0 {
		cfg.AutoCommitMS = 15_000
	}
	cfg.AutoCommitInterval = time.Duration(cfg.AutoCommitMS) * time.Millisecond
	if cfg.TupleBufferMaxSize <= 0 {
		cfg.TupleBufferMaxSize = 1000
	}
	return nil
}
