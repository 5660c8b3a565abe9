package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Env  string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Database struct {
		Postgres struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			DBName   string `yaml:"dbname"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
	} `yaml:"database"`

	NATS struct {
		URL       string `yaml:"url"`
		ClusterID string `yaml:"cluster_id"`
		ClientID  string `yaml:"client_id"`
		// NATS Streaming 不支持通配符，逐个列出新闻频道
		NewsChannels []string `yaml:"news_channels"`
	} `yaml:"nats"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
		GroupID string   `yaml:"group_id"`
	} `yaml:"kafka"`

	API struct {
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		RateLimit    float64       `yaml:"rate_limit"` // 每秒请求数
		RateBurst    int           `yaml:"rate_burst"`
	} `yaml:"api"`

	Providers struct {
		Finnhub struct {
			APIKey   string        `yaml:"api_key"`
			BaseURL  string        `yaml:"base_url"`
			Timeout  time.Duration `yaml:"timeout"`
			LookBack int           `yaml:"lookback_days"`
		} `yaml:"finnhub"`
		Tickers []string `yaml:"tickers"`
	} `yaml:"providers"`

	Jobs struct {
		Workers     int           `yaml:"workers"`
		MaxAttempts int           `yaml:"max_attempts"`
		Backoff     time.Duration `yaml:"backoff"`
		Transport   string        `yaml:"transport"` // local | nats
	} `yaml:"jobs"`

	Scheduler Scheduler `yaml:"scheduler"`

	Scoring Scoring `yaml:"scoring"`
}

// Scoring 打分流水线的全部可调参数
type Scoring struct {
	TierConfidence map[string]float64 `yaml:"tier_confidence"`
	DollarTiers    []Tier             `yaml:"dollar_tiers"`  // 单位: 美元
	PercentTiers   []Tier             `yaml:"percent_tiers"` // 单位: 百分点

	ConcentrationThreshold float64 `yaml:"concentration_threshold"`
	ConcentrationFactor    float64 `yaml:"concentration_factor"`

	Consensus struct {
		WindowHours   float64 `yaml:"window_hours"`
		Agreement     float64 `yaml:"agreement"`
		StrongSources int     `yaml:"strong_sources"`
		StrongBonus   float64 `yaml:"strong_bonus"`
		PairSources   int     `yaml:"pair_sources"`
		PairBonus     float64 `yaml:"pair_bonus"`
	} `yaml:"consensus"`

	Recommendation struct {
		MildBand        float64 `yaml:"mild_band"`
		StrongBand      float64 `yaml:"strong_band"`
		LookbackDays    int     `yaml:"lookback_days"`
		MaxImpacts      int     `yaml:"max_impacts"`
		SaturationCount int     `yaml:"saturation_count"`
	} `yaml:"recommendation"`

	Alert struct {
		HighImpactThreshold float64 `yaml:"high_impact_threshold"`
		TopN                int     `yaml:"top_n"`
		LookbackHours       int     `yaml:"lookback_hours"`
	} `yaml:"alert"`

	Analog struct {
		LookbackDays int `yaml:"lookback_days"`
		MinMatches   int `yaml:"min_matches"`
		MaxEvents    int `yaml:"max_events"`
	} `yaml:"analog"`

	// 批量重算时回看的文章窗口
	ImpactLookbackDays int `yaml:"impact_lookback_days"`
}

// Scheduler 定时任务的 cron 表达式（含秒字段），为空表示不启用。
// Enabled 控制按用户扇出的摘要与高影响扫描，多副本部署时只在一个副本打开。
type Scheduler struct {
	Enabled         bool   `yaml:"enabled"`
	DailyDigest     string `yaml:"daily_digest"`
	HighImpactSweep string `yaml:"high_impact_sweep"`
	ProviderPoll    string `yaml:"provider_poll"`
}

// Tier 阈值 -> 量级
type Tier struct {
	Min       float64 `yaml:"min"`
	Magnitude int     `yaml:"magnitude"`
}

// Default 返回内置默认配置
func Default() *Config {
	var cfg Config
	cfg.App.Name = "impact-radar"
	cfg.App.Env = "dev"
	cfg.Log.Level = "info"

	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Postgres.Port = 5432
	cfg.Database.Postgres.User = "postgres"
	cfg.Database.Postgres.DBName = "impact_radar"
	cfg.Database.Postgres.SSLMode = "disable"

	cfg.NATS.URL = "nats://localhost:4222"
	cfg.NATS.ClusterID = "test-cluster"
	cfg.NATS.ClientID = "impact-radar"
	cfg.NATS.NewsChannels = []string{"news.articles"}

	cfg.Kafka.Topic = "articles"
	cfg.Kafka.GroupID = "impact-radar"

	cfg.API.Port = "8080"
	cfg.API.ReadTimeout = 10 * time.Second
	cfg.API.WriteTimeout = 10 * time.Second
	cfg.API.RateLimit = 20
	cfg.API.RateBurst = 40

	cfg.Providers.Finnhub.BaseURL = "https://finnhub.io/api/v1"
	cfg.Providers.Finnhub.Timeout = 15 * time.Second
	cfg.Providers.Finnhub.LookBack = 2

	cfg.Jobs.Workers = 4
	cfg.Jobs.MaxAttempts = 3
	cfg.Jobs.Backoff = 2 * time.Second
	cfg.Jobs.Transport = "local"

	cfg.Scheduler.Enabled = true
	cfg.Scheduler.DailyDigest = "0 0 18 * * 1-5"
	cfg.Scheduler.HighImpactSweep = "@every 10m"
	cfg.Scheduler.ProviderPoll = "@every 15m"

	cfg.Scoring = DefaultScoring()
	return &cfg
}

// DefaultScoring 默认打分参数
func DefaultScoring() Scoring {
	var s Scoring
	s.TierConfidence = map[string]float64{
		"official": 1.00,
		"premium":  0.90,
		"standard": 0.70,
		"social":   0.40,
	}
	s.DollarTiers = []Tier{
		{Min: 5e9, Magnitude: 3},
		{Min: 1e9, Magnitude: 2},
		{Min: 1e8, Magnitude: 1},
	}
	s.PercentTiers = []Tier{
		{Min: 15, Magnitude: 3},
		{Min: 8, Magnitude: 2},
		{Min: 3, Magnitude: 1},
	}
	s.ConcentrationThreshold = 0.15
	s.ConcentrationFactor = 1.2

	s.Consensus.WindowHours = 24
	s.Consensus.Agreement = 0.75
	s.Consensus.StrongSources = 3
	s.Consensus.StrongBonus = 0.15
	s.Consensus.PairSources = 2
	s.Consensus.PairBonus = 0.10

	s.Recommendation.MildBand = 0.15
	s.Recommendation.StrongBand = 0.5
	s.Recommendation.LookbackDays = 14
	s.Recommendation.MaxImpacts = 200
	s.Recommendation.SaturationCount = 5

	s.Alert.HighImpactThreshold = 0.7
	s.Alert.TopN = 5
	s.Alert.LookbackHours = 24

	s.Analog.LookbackDays = 730
	s.Analog.MinMatches = 3
	s.Analog.MaxEvents = 50

	s.ImpactLookbackDays = 30
	return s
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	// .env 只用于本地开发，文件不存在时忽略
	_ = godotenv.Load()

	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析YAML，未出现的字段保留默认值
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 环境变量覆盖
	overrideFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 校验打分参数
func (c *Config) Validate() error {
	return c.Scoring.Validate()
}

// Validate 校验打分参数的取值范围和单调性
func (s Scoring) Validate() error {
	for tier, v := range s.TierConfidence {
		if v < 0 || v > 1 {
			return fmt.Errorf("来源等级 %s 的置信度 %.2f 超出 [0,1]", tier, v)
		}
	}
	if err := validateTiers("dollar_tiers", s.DollarTiers); err != nil {
		return err
	}
	if err := validateTiers("percent_tiers", s.PercentTiers); err != nil {
		return err
	}
	if s.ConcentrationThreshold < 0 || s.ConcentrationThreshold > 1 {
		return fmt.Errorf("集中度阈值 %.2f 超出 [0,1]", s.ConcentrationThreshold)
	}
	if s.ConcentrationFactor < 1 {
		return fmt.Errorf("集中度乘数 %.2f 不能小于1", s.ConcentrationFactor)
	}
	r := s.Recommendation
	if r.MildBand <= 0 || r.StrongBand <= r.MildBand {
		return fmt.Errorf("建议区间必须满足 0 < mild(%.2f) < strong(%.2f)", r.MildBand, r.StrongBand)
	}
	if s.Alert.HighImpactThreshold <= 0 {
		return fmt.Errorf("高影响阈值必须大于0")
	}
	return nil
}

// validateTiers 要求按阈值严格降序，量级在 1..3
func validateTiers(name string, tiers []Tier) error {
	for i, t := range tiers {
		if t.Magnitude < 1 || t.Magnitude > 3 {
			return fmt.Errorf("%s[%d] 量级 %d 超出 1..3", name, i, t.Magnitude)
		}
		if i > 0 && t.Min >= tiers[i-1].Min {
			return fmt.Errorf("%s 必须按阈值降序排列", name)
		}
	}
	return nil
}

// overrideFromEnv 使用环境变量覆盖配置
func overrideFromEnv(config *Config) {
	if env := os.Getenv("APP_NAME"); env != "" {
		config.App.Name = env
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		config.App.Env = env
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		config.Log.Level = env
	}

	// 数据库配置
	if env := os.Getenv("DB_HOST"); env != "" {
		config.Database.Postgres.Host = env
	}
	if env := os.Getenv("DB_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil && port > 0 {
			config.Database.Postgres.Port = port
		}
	}
	if env := os.Getenv("DB_USER"); env != "" {
		config.Database.Postgres.User = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		config.Database.Postgres.Password = env
	}
	if env := os.Getenv("DB_NAME"); env != "" {
		config.Database.Postgres.DBName = env
	}

	// NATS配置
	if env := os.Getenv("NATS_URL"); env != "" {
		config.NATS.URL = env
	}
	if env := os.Getenv("NATS_CLUSTER_ID"); env != "" {
		config.NATS.ClusterID = env
	}
	if env := os.Getenv("NATS_CLIENT_ID"); env != "" {
		config.NATS.ClientID = env
	}

	// Kafka配置
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		config.Kafka.Brokers = strings.Split(env, ",")
	}
	if env := os.Getenv("KAFKA_TOPIC"); env != "" {
		config.Kafka.Topic = env
	}

	// 数据源
	if env := os.Getenv("FINNHUB_API_KEY"); env != "" {
		config.Providers.Finnhub.APIKey = env
	}
	if env := os.Getenv("FINNHUB_BASE_URL"); env != "" {
		config.Providers.Finnhub.BaseURL = env
	}

	if env := os.Getenv("API_PORT"); env != "" {
		config.API.Port = env
	}
	if env := os.Getenv("JOBS_TRANSPORT"); env != "" {
		config.Jobs.Transport = env
	}
	if env := os.Getenv("SCHEDULER_ENABLED"); env != "" {
		if enabled, err := strconv.ParseBool(env); err == nil {
			config.Scheduler.Enabled = enabled
		}
	}
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}
