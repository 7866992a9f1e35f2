package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"HealthSentinel/internal/model"

	"gopkg.in/yaml.v3"
)

// WeightTolerance is the allowed deviation of a profile's weight sum from 1.
const WeightTolerance = 1e-6

// Config holds all application configuration.
type Config struct {
	Source     SourceConfig   `yaml:"source"`
	Engine     EngineConfig   `yaml:"engine"`
	Dimensions Dimensions     `yaml:"dimensions"`
	Scoring    ScoringConfig  `yaml:"scoring"`
	Bands      []Band         `yaml:"bands"`
	Alerts     AlertParams    `yaml:"alerts"`
	Actions    ActionParams   `yaml:"actions"`
	Queue      QueueParams    `yaml:"queue"`
	Trend      TrendParams    `yaml:"trend"`
	History    HistoryConfig  `yaml:"history"`
	Database   DatabaseConfig `yaml:"database"`
	Redis      RedisConfig    `yaml:"redis"`
	Kafka      KafkaConfig    `yaml:"kafka"`
	Telegram   TelegramConfig `yaml:"telegram"`
	HTTP       HTTPConfig     `yaml:"http"`
	Schedule   ScheduleConfig `yaml:"schedule"`
	Logging    LoggingConfig  `yaml:"logging"`
	StateFile  string         `yaml:"state_file"`
	Proxy      string         `yaml:"proxy"`
}

type SourceConfig struct {
	Kind          string        `yaml:"kind"` // file, http or mock
	Path          string        `yaml:"path"`
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the HTTP source.
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	OpenTimeout  time.Duration `yaml:"open_timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

type EngineConfig struct {
	Concurrency     int                           `yaml:"concurrency"`
	CustomerTimeout time.Duration                 `yaml:"customer_timeout"`
	WindowDays      int                           `yaml:"window_days"`
	Features        map[model.FeatureCategory]int `yaml:"features"`
}

// Dimensions holds the per-calculator normalization parameters.
type Dimensions struct {
	Usage        UsageParams        `yaml:"usage"`
	Engagement   EngagementParams   `yaml:"engagement"`
	Support      SupportParams      `yaml:"support"`
	Payment      PaymentParams      `yaml:"payment"`
	Adoption     AdoptionParams     `yaml:"adoption"`
	Satisfaction SatisfactionParams `yaml:"satisfaction"`
	Lifecycle    LifecycleParams    `yaml:"lifecycle"`
	Value        ValueParams        `yaml:"value"`
}

type UsageParams struct {
	TargetSessions float64 `yaml:"target_sessions"`
	TargetMinutes  float64 `yaml:"target_minutes"`
	SessionWeight  float64 `yaml:"session_weight"`
}

type EngagementParams struct {
	ParticipationWeight float64 `yaml:"participation_weight"`
	OnboardingBonus     float64 `yaml:"onboarding_bonus"`
}

type SupportParams struct {
	PriorityWeights  map[model.TicketPriority]float64 `yaml:"priority_weights"`
	PerTicketPenalty float64                          `yaml:"per_ticket_penalty"`
	MaxVolumePenalty float64                          `yaml:"max_volume_penalty"`
	TargetHours      float64                          `yaml:"target_hours"`
	DelayScaleHours  float64                          `yaml:"delay_scale_hours"`
	MaxDelayPenalty  float64                          `yaml:"max_delay_penalty"`
}

type PaymentParams struct {
	StatusScores   map[model.PaymentStatus]float64 `yaml:"status_scores"`
	RenewalPenalty float64                         `yaml:"renewal_penalty"`
}

type AdoptionParams struct {
	CoreWeight        float64 `yaml:"core_weight"`
	AdvancedWeight    float64 `yaml:"advanced_weight"`
	IntegrationWeight float64 `yaml:"integration_weight"`
}

type SatisfactionParams struct {
	NPSMax  float64 `yaml:"nps_max"`
	CSATMin float64 `yaml:"csat_min"`
	CSATMax float64 `yaml:"csat_max"`
}

type LifecycleParams struct {
	Floor           float64 `yaml:"floor"`
	PlateauFraction float64 `yaml:"plateau_fraction"`
	MaxPlateauDays  float64 `yaml:"max_plateau_days"`
}

type ValueParams struct {
	RankWeight float64 `yaml:"rank_weight"`
}

// ScoringConfig holds the weight profiles per segment.
type ScoringConfig struct {
	DefaultSegment model.Segment                                 `yaml:"default_segment"`
	Profiles       map[model.Segment]map[model.Dimension]float64 `yaml:"profiles"`
}

// Band maps [Min, Max) to a label. The band ending at 1 also contains 1.
type Band struct {
	Label model.RiskLabel `yaml:"label"`
	Min   float64         `yaml:"min"`
	Max   float64         `yaml:"max"`
}

// AlertParams holds alert rule thresholds.
type AlertParams struct {
	CriticalThreshold       float64                   `yaml:"critical_threshold"`
	UsageFloor              float64                   `yaml:"usage_floor"`
	LoginMediumDays         float64                   `yaml:"login_medium_days"`
	LoginHighDays           float64                   `yaml:"login_high_days"`
	SegmentLoginMultiplier  map[model.Segment]float64 `yaml:"segment_login_multiplier"`
	ExpansionValueMin       float64                   `yaml:"expansion_value_min"`
	ExpansionAdoptionMin    float64                   `yaml:"expansion_adoption_min"`
	UsageDeclineFloor       float64                   `yaml:"usage_decline_floor"`
	UsageDrop               float64                   `yaml:"usage_drop"`
	SupportTicketThreshold  int                       `yaml:"support_ticket_threshold"`
	SegmentTicketMultiplier map[model.Segment]float64 `yaml:"segment_ticket_multiplier"`
	OnboardingGraceDays     float64                   `yaml:"onboarding_grace_days"`
	Cooldown                time.Duration             `yaml:"cooldown"`
}

type ActionParams struct {
	CatalogPath  string  `yaml:"catalog_path"`
	TopN         int     `yaml:"top_n"`
	HighValueMRR float64 `yaml:"high_value_mrr"`
}

// QueueParams tunes the cross-customer alert queue built after each run.
type QueueParams struct {
	Size         int `yaml:"size"`
	TenureMonths int `yaml:"tenure_months"`
}

type TrendParams struct {
	LookbackDays  int     `yaml:"lookback_days"`
	ToleranceDays int     `yaml:"tolerance_days"`
	Epsilon       float64 `yaml:"epsilon"`
	Points        int     `yaml:"points"`
	HorizonDays   int     `yaml:"horizon_days"`
}

type HistoryConfig struct {
	Backend       string `yaml:"backend"` // sqlite or memory
	RetentionDays int    `yaml:"retention_days"`
}

type DatabaseConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TelegramConfig struct {
	BotToken    string         `yaml:"bot_token"`
	ChatID      string         `yaml:"chat_id"`
	MinSeverity model.Severity `yaml:"min_severity"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type ScheduleConfig struct {
	RunCron   string `yaml:"run_cron"`
	PruneCron string `yaml:"prune_cron"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads config from a YAML file over the defaults, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("SOURCE_URL"); v != "" {
		cfg.Source.BaseURL = v
		cfg.Source.Kind = "http"
	}
	if v := os.Getenv("SOURCE_API_KEY"); v != "" {
		cfg.Source.APIKey = v
	}
	if v := os.Getenv("SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
		cfg.Source.Kind = "file"
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("RUN_CRON"); v != "" {
		cfg.Schedule.RunCron = v
	}
	if v := os.Getenv("ENGINE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Concurrency = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

// Validate checks every invariant the engine relies on. It is called once at startup.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "file":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for file source")
		}
	case "http":
		if c.Source.BaseURL == "" {
			return fmt.Errorf("source.base_url is required for http source")
		}
		if c.Source.RatePerSecond <= 0 {
			return fmt.Errorf("source.rate_per_second must be positive")
		}
	case "mock":
	default:
		return fmt.Errorf("source.kind %q is not one of file, http, mock", c.Source.Kind)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when bot_token is set")
	}
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be positive")
	}
	if c.Engine.CustomerTimeout <= 0 {
		return fmt.Errorf("engine.customer_timeout must be positive")
	}
	if c.Engine.WindowDays <= 0 {
		return fmt.Errorf("engine.window_days must be positive")
	}
	if err := c.Dimensions.Validate(); err != nil {
		return fmt.Errorf("dimensions: %w", err)
	}
	if err := ValidateProfiles(c.Scoring); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if err := ValidateBands(c.Bands); err != nil {
		return fmt.Errorf("bands: %w", err)
	}
	if err := c.Alerts.Validate(); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	if c.Actions.TopN <= 0 {
		return fmt.Errorf("actions.top_n must be positive")
	}
	if c.Queue.Size <= 0 || c.Queue.TenureMonths < 0 {
		return fmt.Errorf("queue: size must be positive, tenure_months non-negative")
	}
	if c.Trend.LookbackDays <= 0 || c.Trend.ToleranceDays < 0 || c.Trend.HorizonDays <= 0 {
		return fmt.Errorf("trend: lookback and horizon must be positive, tolerance non-negative")
	}
	if c.Trend.Points < 2 {
		return fmt.Errorf("trend.points must be at least 2")
	}
	if c.Trend.Epsilon < 0 {
		return fmt.Errorf("trend.epsilon must be non-negative")
	}
	if c.History.Backend != "sqlite" && c.History.Backend != "memory" {
		return fmt.Errorf("history.backend %q is not one of sqlite, memory", c.History.Backend)
	}
	if c.History.RetentionDays <= 0 {
		return fmt.Errorf("history.retention_days must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	// a zero TTL would leave a crashed holder's key forever
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("redis.lock_ttl must be positive when addr is set")
	}
	return nil
}

// Validate checks the calculator parameters.
func (d Dimensions) Validate() error {
	if d.Usage.TargetSessions <= 0 || d.Usage.TargetMinutes <= 0 {
		return fmt.Errorf("usage targets must be positive")
	}
	if !unit(d.Usage.SessionWeight) {
		return fmt.Errorf("usage.session_weight must be in [0,1]")
	}
	if d.Engagement.OnboardingBonus < 0 || d.Engagement.OnboardingBonus > 0.15 {
		return fmt.Errorf("engagement.onboarding_bonus must be in [0,0.15]")
	}
	if !unit(d.Engagement.ParticipationWeight) {
		return fmt.Errorf("engagement.participation_weight must be in [0,1]")
	}
	for _, p := range []model.TicketPriority{model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent} {
		w, ok := d.Support.PriorityWeights[p]
		if !ok || w < 0 {
			return fmt.Errorf("support.priority_weights.%s must be set and non-negative", p)
		}
	}
	if d.Support.PerTicketPenalty < 0 || !unit(d.Support.MaxVolumePenalty) || !unit(d.Support.MaxDelayPenalty) {
		return fmt.Errorf("support penalties must be in [0,1]")
	}
	if d.Support.DelayScaleHours <= 0 || d.Support.TargetHours < 0 {
		return fmt.Errorf("support.delay_scale_hours must be positive and target_hours non-negative")
	}
	for _, s := range []model.PaymentStatus{model.PaymentCurrent, model.PaymentLate, model.PaymentOverdue, model.PaymentFailed} {
		v, ok := d.Payment.StatusScores[s]
		if !ok || !unit(v) {
			return fmt.Errorf("payment.status_scores.%s must be set and in [0,1]", s)
		}
	}
	if !unit(d.Payment.RenewalPenalty) {
		return fmt.Errorf("payment.renewal_penalty must be in [0,1]")
	}
	a := d.Adoption
	if a.CoreWeight < 0 || a.AdvancedWeight < 0 || a.IntegrationWeight < 0 || a.CoreWeight+a.AdvancedWeight+a.IntegrationWeight <= 0 {
		return fmt.Errorf("adoption weights must be non-negative with a positive sum")
	}
	if d.Satisfaction.NPSMax <= 0 || d.Satisfaction.CSATMax <= d.Satisfaction.CSATMin {
		return fmt.Errorf("satisfaction scales are invalid")
	}
	if !unit(d.Lifecycle.Floor) || d.Lifecycle.PlateauFraction <= 0 || d.Lifecycle.MaxPlateauDays <= 0 {
		return fmt.Errorf("lifecycle parameters are invalid")
	}
	if !unit(d.Value.RankWeight) {
		return fmt.Errorf("value.rank_weight must be in [0,1]")
	}
	return nil
}

// ValidateProfiles checks that every profile covers every dimension with
// non-negative weights summing to 1, and that the default segment exists.
func ValidateProfiles(s ScoringConfig) error {
	if len(s.Profiles) == 0 {
		return fmt.Errorf("no weight profiles configured")
	}
	if _, ok := s.Profiles[s.DefaultSegment]; !ok {
		return fmt.Errorf("default segment %q has no profile", s.DefaultSegment)
	}
	for seg, weights := range s.Profiles {
		for dim := range weights {
			if !model.IsDimension(dim) {
				return fmt.Errorf("profile %s references unknown dimension %q", seg, dim)
			}
		}
		sum := 0.0
		for _, dim := range model.Dimensions {
			w, ok := weights[dim]
			if !ok {
				return fmt.Errorf("profile %s is missing dimension %s", seg, dim)
			}
			if w < 0 || math.IsNaN(w) {
				return fmt.Errorf("profile %s has invalid weight %v for %s", seg, w, dim)
			}
			sum += w
		}
		if math.Abs(sum-1) > WeightTolerance {
			return fmt.Errorf("profile %s weights sum to %.9f, want 1", seg, sum)
		}
	}
	return nil
}

// ValidateBands checks that bands partition [0,1] without gaps or overlaps.
func ValidateBands(bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("no bands configured")
	}
	sorted := append([]Band(nil), bands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	seen := make(map[model.RiskLabel]bool)
	for i, b := range sorted {
		if b.Label == "" {
			return fmt.Errorf("band %d has no label", i)
		}
		if seen[b.Label] {
			return fmt.Errorf("band label %q is duplicated", b.Label)
		}
		seen[b.Label] = true
		if b.Min >= b.Max {
			return fmt.Errorf("band %s has min %v >= max %v", b.Label, b.Min, b.Max)
		}
		if i == 0 && b.Min != 0 {
			return fmt.Errorf("bands start at %v, want 0", b.Min)
		}
		if i > 0 {
			prev := sorted[i-1]
			if b.Min > prev.Max {
				return fmt.Errorf("gap between %s and %s", prev.Label, b.Label)
			}
			if b.Min < prev.Max {
				return fmt.Errorf("bands %s and %s overlap", prev.Label, b.Label)
			}
		}
	}
	if last := sorted[len(sorted)-1]; last.Max != 1 {
		return fmt.Errorf("bands end at %v, want 1", last.Max)
	}
	return nil
}

// Validate checks the alert thresholds.
func (a AlertParams) Validate() error {
	for name, v := range map[string]float64{
		"critical_threshold":     a.CriticalThreshold,
		"usage_floor":            a.UsageFloor,
		"expansion_value_min":    a.ExpansionValueMin,
		"expansion_adoption_min": a.ExpansionAdoptionMin,
		"usage_decline_floor":    a.UsageDeclineFloor,
		"usage_drop":             a.UsageDrop,
	} {
		if !unit(v) {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if a.LoginMediumDays <= 0 || a.LoginHighDays < a.LoginMediumDays {
		return fmt.Errorf("login thresholds must satisfy 0 < medium <= high")
	}
	if a.SupportTicketThreshold <= 0 {
		return fmt.Errorf("support_ticket_threshold must be positive")
	}
	for seg, m := range a.SegmentLoginMultiplier {
		if m <= 0 {
			return fmt.Errorf("segment_login_multiplier.%s must be positive", seg)
		}
	}
	for seg, m := range a.SegmentTicketMultiplier {
		if m <= 0 {
			return fmt.Errorf("segment_ticket_multiplier.%s must be positive", seg)
		}
	}
	if a.Cooldown < 0 {
		return fmt.Errorf("cooldown must be non-negative")
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }
